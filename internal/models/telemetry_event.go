package models

import (
	"fmt"
	"strconv"
	"time"
)

// TelemetryEvent 单次生理遥测采样，提交后不可变
type TelemetryEvent struct {
	SubjectID   string  `json:"subject_id"`
	HeartRate   float64 `json:"heart_rate"`
	BPSystolic  float64 `json:"bp_systolic"`
	BPDiastolic float64 `json:"bp_diastolic"`
	Temperature float64 `json:"temperature"`
	Timestamp   int64   `json:"timestamp"` // Unix 秒
}

// Validate 校验采样数据；非法输入返回 *ValidationError，不会提交到存储
func (e *TelemetryEvent) Validate() error {
	if e.SubjectID == "" {
		return &ValidationError{Field: "subject_id", Reason: "must not be empty"}
	}
	if e.HeartRate <= 0 || e.HeartRate > 500 {
		return &ValidationError{Field: "heart_rate", Reason: fmt.Sprintf("out of range: %v", e.HeartRate)}
	}
	if e.BPSystolic <= 0 || e.BPSystolic > 400 {
		return &ValidationError{Field: "bp_systolic", Reason: fmt.Sprintf("out of range: %v", e.BPSystolic)}
	}
	if e.BPDiastolic <= 0 || e.BPDiastolic > 300 {
		return &ValidationError{Field: "bp_diastolic", Reason: fmt.Sprintf("out of range: %v", e.BPDiastolic)}
	}
	if e.Temperature < 20 || e.Temperature > 50 {
		return &ValidationError{Field: "temperature", Reason: fmt.Sprintf("out of range: %v", e.Temperature)}
	}
	if e.Timestamp < 0 {
		return &ValidationError{Field: "timestamp", Reason: "must be non-negative unix seconds"}
	}
	return nil
}

// StreamFields 展开为 Redis Stream 的扁平字段
func (e *TelemetryEvent) StreamFields() map[string]interface{} {
	return map[string]interface{}{
		"subject_id":   e.SubjectID,
		"heart_rate":   strconv.FormatFloat(e.HeartRate, 'f', -1, 64),
		"bp_systolic":  strconv.FormatFloat(e.BPSystolic, 'f', -1, 64),
		"bp_diastolic": strconv.FormatFloat(e.BPDiastolic, 'f', -1, 64),
		"temperature":  strconv.FormatFloat(e.Temperature, 'f', -1, 64),
		"timestamp":    strconv.FormatInt(e.Timestamp, 10),
	}
}

// ParseEventFields 从 Stream 消息字段解析遥测事件
// Redis 返回的字段值均为字符串；缺失或无法解析的字段视为格式错误
func ParseEventFields(values map[string]interface{}) (*TelemetryEvent, error) {
	ev := &TelemetryEvent{}

	var ok bool
	if ev.SubjectID, ok = stringField(values, "subject_id"); !ok {
		return nil, fmt.Errorf("missing subject_id field")
	}

	var err error
	if ev.HeartRate, err = floatField(values, "heart_rate"); err != nil {
		return nil, err
	}
	if ev.BPSystolic, err = floatField(values, "bp_systolic"); err != nil {
		return nil, err
	}
	if ev.BPDiastolic, err = floatField(values, "bp_diastolic"); err != nil {
		return nil, err
	}
	if ev.Temperature, err = floatField(values, "temperature"); err != nil {
		return nil, err
	}

	tsStr, ok := stringField(values, "timestamp")
	if !ok {
		return nil, fmt.Errorf("missing timestamp field")
	}
	if ev.Timestamp, err = strconv.ParseInt(tsStr, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", tsStr, err)
	}

	return ev, nil
}

// HourKeyFromTimestamp 按 UTC 日历小时截断时间戳
// 返回小时分桶键（YYYYMMDDHH）与 epoch 小时数（用作索引 score）
func HourKeyFromTimestamp(ts int64) (string, int64) {
	hourKey := time.Unix(ts, 0).UTC().Format("2006010215")
	return hourKey, ts / 3600
}

func stringField(values map[string]interface{}, key string) (string, bool) {
	v, ok := values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func floatField(values map[string]interface{}, key string) (float64, error) {
	s, ok := stringField(values, key)
	if !ok {
		return 0, fmt.Errorf("missing %s field", key)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return f, nil
}
