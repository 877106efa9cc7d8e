package models

// HourSummary 单个对象单个日历小时的读优化聚合摘要
// 由聚合器在每条事件处理后重写，查询侧 O(1) 读取
type HourSummary struct {
	Hour          string  `json:"hour"` // YYYYMMDDHH（UTC）
	AvgHeartRate  float64 `json:"avg_hr"`
	Sum           float64 `json:"sum"`
	Count         int64   `json:"count"`
	LastTimestamp int64   `json:"last_ts"`
}

// BPEntry 收缩压排行条目
type BPEntry struct {
	SubjectID  string  `json:"subject_id"`
	BPSystolic float64 `json:"bp_systolic"`
}
