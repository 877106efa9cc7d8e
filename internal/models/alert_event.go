package models

// AlertEvent 阈值告警事件
// 同一次采样触发的所有规则合并为一条告警，写入两个独立目的地：
// 持久化审计流（可靠）和 Pub/Sub 实时频道（广播期间离线即丢失）
type AlertEvent struct {
	AlertID        string         `json:"alert_id"`
	SubjectID      string         `json:"subject_id"`
	Timestamp      int64          `json:"timestamp"`
	TriggeredRules []string       `json:"triggered_rules"`
	Source         TelemetryEvent `json:"source"`
}

// RecentAlert 最近告警的展示条目
// 无法解析的广播消息原样包裹在 Raw 中，不丢弃
type RecentAlert struct {
	Alert *AlertEvent `json:"alert,omitempty"`
	Raw   string      `json:"raw,omitempty"`
}
