package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEvent() *TelemetryEvent {
	return &TelemetryEvent{
		SubjectID:   "subject1",
		HeartRate:   72,
		BPSystolic:  118,
		BPDiastolic: 76,
		Temperature: 36.6,
		Timestamp:   1767970800,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validEvent().Validate())

	tests := []struct {
		name   string
		mutate func(*TelemetryEvent)
		field  string
	}{
		{"empty subject", func(e *TelemetryEvent) { e.SubjectID = "" }, "subject_id"},
		{"zero heart rate", func(e *TelemetryEvent) { e.HeartRate = 0 }, "heart_rate"},
		{"heart rate too high", func(e *TelemetryEvent) { e.HeartRate = 501 }, "heart_rate"},
		{"negative systolic", func(e *TelemetryEvent) { e.BPSystolic = -5 }, "bp_systolic"},
		{"zero diastolic", func(e *TelemetryEvent) { e.BPDiastolic = 0 }, "bp_diastolic"},
		{"temperature too low", func(e *TelemetryEvent) { e.Temperature = 10 }, "temperature"},
		{"negative timestamp", func(e *TelemetryEvent) { e.Timestamp = -1 }, "timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := validEvent()
			tt.mutate(ev)
			err := ev.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestStreamFieldsRoundTrip(t *testing.T) {
	ev := validEvent()

	parsed, err := ParseEventFields(ev.StreamFields())
	require.NoError(t, err)
	assert.Equal(t, ev, parsed)
}

func TestParseEventFields_Malformed(t *testing.T) {
	base := validEvent().StreamFields()

	tests := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"missing subject_id", func(m map[string]interface{}) { delete(m, "subject_id") }},
		{"empty subject_id", func(m map[string]interface{}) { m["subject_id"] = "" }},
		{"missing heart_rate", func(m map[string]interface{}) { delete(m, "heart_rate") }},
		{"non-numeric heart_rate", func(m map[string]interface{}) { m["heart_rate"] = "fast" }},
		{"missing timestamp", func(m map[string]interface{}) { delete(m, "timestamp") }},
		{"fractional timestamp", func(m map[string]interface{}) { m["timestamp"] = "1767970800.5" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := make(map[string]interface{}, len(base))
			for k, v := range base {
				values[k] = v
			}
			tt.mutate(values)

			_, err := ParseEventFields(values)
			assert.Error(t, err)
		})
	}
}

func TestHourKeyFromTimestamp(t *testing.T) {
	// 2026-01-09 15:00:00 UTC
	hourKey, epochHour := HourKeyFromTimestamp(1767970800)
	assert.Equal(t, "2026010915", hourKey)
	assert.Equal(t, int64(491103), epochHour)

	// 同一小时内的任意秒落入同一个桶
	lateKey, lateHour := HourKeyFromTimestamp(1767970800 + 3599)
	assert.Equal(t, hourKey, lateKey)
	assert.Equal(t, epochHour, lateHour)

	// 下一小时换桶
	nextKey, nextHour := HourKeyFromTimestamp(1767970800 + 3600)
	assert.Equal(t, "2026010916", nextKey)
	assert.Equal(t, epochHour+1, nextHour)
}
