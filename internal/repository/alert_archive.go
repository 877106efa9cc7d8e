package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/11346070/HealthTrack/internal/models"
)

// AlertArchiveRepository 告警归档仓库（PostgreSQL）
// 将审计流中的告警落库，供长期留存与离线查询
type AlertArchiveRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertArchiveRepository 创建告警归档仓库
func NewAlertArchiveRepository(db *sql.DB, logger *zap.Logger) *AlertArchiveRepository {
	return &AlertArchiveRepository{
		db:     db,
		logger: logger,
	}
}

// Insert 插入一条告警归档记录，返回行 ID
func (r *AlertArchiveRepository) Insert(entryID string, alert *models.AlertEvent) (int64, error) {
	rules, err := json.Marshal(alert.TriggeredRules)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal triggered rules: %w", err)
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	query := `
		INSERT INTO alert_events (
			entry_id,
			alert_id,
			subject_id,
			event_time,
			triggered_rules,
			payload,
			created_at
		) VALUES (
			$1, $2, $3, to_timestamp($4), $5, $6, NOW()
		)
		RETURNING id
	`

	var id int64
	err = r.db.QueryRow(
		query,
		entryID,
		alert.AlertID,
		alert.SubjectID,
		alert.Timestamp,
		string(rules),
		string(payload),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert archive row: %w", err)
	}

	return id, nil
}
