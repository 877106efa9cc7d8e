package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/11346070/HealthTrack/internal/metrics"
	"github.com/11346070/HealthTrack/internal/models"
)

const (
	defaultTopK         = 10
	defaultRecentAlerts = 10
	defaultHourlyWindow = 24
	maxHourlyWindow     = 168
)

// QueryLayer 读侧查询能力（由 analytics.Analytics 实现）
type QueryLayer interface {
	HourlyAverages(ctx context.Context, subjectID string, lastNHours int) ([]models.HourSummary, error)
	TopBloodPressure(ctx context.Context, k int) ([]models.BPEntry, error)
}

// RecentAlertsProvider 最近告警来源（由 subscriber.AlertSubscriber 实现）
type RecentAlertsProvider interface {
	Recent(limit int) []models.RecentAlert
}

// Handler 只读查询 API
// 面向展示层的消费契约；没有任何写入路径
type Handler struct {
	queries QueryLayer
	recent  RecentAlertsProvider
	logger  *zap.Logger
}

// NewHandler 创建查询 API 处理器
func NewHandler(queries QueryLayer, recent RecentAlertsProvider, logger *zap.Logger) *Handler {
	return &Handler{
		queries: queries,
		recent:  recent,
		logger:  logger,
	}
}

// Routes 注册路由
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/dashboard", h.GetDashboard)
	mux.HandleFunc("/api/v1/hourly", h.GetHourly)
	mux.HandleFunc("/healthz", h.Healthz)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// GetDashboard 返回 {top_bp, recent_alerts}
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	k := parseInt(r.URL.Query().Get("k"), defaultTopK)
	limit := parseInt(r.URL.Query().Get("alerts"), defaultRecentAlerts)

	topBP, err := h.queries.TopBloodPressure(r.Context(), k)
	if err != nil {
		h.logger.Error("Failed to query top blood pressure", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
		return
	}
	if topBP == nil {
		topBP = []models.BPEntry{}
	}

	alerts := h.recent.Recent(limit)
	if alerts == nil {
		alerts = []models.RecentAlert{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"top_bp":        topBP,
		"recent_alerts": alerts,
	})
}

// GetHourly 返回对象最近 N 小时的小时摘要
// 参数: subject_id（必填）、hours（默认 24，上限 168）
func (h *Handler) GetHourly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	subjectID := r.URL.Query().Get("subject_id")
	if subjectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "subject_id is required"})
		return
	}
	hours := parseInt(r.URL.Query().Get("hours"), defaultHourlyWindow)
	if hours <= 0 || hours > maxHourlyWindow {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "hours out of range"})
		return
	}

	summaries, err := h.queries.HourlyAverages(r.Context(), subjectID, hours)
	if err != nil {
		h.logger.Error("Failed to query hourly averages",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
		return
	}
	if summaries == nil {
		summaries = []models.HourSummary{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subject_id": subjectID,
		"hours":      hours,
		"summaries":  summaries,
	})
}

// Healthz 存活探针
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
