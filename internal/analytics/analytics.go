package analytics

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/11346070/HealthTrack/internal/models"
	"github.com/11346070/HealthTrack/internal/repository"
)

// Analytics 读侧分析查询层
// 基于聚合器维护的小时索引/摘要与生产者维护的快照回答查询
type Analytics struct {
	telemetryRepo *repository.TelemetryRepository
	aggRepo       *repository.AggregateRepository
	logger        *zap.Logger

	// now 可注入以便测试固定当前时间
	now func() time.Time
}

// NewAnalytics 创建分析查询层
func NewAnalytics(
	telemetryRepo *repository.TelemetryRepository,
	aggRepo *repository.AggregateRepository,
	logger *zap.Logger,
) *Analytics {
	return &Analytics{
		telemetryRepo: telemetryRepo,
		aggRepo:       aggRepo,
		logger:        logger,
		now:           time.Now,
	}
}

// HourlyAverages 查询对象最近 N 小时的小时摘要，按小时升序返回
// 窗口为 [nowHour-N+1, nowHour]；已过期或从未写入的摘要静默跳过
func (a *Analytics) HourlyAverages(ctx context.Context, subjectID string, lastNHours int) ([]models.HourSummary, error) {
	if lastNHours <= 0 {
		return nil, nil
	}

	nowHour := a.now().Unix() / 3600
	hourKeys, err := a.aggRepo.HourKeysInRange(ctx, subjectID, nowHour-int64(lastNHours)+1, nowHour)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.HourSummary, 0, len(hourKeys))
	for _, hourKey := range hourKeys {
		summary, err := a.aggRepo.GetHourSummary(ctx, subjectID, hourKey)
		if err != nil {
			if errors.Is(err, repository.ErrMiss) {
				continue
			}
			return nil, err
		}
		summaries = append(summaries, *summary)
	}

	return summaries, nil
}

// TopBloodPressure 按当前收缩压降序返回前 k 名对象
// 收缩压相同时按对象 ID 升序（稳定、确定的平局规则）。
// 成本与有快照的对象数线性相关；没有增量维护的排行结构，
// 仅在对象基数较小时可接受
func (a *Analytics) TopBloodPressure(ctx context.Context, k int) ([]models.BPEntry, error) {
	if k <= 0 {
		return nil, nil
	}

	snapshots, err := a.telemetryRepo.AllSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]models.BPEntry, 0, len(snapshots))
	for _, s := range snapshots {
		entries = append(entries, models.BPEntry{
			SubjectID:  s.SubjectID,
			BPSystolic: s.BPSystolic,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].BPSystolic != entries[j].BPSystolic {
			return entries[i].BPSystolic > entries[j].BPSystolic
		}
		return entries[i].SubjectID < entries[j].SubjectID
	})

	if len(entries) > k {
		entries = entries[:k]
	}
	return entries, nil
}
