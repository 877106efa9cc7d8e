package sensor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/11346070/HealthTrack/internal/config"
	"github.com/11346070/HealthTrack/internal/models"
	"github.com/11346070/HealthTrack/internal/producer"
)

// Simulator 模拟传感器
// 按固定间隔为随机对象合成生理采样并提交到生产者
type Simulator struct {
	config   *config.Config
	producer *producer.Producer
	logger   *zap.Logger
	subjects []string
	rnd      *rand.Rand
}

// NewSimulator 创建模拟传感器
func NewSimulator(cfg *config.Config, p *producer.Producer, logger *zap.Logger) *Simulator {
	subjects := make([]string, cfg.Sensor.Subjects)
	for i := range subjects {
		subjects[i] = fmt.Sprintf("subject%d", i+1)
	}
	return &Simulator{
		config:   cfg,
		producer: p,
		logger:   logger,
		subjects: subjects,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start 启动采样循环，随 ctx 取消而停止
func (s *Simulator) Start(ctx context.Context) error {
	s.logger.Info("Sensor simulator started",
		zap.Int("subjects", len(s.subjects)),
		zap.Duration("interval", s.config.Sensor.Interval),
	)

	ticker := time.NewTicker(s.config.Sensor.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sensor simulator stopped")
			return nil
		case <-ticker.C:
			subject := s.subjects[s.rnd.Intn(len(s.subjects))]
			ev := s.Generate(subject)
			if _, err := s.producer.Ingest(ctx, ev); err != nil {
				// 提交失败只记录；下一个采样周期继续
				s.logger.Error("Failed to ingest synthesized sample",
					zap.String("subject_id", subject),
					zap.Error(err),
				)
			}
		}
	}
}

// Generate 合成一次采样，取值范围与真实生理区间一致
func (s *Simulator) Generate(subjectID string) *models.TelemetryEvent {
	return &models.TelemetryEvent{
		SubjectID:   subjectID,
		HeartRate:   float64(55 + s.rnd.Intn(86)),  // 55-140
		BPSystolic:  float64(90 + s.rnd.Intn(101)), // 90-190
		BPDiastolic: float64(50 + s.rnd.Intn(51)),  // 50-100
		Temperature: math.Round((36+s.rnd.Float64()*1.8)*10) / 10,
		Timestamp:   time.Now().Unix(),
	}
}
