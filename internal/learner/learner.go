// Package learner 反馈学习器：把用户的唤醒反馈折算为效果样本，
// 以 EMA 方式更新当日触发过的条件的 effectiveness_score，并回填当日调整记录。
package learner

import (
	"context"
	"fmt"
	"time"

	"smartwake/internal/models"
	"smartwake/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FeedbackLearner 反馈学习器
type FeedbackLearner struct {
	feedback    *repository.FeedbackRepository
	conditions  *repository.ConditionsRepository
	adaptations *repository.AdaptationsRepository
	logger      *zap.Logger
}

// NewFeedbackLearner 创建反馈学习器
func NewFeedbackLearner(
	feedback *repository.FeedbackRepository,
	conditions *repository.ConditionsRepository,
	adaptations *repository.AdaptationsRepository,
	logger *zap.Logger,
) *FeedbackLearner {
	return &FeedbackLearner{
		feedback:    feedback,
		conditions:  conditions,
		adaptations: adaptations,
		logger:      logger,
	}
}

// RecordFeedback 记录唤醒反馈并执行学习流程：
//  1. 追加反馈记录
//  2. 对当日触发过的每个条件，按闹钟的 learning_factor 做 EMA 更新
//  3. 回填当日调整记录的效果值
//
// 用户在等待响应，任何存储错误都直接返回给调用方。
func (l *FeedbackLearner) RecordFeedback(ctx context.Context, alarm *models.Alarm, fb *models.WakeUpFeedback) error {
	if alarm == nil {
		return models.NewValidationError("alarm", "alarm is required")
	}
	if fb == nil {
		return models.NewValidationError("feedback", "feedback is required")
	}
	if fb.AlarmID != alarm.AlarmID {
		return models.NewValidationError("alarm_id", "feedback alarm_id does not match alarm")
	}

	// 补全服务端字段
	if fb.FeedbackID == "" {
		fb.FeedbackID = uuid.New().String()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}
	if fb.Date == "" {
		fb.Date = models.DateOf(fb.CreatedAt)
	}

	if err := l.feedback.AppendFeedback(ctx, fb); err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}

	sample := fb.EffectivenessSample()

	l.logger.Info("Recorded wake-up feedback",
		zap.String("alarm_id", fb.AlarmID),
		zap.String("date", fb.Date),
		zap.Int("difficulty", fb.Difficulty),
		zap.Int("feeling", fb.Feeling),
		zap.Float64("effectiveness_sample", sample),
	)

	// 只有当日实际触发过的条件参与学习，未触发的条件不因这次反馈涨落
	triggered, err := l.conditions.ListTriggeredOn(ctx, fb.AlarmID, fb.Date)
	if err != nil {
		return fmt.Errorf("failed to list triggered conditions: %w", err)
	}

	for _, cond := range triggered {
		if err := l.conditions.ApplyEffectivenessSample(ctx, cond.ConditionID, alarm.LearningFactor, sample); err != nil {
			return fmt.Errorf("failed to update effectiveness for condition %s: %w", cond.ConditionID, err)
		}
		l.logger.Debug("Updated condition effectiveness",
			zap.String("condition_id", cond.ConditionID),
			zap.String("condition_type", string(cond.Type)),
			zap.Float64("learning_factor", alarm.LearningFactor),
			zap.Float64("sample", sample),
		)
	}

	backfilled, err := l.adaptations.BackfillEffectiveness(ctx, fb.AlarmID, fb.Date, sample)
	if err != nil {
		return fmt.Errorf("failed to backfill adaptation effectiveness: %w", err)
	}

	l.logger.Info("Feedback learning completed",
		zap.String("alarm_id", fb.AlarmID),
		zap.Int("conditions_updated", len(triggered)),
		zap.Int64("records_backfilled", backfilled),
	)

	return nil
}
