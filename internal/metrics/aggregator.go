// Package metrics 闹钟效果指标聚合（只读，按需计算，不持久化）
package metrics

import (
	"context"
	"fmt"
	"time"

	"smartwake/internal/models"
	"smartwake/internal/repository"

	"go.uber.org/zap"
)

const (
	qualityTrendSize = 7 // 质量趋势取最近 7 次反馈
	topConditions    = 3

	difficultyAdviceThreshold   = 3.5
	satisfactionAdviceThreshold = 0.4
	staleAdaptationDays         = 7
	defaultSuccessRate          = 0.5 // 无回填记录时的中性默认值
)

// Aggregator 指标聚合器
type Aggregator struct {
	alarms      *repository.AlarmsRepository
	conditions  *repository.ConditionsRepository
	adaptations *repository.AdaptationsRepository
	feedback    *repository.FeedbackRepository
	logger      *zap.Logger
}

// NewAggregator 创建指标聚合器
func NewAggregator(
	alarms *repository.AlarmsRepository,
	conditions *repository.ConditionsRepository,
	adaptations *repository.AdaptationsRepository,
	feedback *repository.FeedbackRepository,
	logger *zap.Logger,
) *Aggregator {
	return &Aggregator{
		alarms:      alarms,
		conditions:  conditions,
		adaptations: adaptations,
		feedback:    feedback,
		logger:      logger,
	}
}

// GetMetrics 汇总最近 30 天的闹钟效果指标
func (a *Aggregator) GetMetrics(ctx context.Context, alarmID string) (*models.SmartAlarmMetrics, error) {
	alarm, err := a.alarms.GetAlarm(ctx, alarmID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	since := models.DateOf(now.AddDate(0, 0, -models.MetricsWindowDays))

	records, err := a.adaptations.ListRecordsSince(ctx, alarmID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load adaptation records: %w", err)
	}

	feedback, err := a.feedback.ListFeedbackSince(ctx, alarmID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	topTypes, err := a.conditions.TopEffectiveTypes(ctx, alarmID, topConditions)
	if err != nil {
		return nil, fmt.Errorf("failed to load top condition types: %w", err)
	}

	metrics := &models.SmartAlarmMetrics{
		AlarmID:                 alarmID,
		AverageWakeUpDifficulty: averageDifficulty(feedback),
		SleepQualityTrend:       qualityTrend(feedback),
		AdaptationSuccessRate:   successRate(records),
		UserSatisfaction:        averageSatisfaction(feedback),
		MostEffectiveConditions: topTypes,
		WindowDays:              models.MetricsWindowDays,
		GeneratedAt:             now,
	}
	metrics.Recommendations = buildRecommendations(alarm, metrics, records, len(feedback), now)

	a.logger.Debug("Aggregated alarm metrics",
		zap.String("alarm_id", alarmID),
		zap.Int("adaptation_records", len(records)),
		zap.Int("feedback_entries", len(feedback)),
	)

	return metrics, nil
}

// averageDifficulty 难度序数均值（1-5），无反馈时为 0
func averageDifficulty(feedback []*models.WakeUpFeedback) float64 {
	if len(feedback) == 0 {
		return 0
	}
	sum := 0
	for _, fb := range feedback {
		sum += fb.Difficulty
	}
	return float64(sum) / float64(len(feedback))
}

// averageSatisfaction 感受归一化均值（0-1），无反馈时为 0
func averageSatisfaction(feedback []*models.WakeUpFeedback) float64 {
	if len(feedback) == 0 {
		return 0
	}
	sum := 0.0
	for _, fb := range feedback {
		sum += fb.NormalizedFeeling()
	}
	return sum / float64(len(feedback))
}

// qualityTrend 最近 7 次反馈的睡眠质量，时间正序
func qualityTrend(feedback []*models.WakeUpFeedback) []int {
	start := 0
	if len(feedback) > qualityTrendSize {
		start = len(feedback) - qualityTrendSize
	}
	trend := make([]int, 0, qualityTrendSize)
	for _, fb := range feedback[start:] {
		trend = append(trend, fb.SleepQuality)
	}
	return trend
}

// successRate 已回填效果值的均值，尚无回填时取中性默认值
func successRate(records []*models.AdaptationRecord) float64 {
	sum := 0.0
	n := 0
	for _, r := range records {
		if r.Effectiveness != nil {
			sum += *r.Effectiveness
			n++
		}
	}
	if n == 0 {
		return defaultSuccessRate
	}
	return sum / float64(n)
}

// buildRecommendations 规则式建议
func buildRecommendations(
	alarm *models.Alarm,
	metrics *models.SmartAlarmMetrics,
	records []*models.AdaptationRecord,
	feedbackCount int,
	now time.Time,
) []string {
	recommendations := []string{}

	if feedbackCount > 0 && metrics.AverageWakeUpDifficulty > difficultyAdviceThreshold {
		recommendations = append(recommendations,
			"Waking up has been difficult lately. Consider widening the wake window so the alarm can catch lighter sleep phases.")
	}
	if feedbackCount > 0 && metrics.UserSatisfaction < satisfactionAdviceThreshold {
		recommendations = append(recommendations,
			"Morning satisfaction is low. An earlier bedtime may improve wake-up quality.")
	}
	if alarm.Enabled && alarm.RealTimeAdaptation && !hasRecentRecord(records, now) {
		recommendations = append(recommendations,
			"Adaptation is enabled but the wake time has not been adjusted in the last 7 days. Check that condition readings are being published.")
	}
	if qualityDeclining(metrics.SleepQualityTrend) {
		recommendations = append(recommendations,
			"Sleep quality is trending downward across recent feedback. Reviewing evening routine may help.")
	}

	return recommendations
}

// hasRecentRecord 最近 7 天内是否有过调整记录（日期字符串按 YYYY-MM-DD 比较）
func hasRecentRecord(records []*models.AdaptationRecord, now time.Time) bool {
	cutoff := models.DateOf(now.AddDate(0, 0, -staleAdaptationDays))
	for _, r := range records {
		if r.Date >= cutoff {
			return true
		}
	}
	return false
}

// qualityDeclining 趋势后半段均值比前半段低 0.5 分以上视为下滑
func qualityDeclining(trend []int) bool {
	if len(trend) < 4 {
		return false
	}
	mid := len(trend) / 2
	first := 0.0
	for _, q := range trend[:mid] {
		first += float64(q)
	}
	first /= float64(mid)

	second := 0.0
	for _, q := range trend[mid:] {
		second += float64(q)
	}
	second /= float64(len(trend) - mid)

	return second < first-0.5
}
