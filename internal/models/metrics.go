package models

import (
	"time"
)

// MetricsWindowDays 指标统计窗口（天）
const MetricsWindowDays = 30

// SmartAlarmMetrics 闹钟效果汇总指标（读侧按需计算）
type SmartAlarmMetrics struct {
	AlarmID                 string          `json:"alarm_id"`
	AverageWakeUpDifficulty float64         `json:"average_wake_up_difficulty"` // 序数均值 1-5
	SleepQualityTrend       []int           `json:"sleep_quality_trend"`        // 最近 7 次，时间正序
	AdaptationSuccessRate   float64         `json:"adaptation_success_rate"`    // 0-1
	UserSatisfaction        float64         `json:"user_satisfaction"`          // 0-1
	MostEffectiveConditions []ConditionType `json:"most_effective_conditions"`  // 前 3
	Recommendations         []string        `json:"recommendations"`
	WindowDays              int             `json:"window_days"`
	GeneratedAt             time.Time       `json:"generated_at"`
}
