package models

import (
	"time"
)

// 自适应参数默认值
const (
	DefaultSleepPatternWeight = 0.7
	DefaultLearningFactor     = 0.3
	DefaultWakeWindowMinutes  = 30
)

// Alarm 自适应闹钟（对应 alarms 表）
type Alarm struct {
	AlarmID            string     `json:"alarm_id" db:"alarm_id"`
	UserID             string     `json:"user_id" db:"user_id"`
	Label              string     `json:"label" db:"label"`
	BaselineMinutes    int        `json:"baseline_minutes" db:"baseline_minutes"`       // 基准唤醒时间（当日分钟数）
	WakeWindowMinutes  int        `json:"wake_window_minutes" db:"wake_window_minutes"` // 最大提前量（分钟）
	Enabled            bool       `json:"enabled" db:"enabled"`
	RealTimeAdaptation bool       `json:"real_time_adaptation" db:"real_time_adaptation"`
	SleepPatternWeight float64    `json:"sleep_pattern_weight" db:"sleep_pattern_weight"` // 0-1，默认 0.7
	LearningFactor     float64    `json:"learning_factor" db:"learning_factor"`           // 0-1，默认 0.3
	AdjustedMinutes    *int       `json:"adjusted_minutes,omitempty" db:"adjusted_minutes"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// EffectiveWakeMinutes 当前生效的唤醒时间（已调整则取调整值，否则取基准）
func (a *Alarm) EffectiveWakeMinutes() int {
	if a.AdjustedMinutes != nil {
		return *a.AdjustedMinutes
	}
	return a.BaselineMinutes
}

// Validate 校验闹钟配置
func (a *Alarm) Validate() error {
	if a.UserID == "" {
		return NewValidationError("user_id", "user_id is required")
	}
	if a.BaselineMinutes < 0 || a.BaselineMinutes >= MinutesPerDay {
		return NewValidationError("baseline_minutes", "baseline time must be within a single day")
	}
	if a.WakeWindowMinutes <= 0 || a.WakeWindowMinutes > 180 {
		return NewValidationError("wake_window_minutes", "wake window must be in (0, 180] minutes")
	}
	if a.SleepPatternWeight < 0 || a.SleepPatternWeight > 1 {
		return NewValidationError("sleep_pattern_weight", "weight must be in [0, 1]")
	}
	if a.LearningFactor < 0 || a.LearningFactor > 1 {
		return NewValidationError("learning_factor", "learning factor must be in [0, 1]")
	}
	return nil
}

// SleepPattern 用户睡眠画像摘要（对应 sleep_patterns 表，引擎只读）
type SleepPattern struct {
	UserID             string    `json:"user_id" db:"user_id"`
	AvgSleepDuration   int       `json:"avg_sleep_duration" db:"avg_sleep_duration"` // 分钟
	SleepEfficiency    float64   `json:"sleep_efficiency" db:"sleep_efficiency"`     // 0-1
	TypicalBedMinutes  int       `json:"typical_bed_minutes" db:"typical_bed_minutes"`
	TypicalWakeMinutes int       `json:"typical_wake_minutes" db:"typical_wake_minutes"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultSleepPattern 无画像数据时的保守默认值
func DefaultSleepPattern(userID string) *SleepPattern {
	return &SleepPattern{
		UserID:             userID,
		AvgSleepDuration:   8 * 60,
		SleepEfficiency:    1.0,
		TypicalBedMinutes:  23 * 60,
		TypicalWakeMinutes: 7 * 60,
	}
}
