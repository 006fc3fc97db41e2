package models

import (
	"time"
)

// 唤醒难度序数（1 最轻松，5 最困难）
const (
	DifficultyVeryEasy = 1
	DifficultyEasy     = 2
	DifficultyNormal   = 3
	DifficultyHard     = 4
	DifficultyVeryHard = 5
)

// 醒后感受序数（1 最差，5 最好）
const (
	FeelingTerrible  = 1
	FeelingBad       = 2
	FeelingOkay      = 3
	FeelingGood      = 4
	FeelingExcellent = 5
)

// WakeUpFeedback 用户唤醒反馈（对应 wake_feedback 表，只追加）
type WakeUpFeedback struct {
	FeedbackID        string    `json:"feedback_id" db:"feedback_id"`
	AlarmID           string    `json:"alarm_id" db:"alarm_id"`
	Date              string    `json:"date" db:"date"` // YYYY-MM-DD
	OriginalMinutes   int       `json:"original_minutes" db:"original_minutes"`
	ActualWakeMinutes int       `json:"actual_wake_minutes" db:"actual_wake_minutes"`
	Difficulty        int       `json:"difficulty" db:"difficulty"`       // 1-5
	Feeling           int       `json:"feeling" db:"feeling"`             // 1-5
	SleepQuality      int       `json:"sleep_quality" db:"sleep_quality"` // 1-10
	TimeToFullyAwake  int       `json:"time_to_fully_awake" db:"time_to_fully_awake"` // 分钟
	WokeUpNaturally   bool      `json:"woke_up_naturally" db:"woke_up_naturally"`
	WouldPreferLater  bool      `json:"would_prefer_later" db:"would_prefer_later"`
	Notes             *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// Validate 校验反馈取值范围
func (f *WakeUpFeedback) Validate() error {
	if f.AlarmID == "" {
		return NewValidationError("alarm_id", "alarm_id is required")
	}
	if f.Difficulty < DifficultyVeryEasy || f.Difficulty > DifficultyVeryHard {
		return NewValidationError("difficulty", "difficulty must be in [1, 5]")
	}
	if f.Feeling < FeelingTerrible || f.Feeling > FeelingExcellent {
		return NewValidationError("feeling", "feeling must be in [1, 5]")
	}
	if f.SleepQuality < 1 || f.SleepQuality > 10 {
		return NewValidationError("sleep_quality", "sleep quality must be in [1, 10]")
	}
	if f.ActualWakeMinutes < 0 || f.ActualWakeMinutes >= MinutesPerDay {
		return NewValidationError("actual_wake_minutes", "actual wake time must be within a single day")
	}
	if f.TimeToFullyAwake < 0 {
		return NewValidationError("time_to_fully_awake", "time to fully awake must be non-negative")
	}
	return nil
}

// NormalizedDifficulty 难度归一化到 [0,1]，方向反转（越轻松越接近 1）
func (f *WakeUpFeedback) NormalizedDifficulty() float64 {
	return float64(DifficultyVeryHard-f.Difficulty) / 4.0
}

// NormalizedFeeling 感受归一化到 [0,1]
func (f *WakeUpFeedback) NormalizedFeeling() float64 {
	return float64(f.Feeling-FeelingTerrible) / 4.0
}

// NormalizedQuality 睡眠质量归一化到 [0,1]
func (f *WakeUpFeedback) NormalizedQuality() float64 {
	return float64(f.SleepQuality-1) / 9.0
}

// EffectivenessSample 本次反馈折算的效果样本（三项归一化均值）
func (f *WakeUpFeedback) EffectivenessSample() float64 {
	return (f.NormalizedDifficulty() + f.NormalizedFeeling() + f.NormalizedQuality()) / 3.0
}
