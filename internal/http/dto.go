package httpapi

import (
	"time"

	"smartwake/internal/models"
)

// createAlarmRequest 创建闹钟请求体，时间字段使用 "HH:MM"
type createAlarmRequest struct {
	UserID             string   `json:"user_id"`
	Label              string   `json:"label"`
	WakeTime           string   `json:"wake_time"`
	WakeWindowMinutes  *int     `json:"wake_window_minutes"`
	RealTimeAdaptation *bool    `json:"real_time_adaptation"`
	SleepPatternWeight *float64 `json:"sleep_pattern_weight"`
	LearningFactor     *float64 `json:"learning_factor"`
}

// updateAlarmRequest 部分更新请求体，缺省字段保持不变
type updateAlarmRequest struct {
	Label              *string  `json:"label"`
	WakeTime           *string  `json:"wake_time"`
	WakeWindowMinutes  *int     `json:"wake_window_minutes"`
	Enabled            *bool    `json:"enabled"`
	RealTimeAdaptation *bool    `json:"real_time_adaptation"`
	SleepPatternWeight *float64 `json:"sleep_pattern_weight"`
	LearningFactor     *float64 `json:"learning_factor"`
}

// feedbackRequest 唤醒反馈请求体
type feedbackRequest struct {
	Date             string  `json:"date"`
	OriginalWakeTime string  `json:"original_wake_time"`
	ActualWakeTime   string  `json:"actual_wake_time"`
	Difficulty       int     `json:"difficulty"`
	Feeling          int     `json:"feeling"`
	SleepQuality     int     `json:"sleep_quality"`
	TimeToFullyAwake int     `json:"time_to_fully_awake"`
	WokeUpNaturally  bool    `json:"woke_up_naturally"`
	WouldPreferLater bool    `json:"would_prefer_later"`
	Notes            *string `json:"notes,omitempty"`
}

// sleepPatternRequest 睡眠画像请求体
type sleepPatternRequest struct {
	AvgSleepDuration int     `json:"avg_sleep_duration"`
	SleepEfficiency  float64 `json:"sleep_efficiency"`
	TypicalBedTime   string  `json:"typical_bed_time"`
	TypicalWakeTime  string  `json:"typical_wake_time"`
}

// alarmResponse 闹钟响应体，分钟数字段折算为 "HH:MM"
type alarmResponse struct {
	AlarmID            string    `json:"alarm_id"`
	UserID             string    `json:"user_id"`
	Label              string    `json:"label"`
	WakeTime           string    `json:"wake_time"`
	EffectiveWakeTime  string    `json:"effective_wake_time"`
	AdjustedWakeTime   *string   `json:"adjusted_wake_time,omitempty"`
	WakeWindowMinutes  int       `json:"wake_window_minutes"`
	Enabled            bool      `json:"enabled"`
	RealTimeAdaptation bool      `json:"real_time_adaptation"`
	SleepPatternWeight float64   `json:"sleep_pattern_weight"`
	LearningFactor     float64   `json:"learning_factor"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toAlarmResponse(a *models.Alarm) alarmResponse {
	resp := alarmResponse{
		AlarmID:            a.AlarmID,
		UserID:             a.UserID,
		Label:              a.Label,
		WakeTime:           models.FormatClock(a.BaselineMinutes),
		EffectiveWakeTime:  models.FormatClock(a.EffectiveWakeMinutes()),
		WakeWindowMinutes:  a.WakeWindowMinutes,
		Enabled:            a.Enabled,
		RealTimeAdaptation: a.RealTimeAdaptation,
		SleepPatternWeight: a.SleepPatternWeight,
		LearningFactor:     a.LearningFactor,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
	if a.AdjustedMinutes != nil {
		adjusted := models.FormatClock(*a.AdjustedMinutes)
		resp.AdjustedWakeTime = &adjusted
	}
	return resp
}

// tickResponse 手动评估响应体
type tickResponse struct {
	Outcome string        `json:"outcome"`
	Alarm   alarmResponse `json:"alarm"`
}
