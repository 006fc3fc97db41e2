package models

import (
	"time"
)

// SleepStage 睡眠阶段（由外部预测器分类）
type SleepStage string

const (
	StageAwake SleepStage = "awake"
	StageLight SleepStage = "light"
	StageDeep  SleepStage = "deep"
	StageREM   SleepStage = "rem"
)

// StagePoint 某一当日分钟的预测睡眠阶段
type StagePoint struct {
	Minutes int        `json:"minutes"`
	Stage   SleepStage `json:"stage"`
}

// WakeRecommendation 预测器给出的唤醒时间建议
type WakeRecommendation struct {
	Minutes    int     `json:"minutes"`
	Confidence float64 `json:"confidence"`
}

// OptimalTimeSlot 候选唤醒时间槽（按需重算，不持久化）
type OptimalTimeSlot struct {
	Minutes    int        `json:"minutes"`
	Time       string     `json:"time"` // "HH:MM"
	Confidence float64    `json:"confidence"`
	Stage      SleepStage `json:"predicted_stage"`
	Factors    []string   `json:"factors"`
	Adjustment int        `json:"adjustment_minutes"` // 相对基准的带符号偏移
}

// AdaptationSource 一次调整的主导来源
type AdaptationSource string

const (
	SourceSleepPattern AdaptationSource = "sleep_pattern"
	SourceCondition    AdaptationSource = "condition"
	SourceUserFeedback AdaptationSource = "user_feedback"
	SourceLearning     AdaptationSource = "learning"
)

// AdaptationRecord 调整历史记录（对应 adaptation_records 表，只追加）
type AdaptationRecord struct {
	RecordID        string           `json:"record_id" db:"record_id"`
	AlarmID         string           `json:"alarm_id" db:"alarm_id"`
	Date            string           `json:"date" db:"date"` // YYYY-MM-DD
	OriginalMinutes int              `json:"original_minutes" db:"original_minutes"`
	AdjustedMinutes int              `json:"adjusted_minutes" db:"adjusted_minutes"`
	Reason          string           `json:"reason" db:"reason"`
	Source          AdaptationSource `json:"source" db:"source"`
	Effectiveness   *float64         `json:"effectiveness,omitempty" db:"effectiveness"` // 反馈回填，一次性
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
}

// AdjustmentMinutes 本条记录实际应用的带符号偏移（跨午夜取最短差）
func (r *AdaptationRecord) AdjustmentMinutes() int {
	return ClockDiff(r.AdjustedMinutes, r.OriginalMinutes)
}
