package models

import (
	"time"
)

// ConditionType 外部条件信号类型
type ConditionType string

const (
	ConditionWeather     ConditionType = "weather"
	ConditionCalendar    ConditionType = "calendar"
	ConditionSleepDebt   ConditionType = "sleep_debt"
	ConditionStressLevel ConditionType = "stress_level"
	ConditionExercise    ConditionType = "exercise"
	ConditionScreenTime  ConditionType = "screen_time"
)

// Valid 是否为已知条件类型
func (t ConditionType) Valid() bool {
	switch t {
	case ConditionWeather, ConditionCalendar, ConditionSleepDebt,
		ConditionStressLevel, ConditionExercise, ConditionScreenTime:
		return true
	}
	return false
}

// expectedKinds 每种条件类型允许的读数形态（不匹配时求值直接跳过）
var expectedKinds = map[ConditionType][]ReadingKind{
	ConditionWeather:     {ReadingString, ReadingList},
	ConditionCalendar:    {ReadingNumber, ReadingBool},
	ConditionSleepDebt:   {ReadingNumber},
	ConditionStressLevel: {ReadingNumber},
	ConditionExercise:    {ReadingNumber, ReadingBool},
	ConditionScreenTime:  {ReadingNumber},
}

// AcceptsKind 条件类型是否接受该读数形态
func (t ConditionType) AcceptsKind(k ReadingKind) bool {
	for _, allowed := range expectedKinds[t] {
		if allowed == k {
			return true
		}
	}
	return false
}

// PredicateOperator 触发谓词运算符
type PredicateOperator string

const (
	OpEquals      PredicateOperator = "equals"
	OpGreaterThan PredicateOperator = "greater_than"
	OpLessThan    PredicateOperator = "less_than"
	OpContains    PredicateOperator = "contains"
)

// Valid 是否为已知运算符
func (op PredicateOperator) Valid() bool {
	switch op {
	case OpEquals, OpGreaterThan, OpLessThan, OpContains:
		return true
	}
	return false
}

// TriggerPredicate 条件触发谓词
type TriggerPredicate struct {
	Operator  PredicateOperator `json:"operator"`
	Value     ReadingValue      `json:"value"`
	Threshold *float64          `json:"threshold,omitempty"` // 数值比较阈值，缺省回退到 Value
}

// NumericThreshold 数值比较用的阈值（Threshold 优先，其次数值形态的 Value）
func (p *TriggerPredicate) NumericThreshold() (float64, bool) {
	if p.Threshold != nil {
		return *p.Threshold, true
	}
	return p.Value.AsNumber()
}

// AdjustmentSpec 条件触发后的调整量
type AdjustmentSpec struct {
	Minutes       int    `json:"minutes"`        // 带符号，负值表示提前
	MaxAdjustment int    `json:"max_adjustment"` // 幅度上限（无符号分钟数）
	Reason        string `json:"reason"`
}

// ConditionDefinition 条件定义（对应 alarm_conditions 表）
type ConditionDefinition struct {
	ConditionID        string           `json:"condition_id" db:"condition_id"`
	AlarmID            string           `json:"alarm_id" db:"alarm_id"`
	Type               ConditionType    `json:"type" db:"condition_type"`
	Enabled            bool             `json:"enabled" db:"enabled"`
	Priority           int              `json:"priority" db:"priority"` // 1-5，仅用于排序展示
	Trigger            TriggerPredicate `json:"trigger" db:"trigger"`
	Adjustment         AdjustmentSpec   `json:"adjustment" db:"adjustment"`
	EffectivenessScore float64          `json:"effectiveness_score" db:"effectiveness_score"` // 0-1
	LastTriggered      *time.Time       `json:"last_triggered,omitempty" db:"last_triggered"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at"`
}

// Validate 校验条件定义
func (c *ConditionDefinition) Validate() error {
	if c.AlarmID == "" {
		return NewValidationError("alarm_id", "alarm_id is required")
	}
	if !c.Type.Valid() {
		return NewValidationError("type", "unknown condition type: "+string(c.Type))
	}
	if c.Priority < 1 || c.Priority > 5 {
		return NewValidationError("priority", "priority must be in [1, 5]")
	}
	if !c.Trigger.Operator.Valid() {
		return NewValidationError("trigger.operator", "unknown operator: "+string(c.Trigger.Operator))
	}
	if c.Adjustment.MaxAdjustment < 0 {
		return NewValidationError("adjustment.max_adjustment", "max_adjustment must be non-negative")
	}
	if abs(c.Adjustment.Minutes) > c.Adjustment.MaxAdjustment {
		return NewValidationError("adjustment.minutes", "adjustment exceeds max_adjustment")
	}
	if c.Adjustment.Reason == "" {
		return NewValidationError("adjustment.reason", "reason is required")
	}
	if c.EffectivenessScore < 0 || c.EffectivenessScore > 1 {
		return NewValidationError("effectiveness_score", "effectiveness score must be in [0, 1]")
	}
	return nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// floatPtr 预置条件用的阈值指针
func floatPtr(f float64) *float64 {
	return &f
}

// DefaultConditionPresets 新建闹钟时安装的默认条件集。
// 初始 effectiveness 按信号可靠性预置在 0.5-0.9，后续由反馈学习收敛。
func DefaultConditionPresets() []ConditionDefinition {
	return []ConditionDefinition{
		{
			Type:     ConditionWeather,
			Enabled:  true,
			Priority: 2,
			Trigger: TriggerPredicate{
				Operator: OpContains,
				Value:    StringValue("rain"),
			},
			Adjustment: AdjustmentSpec{
				Minutes:       -10,
				MaxAdjustment: 20,
				Reason:        "rainy weather slows the morning commute",
			},
			EffectivenessScore: 0.8,
		},
		{
			Type:     ConditionCalendar,
			Enabled:  true,
			Priority: 1,
			Trigger: TriggerPredicate{
				Operator:  OpGreaterThan,
				Value:     NumberValue(4),
				Threshold: floatPtr(4),
			},
			Adjustment: AdjustmentSpec{
				Minutes:       -15,
				MaxAdjustment: 25,
				Reason:        "busy calendar needs an earlier start",
			},
			EffectivenessScore: 0.7,
		},
		{
			Type:     ConditionSleepDebt,
			Enabled:  true,
			Priority: 1,
			Trigger: TriggerPredicate{
				Operator:  OpGreaterThan,
				Value:     NumberValue(2),
				Threshold: floatPtr(2),
			},
			Adjustment: AdjustmentSpec{
				Minutes:       15,
				MaxAdjustment: 30,
				Reason:        "accumulated sleep debt favors extra rest",
			},
			EffectivenessScore: 0.9,
		},
		{
			Type:     ConditionStressLevel,
			Enabled:  true,
			Priority: 3,
			Trigger: TriggerPredicate{
				Operator:  OpGreaterThan,
				Value:     NumberValue(70),
				Threshold: floatPtr(70),
			},
			Adjustment: AdjustmentSpec{
				Minutes:       10,
				MaxAdjustment: 20,
				Reason:        "high stress benefits from a gentler wake",
			},
			EffectivenessScore: 0.6,
		},
		{
			Type:     ConditionExercise,
			Enabled:  true,
			Priority: 4,
			Trigger: TriggerPredicate{
				Operator:  OpGreaterThan,
				Value:     NumberValue(60),
				Threshold: floatPtr(60),
			},
			Adjustment: AdjustmentSpec{
				Minutes:       5,
				MaxAdjustment: 15,
				Reason:        "hard training day earns extra recovery",
			},
			EffectivenessScore: 0.5,
		},
		{
			Type:     ConditionScreenTime,
			Enabled:  true,
			Priority: 5,
			Trigger: TriggerPredicate{
				Operator:  OpGreaterThan,
				Value:     NumberValue(120),
				Threshold: floatPtr(120),
			},
			Adjustment: AdjustmentSpec{
				Minutes:       10,
				MaxAdjustment: 20,
				Reason:        "late screen exposure delays sleep onset",
			},
			EffectivenessScore: 0.6,
		},
	}
}
