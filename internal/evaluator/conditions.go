// Package evaluator 唤醒时间调整的纯函数核心：条件求值、睡眠模式调整、线性融合。
// 所有函数无副作用，相同输入必产生相同输出；I/O 全部由调用方（consumer 循环）承担。
package evaluator

import (
	"math"
	"strings"

	"smartwake/internal/models"
)

// FiredCondition 单个条件的触发结果
type FiredCondition struct {
	ConditionID string
	Type        models.ConditionType
	Minutes     int    // 实际计入的带符号分钟数（effectiveness 加权并截断后）
	Reason      string
}

// ConditionOutcome 条件求值汇总
type ConditionOutcome struct {
	Fired           []FiredCondition
	TotalAdjustment int // 各触发条件调整量的线性和
}

// EvaluateConditions 对启用条件与读数快照求值。
// 读数缺失或形态不符的条件直接跳过（fail-closed），不产生错误；
// last_triggered 的写入推迟到调整实际应用时，由循环负责。
func EvaluateConditions(conditions []*models.ConditionDefinition, reading models.ConditionReading) ConditionOutcome {
	outcome := ConditionOutcome{Fired: []FiredCondition{}}

	for _, cond := range conditions {
		if !cond.Enabled {
			continue
		}

		// 1. 读数缺失是正常情况，跳过
		value, ok := reading.Get(cond.Type)
		if !ok {
			continue
		}

		// 2. 形态与条件类型不符时跳过
		if !cond.Type.AcceptsKind(value.Kind) {
			continue
		}

		// 3. 谓词求值
		if !matchPredicate(&cond.Trigger, value) {
			continue
		}

		// 4. effectiveness 加权并按 maxAdjustment 截断
		applied := clampAdjustment(
			float64(cond.Adjustment.Minutes)*cond.EffectivenessScore,
			cond.Adjustment.MaxAdjustment,
		)

		outcome.Fired = append(outcome.Fired, FiredCondition{
			ConditionID: cond.ConditionID,
			Type:        cond.Type,
			Minutes:     applied,
			Reason:      cond.Adjustment.Reason,
		})
		outcome.TotalAdjustment += applied
	}

	return outcome
}

// matchPredicate 谓词匹配
func matchPredicate(p *models.TriggerPredicate, value models.ReadingValue) bool {
	switch p.Operator {
	case models.OpEquals:
		return value.Equals(p.Value)

	case models.OpGreaterThan:
		n, ok := value.AsNumber()
		if !ok {
			return false
		}
		threshold, ok := p.NumericThreshold()
		if !ok {
			return false
		}
		return n > threshold

	case models.OpLessThan:
		n, ok := value.AsNumber()
		if !ok {
			return false
		}
		threshold, ok := p.NumericThreshold()
		if !ok {
			return false
		}
		return n < threshold

	case models.OpContains:
		// 列表读数按成员匹配，其余按文本子串匹配
		if value.Kind == models.ReadingList {
			target := p.Value.String()
			for _, item := range value.List {
				if item == target {
					return true
				}
			}
			return false
		}
		return strings.Contains(value.String(), p.Value.String())
	}

	return false
}

// clampAdjustment 四舍五入后把幅度截断到 ±max
func clampAdjustment(raw float64, max int) int {
	n := int(math.Round(raw))
	if n > max {
		return max
	}
	if n < -max {
		return -max
	}
	return n
}
