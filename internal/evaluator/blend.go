package evaluator

import (
	"math"
)

// DefaultSignificanceThreshold 默认显著性阈值（分钟），低于该幅度的融合结果不应用
const DefaultSignificanceThreshold = 5

// BlendResult 条件调整与睡眠模式调整的融合结果
type BlendResult struct {
	ConditionAdjustment int
	SleepAdjustment     int
	Blended             int     // round(condition×(1-w) + sleep×w)
	Significant         bool    // |Blended| 是否达到显著性阈值
	Confidence          float64 // 信息性字段，不作为应用门槛
}

// Blend 线性融合两路调整。
// weight 是睡眠模式一路的权重（0-1）；threshold<=0 时使用默认阈值。
func Blend(conditionAdj, sleepAdj int, weight float64, threshold int) BlendResult {
	if threshold <= 0 {
		threshold = DefaultSignificanceThreshold
	}

	blended := int(math.Round(
		float64(conditionAdj)*(1-weight) + float64(sleepAdj)*weight,
	))

	magnitude := blended
	if magnitude < 0 {
		magnitude = -magnitude
	}

	return BlendResult{
		ConditionAdjustment: conditionAdj,
		SleepAdjustment:     sleepAdj,
		Blended:             blended,
		Significant:         magnitude >= threshold,
		Confidence:          blendConfidence(conditionAdj, sleepAdj),
	}
}

// blendConfidence 融合置信度 = 0.5 + 两路一致性奖励 + 幅度奖励，封顶 1.0。
// 两路调整方向与幅度接近（差距 ≤ 10 分钟）时 +0.3；
// 合计幅度每 30 分钟折算 1.0，封顶 0.3。
func blendConfidence(conditionAdj, sleepAdj int) float64 {
	confidence := 0.5

	gap := conditionAdj - sleepAdj
	if gap < 0 {
		gap = -gap
	}
	if gap <= 10 {
		confidence += 0.3
	}

	total := math.Abs(float64(conditionAdj + sleepAdj))
	magnitudeBonus := total / 30.0
	if magnitudeBonus > 0.3 {
		magnitudeBonus = 0.3
	}
	confidence += magnitudeBonus

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// ClampToWindow 把带符号偏移截断到 ±window（最终应用前的静态窗口保险）
func ClampToWindow(adjustment, window int) int {
	if adjustment > window {
		return window
	}
	if adjustment < -window {
		return -window
	}
	return adjustment
}
