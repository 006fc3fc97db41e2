package evaluator

import (
	"math"
	"sort"

	"smartwake/internal/models"
)

// 候选时间槽枚举参数
const (
	slotStepMinutes     = 5  // 候选槽间隔
	slotLaterBound      = 10 // 允许晚于基准的上限（分钟）
	feedbackNearMinutes = 15 // 反馈时间偏好的匹配半径（分钟）
	maxSlots            = 5  // 返回的候选槽数量上限
	maxRecentFeedback   = 5  // 参与时间偏好的反馈条数
)

// 各睡眠阶段对置信度的修正
const (
	baseConfidence  = 0.5
	lightStageBonus = 0.3
	remStageBonus   = 0.1
	deepStagePenalty = 0.2
	proximityWeight  = 0.2
)

// OptimalTimeSlots 在 [基准-唤醒窗口, 基准+10] 内按 5 分钟步长枚举候选唤醒槽，
// 结合预测睡眠阶段、与基准的接近度、历史反馈的时间偏好打分，
// 返回置信度降序的前 5 个。每次调用重新计算，不持久化。
func OptimalTimeSlots(alarm *models.Alarm, stages []models.StagePoint, recentFeedback []*models.WakeUpFeedback) []models.OptimalTimeSlot {
	if alarm == nil || alarm.WakeWindowMinutes <= 0 {
		return []models.OptimalTimeSlot{}
	}

	// 阶段查表：当日分钟 → 预测阶段
	stageAt := make(map[int]models.SleepStage, len(stages))
	for _, p := range stages {
		stageAt[models.NormalizeMinutes(p.Minutes)] = p.Stage
	}

	if len(recentFeedback) > maxRecentFeedback {
		recentFeedback = recentFeedback[:maxRecentFeedback]
	}

	baseline := alarm.BaselineMinutes
	window := alarm.WakeWindowMinutes

	slots := []models.OptimalTimeSlot{}
	for offset := -window; offset <= slotLaterBound; offset += slotStepMinutes {
		candidate := models.AddClock(baseline, offset)
		confidence := baseConfidence
		factors := []string{}

		// 1. 睡眠阶段修正
		stage, known := stageAt[candidate]
		if !known {
			stage = models.StageAwake
		}
		switch stage {
		case models.StageLight:
			confidence += lightStageBonus
			factors = append(factors, "light sleep phase")
		case models.StageREM:
			confidence += remStageBonus
			factors = append(factors, "rem sleep phase")
		case models.StageDeep:
			confidence -= deepStagePenalty
			factors = append(factors, "deep sleep phase")
		}

		// 2. 接近基准的奖励，随偏移线性衰减
		distance := math.Abs(float64(offset)) / float64(window)
		proximity := proximityWeight - distance*proximityWeight
		if proximity > 0 {
			confidence += proximity
			factors = append(factors, "close to baseline")
		}

		// 3. 历史反馈的时间偏好：实际醒来时间落在候选槽附近时，
		//    感受越好该槽越可信，感受越差越受惩罚
		feedbackApplied := false
		for _, fb := range recentFeedback {
			diff := models.ClockDiff(fb.ActualWakeMinutes, candidate)
			if diff < 0 {
				diff = -diff
			}
			if diff <= feedbackNearMinutes {
				confidence *= 0.7 + 0.3*fb.NormalizedFeeling()
				feedbackApplied = true
			}
		}
		if feedbackApplied {
			factors = append(factors, "past wake-up feedback")
		}

		// 4. 截断到 [0, 1]
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		slots = append(slots, models.OptimalTimeSlot{
			Minutes:    candidate,
			Time:       models.FormatClock(candidate),
			Confidence: confidence,
			Stage:      stage,
			Factors:    factors,
			Adjustment: offset,
		})
	}

	// 置信度降序，同分保持候选顺序
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Confidence > slots[j].Confidence
	})
	if len(slots) > maxSlots {
		slots = slots[:maxSlots]
	}
	return slots
}

// SleepAdjustment 睡眠模式建议相对基准的带符号偏移，按动态唤醒窗口截断。
// 预测器未给出建议时返回 0。
func SleepAdjustment(alarm *models.Alarm, rec *models.WakeRecommendation, pattern *models.SleepPattern, recentFeedback []*models.WakeUpFeedback) int {
	if alarm == nil || rec == nil {
		return 0
	}

	raw := models.ClockDiff(rec.Minutes, alarm.BaselineMinutes)
	window := int(math.Round(DynamicWakeWindow(alarm, pattern, recentFeedback)))

	if raw > window {
		return window
	}
	if raw < -window {
		return -window
	}
	return raw
}

// DynamicWakeWindow 动态唤醒窗口：
// baseWindow × (0.5 + 0.5×睡眠效率) × 反馈一致性系数。
// 睡眠效率低或近期唤醒困难时窗口收窄，调整更保守。
func DynamicWakeWindow(alarm *models.Alarm, pattern *models.SleepPattern, recentFeedback []*models.WakeUpFeedback) float64 {
	base := float64(alarm.WakeWindowMinutes)

	efficiency := 1.0
	if pattern != nil {
		efficiency = pattern.SleepEfficiency
	}

	consistency := 1.0
	if len(recentFeedback) > 0 {
		if len(recentFeedback) > maxRecentFeedback {
			recentFeedback = recentFeedback[:maxRecentFeedback]
		}
		sum := 0
		for _, fb := range recentFeedback {
			sum += fb.Difficulty
		}
		avgDifficulty := float64(sum) / float64(len(recentFeedback))
		consistency = 0.6 + (5.0-avgDifficulty)*0.1
	}

	return base * (0.5 + 0.5*efficiency) * consistency
}
