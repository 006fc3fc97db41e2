// Package consumer 自适应循环：按节拍驱动每个启用闹钟的唤醒时间评估，
// 汇聚条件读数与睡眠阶段预测，把显著的调整落库并广播。
package consumer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"smartwake/internal/config"
	"smartwake/internal/evaluator"
	"smartwake/internal/models"
	"smartwake/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================
// 协作方接口（在消费侧声明）
// ============================================

// SleepStagePredictor 睡眠阶段预测服务
type SleepStagePredictor interface {
	Predict(ctx context.Context, alarm *models.Alarm, pattern *models.SleepPattern) ([]models.StagePoint, error)
	Recommend(ctx context.Context, alarm *models.Alarm, pattern *models.SleepPattern) (*models.WakeRecommendation, error)
}

// ReadingSource 条件读数来源
type ReadingSource interface {
	CurrentReadings(ctx context.Context, userID string) (models.ConditionReading, error)
}

// Notifier 调整结果广播，失败只记日志不影响调整本身
type Notifier interface {
	ScheduleChanged(alarmID string, wakeMinutes int, confidence float64, reason string) error
}

// ============================================
// 运行器状态机
// ============================================

// RunnerState 闹钟运行器状态
type RunnerState string

const (
	StateIdle       RunnerState = "idle"
	StateEvaluating RunnerState = "evaluating"
	StateApplied    RunnerState = "applied"
	StateSkipped    RunnerState = "skipped"
)

// alarmRunner 单闹钟运行器。mu 保证同一闹钟的 tick 串行，
// TickNow 与节拍 tick 共用同一把锁。
type alarmRunner struct {
	alarmID string
	ctx     context.Context
	cancel  context.CancelFunc

	mu sync.Mutex // tick 串行锁

	stateMu     sync.Mutex
	state       RunnerState
	lastOutcome RunnerState
}

func (r *alarmRunner) setState(s RunnerState) {
	r.stateMu.Lock()
	r.state = s
	if s == StateApplied || s == StateSkipped {
		r.lastOutcome = s
	}
	r.stateMu.Unlock()
}

// State 当前状态（idle/evaluating）
func (r *alarmRunner) State() RunnerState {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.state
}

// LastOutcome 最近一次 tick 的结果（applied/skipped）
func (r *alarmRunner) LastOutcome() RunnerState {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.lastOutcome
}

// ============================================
// 自适应循环
// ============================================

// AdaptationLoop 自适应循环：共享节拍 + 每闹钟串行运行器
type AdaptationLoop struct {
	cfg         *config.Config
	alarms      *repository.AlarmsRepository
	conditions  *repository.ConditionsRepository
	adaptations *repository.AdaptationsRepository
	feedback    *repository.FeedbackRepository
	patterns    *repository.SleepPatternsRepository
	readings    ReadingSource
	predictor   SleepStagePredictor
	notifier    Notifier
	reporter    ErrorReporter
	logger      *zap.Logger

	mu      sync.Mutex
	rootCtx context.Context
	runners map[string]*alarmRunner
}

// NewAdaptationLoop 创建自适应循环
func NewAdaptationLoop(
	cfg *config.Config,
	alarms *repository.AlarmsRepository,
	conditions *repository.ConditionsRepository,
	adaptations *repository.AdaptationsRepository,
	feedback *repository.FeedbackRepository,
	patterns *repository.SleepPatternsRepository,
	readings ReadingSource,
	predictor SleepStagePredictor,
	notifier Notifier,
	reporter ErrorReporter,
	logger *zap.Logger,
) *AdaptationLoop {
	return &AdaptationLoop{
		cfg:         cfg,
		alarms:      alarms,
		conditions:  conditions,
		adaptations: adaptations,
		feedback:    feedback,
		patterns:    patterns,
		readings:    readings,
		predictor:   predictor,
		notifier:    notifier,
		reporter:    reporter,
		logger:      logger,
		runners:     map[string]*alarmRunner{},
	}
}

// Start 启动循环（阻塞直到 ctx 取消；每个节拍对全部自适应闹钟做一轮评估）
func (l *AdaptationLoop) Start(ctx context.Context) error {
	l.mu.Lock()
	l.rootCtx = ctx
	l.mu.Unlock()

	l.logger.Info("Adaptation loop started",
		zap.Int("tick_minutes", l.cfg.Wake.TickMinutes),
		zap.Int("significance_threshold", l.cfg.Wake.SignificanceThreshold),
	)

	ticker := time.NewTicker(time.Duration(l.cfg.Wake.TickMinutes) * time.Minute)
	defer ticker.Stop()

	// 立即执行一轮
	l.tickAll(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Adaptation loop stopped")
			return nil
		case <-ticker.C:
			l.tickAll(ctx)
		}
	}
}

// tickAll 对当前全部自适应闹钟做一轮评估。
// 不同闹钟并发执行，轮内等待全部完成，保证退出时在途 tick 清空。
func (l *AdaptationLoop) tickAll(ctx context.Context) {
	alarms, err := l.alarms.ListAdaptiveAlarms(ctx)
	if err != nil {
		l.logger.Error("Failed to list adaptive alarms", zap.Error(err))
		return
	}

	l.logger.Debug("Evaluating alarms", zap.Int("alarm_count", len(alarms)))

	active := make(map[string]bool, len(alarms))
	for _, alarm := range alarms {
		active[alarm.AlarmID] = true
	}
	l.pruneRunners(active)

	var wg sync.WaitGroup
	for _, alarm := range alarms {
		runner := l.runnerFor(alarm.AlarmID)
		wg.Add(1)
		go func(alarmID string) {
			defer wg.Done()
			if err := l.tick(runner, alarmID); err != nil {
				l.logger.Error("Adaptation tick failed",
					zap.String("alarm_id", alarmID),
					zap.Error(err),
				)
			}
		}(alarm.AlarmID)
	}
	wg.Wait()
}

// TickNow 立即对单个闹钟做一次评估，与节拍 tick 走同一把串行锁
func (l *AdaptationLoop) TickNow(ctx context.Context, alarmID string) error {
	alarm, err := l.alarms.GetAlarm(ctx, alarmID)
	if err != nil {
		return err
	}
	if !alarm.Enabled || !alarm.RealTimeAdaptation {
		return models.NewValidationError("real_time_adaptation", "real-time adaptation is disabled for this alarm")
	}

	return l.tick(l.runnerFor(alarmID), alarmID)
}

// LastOutcome 某闹钟最近一次 tick 的结果，尚无完成过的 tick 时返回 StateIdle
func (l *AdaptationLoop) LastOutcome(alarmID string) RunnerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	if runner, ok := l.runners[alarmID]; ok {
		if outcome := runner.LastOutcome(); outcome != "" {
			return outcome
		}
	}
	return StateIdle
}

// Cancel 取消某个闹钟的运行器（关闭自适应时调用）。
// 已取消的运行器不再产生任何数据变更。
func (l *AdaptationLoop) Cancel(alarmID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if runner, ok := l.runners[alarmID]; ok {
		runner.cancel()
		delete(l.runners, alarmID)
		l.logger.Info("Cancelled alarm runner", zap.String("alarm_id", alarmID))
	}
}

// runnerFor 取（或创建）闹钟的运行器
func (l *AdaptationLoop) runnerFor(alarmID string) *alarmRunner {
	l.mu.Lock()
	defer l.mu.Unlock()

	if runner, ok := l.runners[alarmID]; ok {
		return runner
	}

	parent := l.rootCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	runner := &alarmRunner{
		alarmID: alarmID,
		ctx:     ctx,
		cancel:  cancel,
		state:   StateIdle,
	}
	l.runners[alarmID] = runner
	return runner
}

// pruneRunners 取消不在工作集里的运行器（闹钟被禁用或删除后节拍侧兜底）
func (l *AdaptationLoop) pruneRunners(active map[string]bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for alarmID, runner := range l.runners {
		if !active[alarmID] {
			runner.cancel()
			delete(l.runners, alarmID)
			l.logger.Debug("Pruned inactive alarm runner", zap.String("alarm_id", alarmID))
		}
	}
}

// collaboratorCtx 协作方调用的限时上下文
func (l *AdaptationLoop) collaboratorCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, time.Duration(l.cfg.Wake.CollaboratorTimeout)*time.Second)
}

// storageFailure 存储类协作方故障：统一包装并上报后放弃本次评估
func (l *AdaptationLoop) storageFailure(alarmID string, err error) error {
	cerr := models.NewCollaboratorError("storage", err)
	l.reporter.Report(cerr, zap.String("alarm_id", alarmID))
	return cerr
}

// tick 单闹钟的一次评估。协作方出错时放弃本次评估并保留原唤醒时间；
// 取消发生后不再做任何数据变更。
// last_triggered 只在调整实际应用后写入：低于显著性阈值的 tick 不留任何痕迹，
// 当天仅在被跳过的 tick 里触发过的条件不参与当日反馈学习。
func (l *AdaptationLoop) tick(runner *alarmRunner, alarmID string) error {
	runner.mu.Lock()
	defer runner.mu.Unlock()

	ctx := runner.ctx
	if err := ctx.Err(); err != nil {
		return err
	}

	runner.setState(StateEvaluating)
	defer runner.setState(StateIdle)

	// 1. 重新加载闹钟，使用最新设置
	alarm, err := l.alarms.GetAlarm(ctx, alarmID)
	if err != nil {
		return l.storageFailure(alarmID, err)
	}
	if !alarm.Enabled || !alarm.RealTimeAdaptation {
		runner.setState(StateSkipped)
		return nil
	}

	// 2. 条件读数（缺失快照是合法状态，返回空 map）
	readCtx, cancelRead := l.collaboratorCtx(ctx)
	reading, err := l.readings.CurrentReadings(readCtx, alarm.UserID)
	cancelRead()
	if err != nil {
		cerr := models.NewCollaboratorError("readings", err)
		l.reporter.Report(cerr, zap.String("alarm_id", alarmID))
		return cerr
	}

	// 3. 启用条件求值
	conditions, err := l.conditions.ListConditions(ctx, alarmID, true)
	if err != nil {
		return l.storageFailure(alarmID, err)
	}
	outcome := evaluator.EvaluateConditions(conditions, reading)

	if err := ctx.Err(); err != nil {
		return err
	}

	// 4. 睡眠画像（可缺失，缺失时用保守默认画像）与预测器建议
	pattern, err := l.patterns.GetSleepPattern(ctx, alarm.UserID)
	if err != nil {
		return l.storageFailure(alarmID, err)
	}
	if pattern == nil {
		pattern = models.DefaultSleepPattern(alarm.UserID)
	}

	recCtx, cancelRec := l.collaboratorCtx(ctx)
	rec, err := l.predictor.Recommend(recCtx, alarm, pattern)
	cancelRec()
	if err != nil {
		cerr := models.NewCollaboratorError("predictor", err)
		l.reporter.Report(cerr, zap.String("alarm_id", alarmID))
		return cerr
	}

	// 5. 近期反馈参与动态窗口
	recent, err := l.feedback.ListRecentFeedback(ctx, alarmID, 5)
	if err != nil {
		return l.storageFailure(alarmID, err)
	}
	sleepAdj := evaluator.SleepAdjustment(alarm, rec, pattern, recent)

	// 6. 线性融合
	blend := evaluator.Blend(
		outcome.TotalAdjustment,
		sleepAdj,
		alarm.SleepPatternWeight,
		l.cfg.Wake.SignificanceThreshold,
	)

	if !blend.Significant {
		runner.setState(StateSkipped)
		l.logger.Debug("Adjustment below significance threshold",
			zap.String("alarm_id", alarmID),
			zap.Int("blended", blend.Blended),
		)
		return nil
	}

	applied := evaluator.ClampToWindow(blend.Blended, alarm.WakeWindowMinutes)
	newMinutes := models.AddClock(alarm.BaselineMinutes, applied)
	source, reason := l.describeAdjustment(ctx, alarm, pattern, outcome, sleepAdj, newMinutes)

	// 应用前最后一次取消检查，之后的写入视为一个整体
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	record := &models.AdaptationRecord{
		RecordID:        uuid.New().String(),
		AlarmID:         alarm.AlarmID,
		Date:            models.DateOf(now),
		OriginalMinutes: alarm.BaselineMinutes,
		AdjustedMinutes: newMinutes,
		Reason:          reason,
		Source:          source,
		CreatedAt:       now,
	}
	if err := l.adaptations.AppendRecord(ctx, record); err != nil {
		return l.storageFailure(alarmID, err)
	}
	if err := l.alarms.SetAdjustedTime(ctx, alarm.AlarmID, &newMinutes); err != nil {
		return l.storageFailure(alarmID, err)
	}

	if len(outcome.Fired) > 0 {
		ids := make([]string, 0, len(outcome.Fired))
		for _, fc := range outcome.Fired {
			ids = append(ids, fc.ConditionID)
		}
		if err := l.conditions.MarkTriggered(ctx, ids, now); err != nil {
			return l.storageFailure(alarmID, err)
		}
	}

	// 通知失败不回滚调整
	if err := l.notifier.ScheduleChanged(alarm.AlarmID, newMinutes, blend.Confidence, reason); err != nil {
		l.logger.Error("Failed to publish schedule change",
			zap.String("alarm_id", alarm.AlarmID),
			zap.Error(err),
		)
	}

	runner.setState(StateApplied)
	l.logger.Info("Applied wake time adjustment",
		zap.String("alarm_id", alarm.AlarmID),
		zap.String("wake_time", models.FormatClock(newMinutes)),
		zap.Int("adjustment", applied),
		zap.String("source", string(source)),
		zap.String("reason", reason),
		zap.Float64("confidence", blend.Confidence),
	)

	return nil
}

// describeAdjustment 主导来源与说明文案。
// 条件一路幅度更大时把全部触发条件的说明按 "; " 拼接（历史记录要能还原当天触发了什么）；
// 睡眠一路主导时尝试标注新时刻的预测阶段。
func (l *AdaptationLoop) describeAdjustment(
	ctx context.Context,
	alarm *models.Alarm,
	pattern *models.SleepPattern,
	outcome evaluator.ConditionOutcome,
	sleepAdj int,
	newMinutes int,
) (models.AdaptationSource, string) {
	condMag := outcome.TotalAdjustment
	if condMag < 0 {
		condMag = -condMag
	}
	sleepMag := sleepAdj
	if sleepMag < 0 {
		sleepMag = -sleepMag
	}

	if condMag > sleepMag && len(outcome.Fired) > 0 {
		reasons := make([]string, 0, len(outcome.Fired))
		for _, fc := range outcome.Fired {
			reasons = append(reasons, fc.Reason)
		}
		return models.SourceCondition, strings.Join(reasons, "; ")
	}

	// 阶段标注只影响说明文案，拿不到就退回通用文案
	stageCtx, cancel := l.collaboratorCtx(ctx)
	stages, err := l.predictor.Predict(stageCtx, alarm, pattern)
	cancel()
	if err == nil {
		for _, p := range stages {
			if p.Minutes == newMinutes {
				return models.SourceSleepPattern,
					fmt.Sprintf("predicted %s sleep near %s", p.Stage, models.FormatClock(newMinutes))
			}
		}
	}

	return models.SourceSleepPattern, "sleep pattern recommendation"
}
