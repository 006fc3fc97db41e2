// Package service 自适应唤醒服务门面：组装存储、协作方客户端与自适应循环，
// 对 HTTP 层暴露闹钟生命周期、评估触发、反馈学习与指标查询。
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smartwake/internal/config"
	"smartwake/internal/consumer"
	"smartwake/internal/evaluator"
	"smartwake/internal/learner"
	"smartwake/internal/metrics"
	"smartwake/internal/models"
	"smartwake/internal/notifier"
	"smartwake/internal/predictor"
	"smartwake/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

// defaultEffectivenessScore 新建条件未指定效果分时的中性初始值
const defaultEffectivenessScore = 0.5

// SmartWakeService 自适应唤醒服务（整合各层）
type SmartWakeService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	// 各层组件
	alarmsRepo       *repository.AlarmsRepository
	conditionsRepo   *repository.ConditionsRepository
	adaptationsRepo  *repository.AdaptationsRepository
	feedbackRepo     *repository.FeedbackRepository
	patternsRepo     *repository.SleepPatternsRepository
	readingCache     consumer.ReadingSource
	predictor        consumer.SleepStagePredictor
	scheduleNotifier *notifier.ScheduleNotifier
	feedbackLearner  *learner.FeedbackLearner
	aggregator       *metrics.Aggregator
	loop             *consumer.AdaptationLoop
}

// NewSmartWakeService 创建自适应唤醒服务
func NewSmartWakeService(cfg *config.Config, logger *zap.Logger) (*SmartWakeService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试数据库连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// 测试 Redis 连接
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT（调整广播通道）
	scheduleNotifier, err := notifier.NewScheduleNotifier(cfg.MQTT, logger)
	if err != nil {
		return nil, err
	}

	// 4. 创建 Repository 层
	alarmsRepo := repository.NewAlarmsRepository(db, logger)
	conditionsRepo := repository.NewConditionsRepository(db, logger)
	adaptationsRepo := repository.NewAdaptationsRepository(db, logger)
	feedbackRepo := repository.NewFeedbackRepository(db, logger)
	patternsRepo := repository.NewSleepPatternsRepository(db, logger)

	// 5. 创建协作方客户端
	readingCache := consumer.NewReadingCache(cfg, redisClient, logger)
	predictorClient := predictor.NewClient(cfg.Predictor, logger)

	// 6. 创建学习器与指标聚合器
	feedbackLearner := learner.NewFeedbackLearner(feedbackRepo, conditionsRepo, adaptationsRepo, logger)
	aggregator := metrics.NewAggregator(alarmsRepo, conditionsRepo, adaptationsRepo, feedbackRepo, logger)

	// 7. 创建自适应循环
	loop := consumer.NewAdaptationLoop(
		cfg,
		alarmsRepo,
		conditionsRepo,
		adaptationsRepo,
		feedbackRepo,
		patternsRepo,
		readingCache,
		predictorClient,
		scheduleNotifier,
		consumer.NewLogReporter(logger),
		logger,
	)

	return &SmartWakeService{
		config:           cfg,
		db:               db,
		redisClient:      redisClient,
		logger:           logger,
		alarmsRepo:       alarmsRepo,
		conditionsRepo:   conditionsRepo,
		adaptationsRepo:  adaptationsRepo,
		feedbackRepo:     feedbackRepo,
		patternsRepo:     patternsRepo,
		readingCache:     readingCache,
		predictor:        predictorClient,
		scheduleNotifier: scheduleNotifier,
		feedbackLearner:  feedbackLearner,
		aggregator:       aggregator,
		loop:             loop,
	}, nil
}

// Start 启动自适应循环（阻塞直到 ctx 取消）
func (s *SmartWakeService) Start(ctx context.Context) error {
	s.logger.Info("Starting smart wake service")
	return s.loop.Start(ctx)
}

// Stop 停止服务
func (s *SmartWakeService) Stop() error {
	s.logger.Info("Stopping smart wake service")

	s.scheduleNotifier.Close()

	// 关闭数据库连接
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	// 关闭 Redis 连接
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}

// ============================================
// 闹钟生命周期
// ============================================

// CreateAlarmRequest 创建闹钟请求，指针字段缺省时使用默认自适应参数
type CreateAlarmRequest struct {
	UserID             string
	Label              string
	BaselineMinutes    int
	WakeWindowMinutes  *int
	RealTimeAdaptation *bool
	SleepPatternWeight *float64
	LearningFactor     *float64
}

// CreateAlarm 创建自适应闹钟并安装默认条件集，
// 闹钟从第一天起就有可参与评估和学习的条件目录
func (s *SmartWakeService) CreateAlarm(ctx context.Context, req CreateAlarmRequest) (*models.Alarm, error) {
	now := time.Now()
	alarm := &models.Alarm{
		AlarmID:            uuid.New().String(),
		UserID:             req.UserID,
		Label:              req.Label,
		BaselineMinutes:    req.BaselineMinutes,
		WakeWindowMinutes:  models.DefaultWakeWindowMinutes,
		Enabled:            true,
		RealTimeAdaptation: true,
		SleepPatternWeight: models.DefaultSleepPatternWeight,
		LearningFactor:     models.DefaultLearningFactor,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.WakeWindowMinutes != nil {
		alarm.WakeWindowMinutes = *req.WakeWindowMinutes
	}
	if req.RealTimeAdaptation != nil {
		alarm.RealTimeAdaptation = *req.RealTimeAdaptation
	}
	if req.SleepPatternWeight != nil {
		alarm.SleepPatternWeight = *req.SleepPatternWeight
	}
	if req.LearningFactor != nil {
		alarm.LearningFactor = *req.LearningFactor
	}

	if err := s.alarmsRepo.CreateAlarm(ctx, alarm); err != nil {
		return nil, err
	}

	for _, preset := range models.DefaultConditionPresets() {
		cond := preset
		cond.ConditionID = uuid.New().String()
		cond.AlarmID = alarm.AlarmID
		if err := s.conditionsRepo.UpsertCondition(ctx, &cond); err != nil {
			return nil, fmt.Errorf("failed to install default condition %s: %w", cond.Type, err)
		}
	}

	s.logger.Info("Created adaptive alarm",
		zap.String("alarm_id", alarm.AlarmID),
		zap.String("user_id", alarm.UserID),
		zap.String("wake_time", models.FormatClock(alarm.BaselineMinutes)),
		zap.Int("wake_window_minutes", alarm.WakeWindowMinutes),
	)

	return alarm, nil
}

// GetAlarm 获取闹钟
func (s *SmartWakeService) GetAlarm(ctx context.Context, alarmID string) (*models.Alarm, error) {
	return s.alarmsRepo.GetAlarm(ctx, alarmID)
}

// ListConditions 列出闹钟的全部条件定义（含禁用的）
func (s *SmartWakeService) ListConditions(ctx context.Context, alarmID string) ([]*models.ConditionDefinition, error) {
	return s.conditionsRepo.ListConditions(ctx, alarmID, false)
}

// UpdateAlarmRequest 部分更新闹钟设置，nil 字段保持不变
type UpdateAlarmRequest struct {
	Label              *string
	BaselineMinutes    *int
	WakeWindowMinutes  *int
	Enabled            *bool
	RealTimeAdaptation *bool
	SleepPatternWeight *float64
	LearningFactor     *float64
}

// UpdateAlarmSettings 部分更新闹钟设置并返回更新后的闹钟。
// 基准时间变更会清空已调整时间（旧调整相对旧基准，不再有意义）；
// 关闭 enabled 或 real_time_adaptation 会立即取消该闹钟的运行器。
func (s *SmartWakeService) UpdateAlarmSettings(ctx context.Context, alarmID string, req UpdateAlarmRequest) (*models.Alarm, error) {
	updates := map[string]interface{}{}

	if req.Label != nil {
		updates["label"] = *req.Label
	}
	if req.BaselineMinutes != nil {
		if *req.BaselineMinutes < 0 || *req.BaselineMinutes >= models.MinutesPerDay {
			return nil, models.NewValidationError("baseline_minutes", "baseline time must be within a single day")
		}
		updates["baseline_minutes"] = *req.BaselineMinutes
		updates["adjusted_minutes"] = nil
	}
	if req.WakeWindowMinutes != nil {
		if *req.WakeWindowMinutes <= 0 || *req.WakeWindowMinutes > 180 {
			return nil, models.NewValidationError("wake_window_minutes", "wake window must be in (0, 180] minutes")
		}
		updates["wake_window_minutes"] = *req.WakeWindowMinutes
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if req.RealTimeAdaptation != nil {
		updates["real_time_adaptation"] = *req.RealTimeAdaptation
	}
	if req.SleepPatternWeight != nil {
		if *req.SleepPatternWeight < 0 || *req.SleepPatternWeight > 1 {
			return nil, models.NewValidationError("sleep_pattern_weight", "weight must be in [0, 1]")
		}
		updates["sleep_pattern_weight"] = *req.SleepPatternWeight
	}
	if req.LearningFactor != nil {
		if *req.LearningFactor < 0 || *req.LearningFactor > 1 {
			return nil, models.NewValidationError("learning_factor", "learning factor must be in [0, 1]")
		}
		updates["learning_factor"] = *req.LearningFactor
	}

	if len(updates) == 0 {
		return nil, models.NewValidationError("updates", "no fields to update")
	}

	if err := s.alarmsRepo.UpdateAlarmSettings(ctx, alarmID, updates); err != nil {
		return nil, err
	}

	if (req.Enabled != nil && !*req.Enabled) || (req.RealTimeAdaptation != nil && !*req.RealTimeAdaptation) {
		s.loop.Cancel(alarmID)
	}

	return s.alarmsRepo.GetAlarm(ctx, alarmID)
}

// ============================================
// 评估与建议
// ============================================

// TickNow 立即对单个闹钟做一次评估，返回本次评估的结果
func (s *SmartWakeService) TickNow(ctx context.Context, alarmID string) (consumer.RunnerState, error) {
	if err := s.loop.TickNow(ctx, alarmID); err != nil {
		return "", err
	}
	return s.loop.LastOutcome(alarmID), nil
}

// CalculateOptimalTimeSlots 计算候选唤醒时间槽。
// 阶段预测在这里是必需输入，预测器不可用时整个操作失败。
func (s *SmartWakeService) CalculateOptimalTimeSlots(ctx context.Context, alarmID string) ([]models.OptimalTimeSlot, error) {
	alarm, err := s.alarmsRepo.GetAlarm(ctx, alarmID)
	if err != nil {
		return nil, err
	}

	pattern, err := s.patternsRepo.GetSleepPattern(ctx, alarm.UserID)
	if err != nil {
		return nil, err
	}
	if pattern == nil {
		pattern = models.DefaultSleepPattern(alarm.UserID)
	}

	stages, err := s.predictor.Predict(ctx, alarm, pattern)
	if err != nil {
		return nil, models.NewCollaboratorError("predictor", err)
	}

	recent, err := s.feedbackRepo.ListRecentFeedback(ctx, alarmID, 5)
	if err != nil {
		return nil, err
	}

	return evaluator.OptimalTimeSlots(alarm, stages, recent), nil
}

// ============================================
// 反馈与指标
// ============================================

// RecordWakeUpFeedback 记录唤醒反馈并触发学习流程
func (s *SmartWakeService) RecordWakeUpFeedback(ctx context.Context, alarmID string, fb *models.WakeUpFeedback) error {
	alarm, err := s.alarmsRepo.GetAlarm(ctx, alarmID)
	if err != nil {
		return err
	}

	if fb != nil && fb.AlarmID == "" {
		fb.AlarmID = alarm.AlarmID
	}

	return s.feedbackLearner.RecordFeedback(ctx, alarm, fb)
}

// GetMetrics 汇总闹钟效果指标
func (s *SmartWakeService) GetMetrics(ctx context.Context, alarmID string) (*models.SmartAlarmMetrics, error) {
	return s.aggregator.GetMetrics(ctx, alarmID)
}

// ============================================
// 条件与睡眠画像
// ============================================

// UpsertCondition 新建或更新条件定义。
// effectiveness_score 是学习态：更新已有条件时保留库中已收敛的值，
// 新建条件未指定时落在中性初始值。
func (s *SmartWakeService) UpsertCondition(ctx context.Context, alarmID string, cond *models.ConditionDefinition) (*models.ConditionDefinition, error) {
	if cond == nil {
		return nil, models.NewValidationError("condition", "condition is required")
	}

	if _, err := s.alarmsRepo.GetAlarm(ctx, alarmID); err != nil {
		return nil, err
	}
	cond.AlarmID = alarmID

	if cond.ConditionID == "" {
		cond.ConditionID = uuid.New().String()
		if cond.EffectivenessScore == 0 {
			cond.EffectivenessScore = defaultEffectivenessScore
		}
	} else {
		existing, err := s.conditionsRepo.GetCondition(ctx, cond.ConditionID)
		var notFound *models.NotFoundError
		switch {
		case err == nil:
			if existing.AlarmID != alarmID {
				return nil, models.NewNotFoundError("condition", cond.ConditionID)
			}
			cond.EffectivenessScore = existing.EffectivenessScore
		case errors.As(err, &notFound):
			if cond.EffectivenessScore == 0 {
				cond.EffectivenessScore = defaultEffectivenessScore
			}
		default:
			return nil, err
		}
	}

	if err := s.conditionsRepo.UpsertCondition(ctx, cond); err != nil {
		return nil, err
	}

	s.logger.Info("Upserted alarm condition",
		zap.String("alarm_id", alarmID),
		zap.String("condition_id", cond.ConditionID),
		zap.String("condition_type", string(cond.Type)),
		zap.Bool("enabled", cond.Enabled),
	)

	return cond, nil
}

// UpsertSleepPattern 写入用户睡眠画像
func (s *SmartWakeService) UpsertSleepPattern(ctx context.Context, pattern *models.SleepPattern) error {
	return s.patternsRepo.UpsertSleepPattern(ctx, pattern)
}
