package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"smartwake/internal/config"
	"smartwake/internal/consumer"
	"smartwake/internal/learner"
	"smartwake/internal/metrics"
	"smartwake/internal/models"
	"smartwake/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStagePredictor 可编程的预测器替身
type fakeStagePredictor struct {
	stages []models.StagePoint
	rec    *models.WakeRecommendation
	err    error
}

func (f *fakeStagePredictor) Predict(ctx context.Context, alarm *models.Alarm, pattern *models.SleepPattern) ([]models.StagePoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stages, nil
}

func (f *fakeStagePredictor) Recommend(ctx context.Context, alarm *models.Alarm, pattern *models.SleepPattern) (*models.WakeRecommendation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

type serviceFixture struct {
	svc       *SmartWakeService
	mock      sqlmock.Sqlmock
	predictor *fakeStagePredictor
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	cfg := &config.Config{}
	cfg.Wake.TickMinutes = 15
	cfg.Wake.SignificanceThreshold = 5
	cfg.Wake.CollaboratorTimeout = 5

	alarmsRepo := repository.NewAlarmsRepository(db, logger)
	conditionsRepo := repository.NewConditionsRepository(db, logger)
	adaptationsRepo := repository.NewAdaptationsRepository(db, logger)
	feedbackRepo := repository.NewFeedbackRepository(db, logger)
	patternsRepo := repository.NewSleepPatternsRepository(db, logger)

	fp := &fakeStagePredictor{}

	svc := &SmartWakeService{
		config:          cfg,
		db:              db,
		logger:          logger,
		alarmsRepo:      alarmsRepo,
		conditionsRepo:  conditionsRepo,
		adaptationsRepo: adaptationsRepo,
		feedbackRepo:    feedbackRepo,
		patternsRepo:    patternsRepo,
		predictor:       fp,
		feedbackLearner: learner.NewFeedbackLearner(feedbackRepo, conditionsRepo, adaptationsRepo, logger),
		aggregator:      metrics.NewAggregator(alarmsRepo, conditionsRepo, adaptationsRepo, feedbackRepo, logger),
	}
	svc.loop = consumer.NewAdaptationLoop(
		cfg,
		alarmsRepo,
		conditionsRepo,
		adaptationsRepo,
		feedbackRepo,
		patternsRepo,
		nil,
		fp,
		nil,
		consumer.NewLogReporter(logger),
		logger,
	)

	return &serviceFixture{svc: svc, mock: mock, predictor: fp}
}

var alarmTestColumns = []string{
	"alarm_id", "user_id", "label", "baseline_minutes", "wake_window_minutes",
	"enabled", "real_time_adaptation", "sleep_pattern_weight", "learning_factor",
	"adjusted_minutes", "created_at", "updated_at",
}

func testAlarmRows(alarmID string, baseline int, enabled bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(alarmTestColumns).
		AddRow(alarmID, "user-7", "Workday", baseline, 30, enabled, enabled, 0.7, 0.3, nil, now, now)
}

var conditionTestColumns = []string{
	"condition_id", "alarm_id", "condition_type", "enabled", "priority",
	"trigger", "adjustment", "effectiveness_score", "last_triggered",
	"created_at", "updated_at",
}

func emptyConditionRows() *sqlmock.Rows {
	return sqlmock.NewRows(conditionTestColumns)
}

var feedbackTestColumns = []string{
	"feedback_id", "alarm_id", "date", "original_minutes", "actual_wake_minutes",
	"difficulty", "feeling", "sleep_quality", "time_to_fully_awake",
	"woke_up_naturally", "would_prefer_later", "notes", "created_at",
}

func emptyFeedbackRows() *sqlmock.Rows {
	return sqlmock.NewRows(feedbackTestColumns)
}

// ============================================
// CreateAlarm
// ============================================

func TestCreateAlarm_InstallsDefaultConditions(t *testing.T) {
	f := setupService(t)

	f.mock.ExpectExec(`INSERT INTO alarms`).
		WithArgs(sqlmock.AnyArg(), "user-7", "Workday", 420, 30, true, true, 0.7, 0.3, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for range models.DefaultConditionPresets() {
		f.mock.ExpectExec(`INSERT INTO alarm_conditions`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	alarm, err := f.svc.CreateAlarm(context.Background(), CreateAlarmRequest{
		UserID:          "user-7",
		Label:           "Workday",
		BaselineMinutes: 420,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, alarm.AlarmID)
	assert.True(t, alarm.Enabled)
	assert.True(t, alarm.RealTimeAdaptation)
	assert.Equal(t, models.DefaultWakeWindowMinutes, alarm.WakeWindowMinutes)
	assert.InDelta(t, models.DefaultSleepPatternWeight, alarm.SleepPatternWeight, 1e-9)
	assert.InDelta(t, models.DefaultLearningFactor, alarm.LearningFactor, 1e-9)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateAlarm_CustomParameters(t *testing.T) {
	f := setupService(t)

	window := 45
	adaptation := false
	weight := 0.5
	lf := 0.1

	f.mock.ExpectExec(`INSERT INTO alarms`).
		WithArgs(sqlmock.AnyArg(), "user-7", "", 390, 45, true, false, 0.5, 0.1, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for range models.DefaultConditionPresets() {
		f.mock.ExpectExec(`INSERT INTO alarm_conditions`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	alarm, err := f.svc.CreateAlarm(context.Background(), CreateAlarmRequest{
		UserID:             "user-7",
		BaselineMinutes:    390,
		WakeWindowMinutes:  &window,
		RealTimeAdaptation: &adaptation,
		SleepPatternWeight: &weight,
		LearningFactor:     &lf,
	})
	require.NoError(t, err)

	assert.Equal(t, 45, alarm.WakeWindowMinutes)
	assert.False(t, alarm.RealTimeAdaptation)
	assert.InDelta(t, 0.5, alarm.SleepPatternWeight, 1e-9)
	assert.InDelta(t, 0.1, alarm.LearningFactor, 1e-9)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateAlarm_InvalidBaseline(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.CreateAlarm(context.Background(), CreateAlarmRequest{
		UserID:          "user-7",
		BaselineMinutes: 1500,
	})

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "baseline_minutes", verr.Field)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

// ============================================
// UpdateAlarmSettings
// ============================================

func TestUpdateAlarmSettings_DisableAlarm(t *testing.T) {
	f := setupService(t)

	f.mock.ExpectExec(`UPDATE alarms`).
		WithArgs(false, "alarm-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(`FROM alarms`).
		WithArgs("alarm-1").
		WillReturnRows(testAlarmRows("alarm-1", 420, false))

	enabled := false
	alarm, err := f.svc.UpdateAlarmSettings(context.Background(), "alarm-1", UpdateAlarmRequest{
		Enabled: &enabled,
	})
	require.NoError(t, err)

	assert.False(t, alarm.Enabled)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateAlarmSettings_BaselineResetsAdjustment(t *testing.T) {
	f := setupService(t)

	f.mock.ExpectExec(`(?s)UPDATE alarms\s+SET.*adjusted_minutes`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(`FROM alarms`).
		WithArgs("alarm-1").
		WillReturnRows(testAlarmRows("alarm-1", 390, true))

	baseline := 390
	alarm, err := f.svc.UpdateAlarmSettings(context.Background(), "alarm-1", UpdateAlarmRequest{
		BaselineMinutes: &baseline,
	})
	require.NoError(t, err)

	assert.Equal(t, 390, alarm.BaselineMinutes)
	assert.Nil(t, alarm.AdjustedMinutes)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateAlarmSettings_NoFields(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.UpdateAlarmSettings(context.Background(), "alarm-1", UpdateAlarmRequest{})

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "updates", verr.Field)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateAlarmSettings_InvalidWindow(t *testing.T) {
	f := setupService(t)

	window := 500
	_, err := f.svc.UpdateAlarmSettings(context.Background(), "alarm-1", UpdateAlarmRequest{
		WakeWindowMinutes: &window,
	})

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "wake_window_minutes", verr.Field)
}

// ============================================
// TickNow / CalculateOptimalTimeSlots
// ============================================

func TestTickNow_AlarmNotFound(t *testing.T) {
	f := setupService(t)

	f.mock.ExpectQuery(`FROM alarms`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := f.svc.TickNow(context.Background(), "missing")

	var nferr *models.NotFoundError
	require.ErrorAs(t, err, &nferr)
	assert.Equal(t, "alarm", nferr.Resource)
}

func TestCalculateOptimalTimeSlots_RanksLightStage(t *testing.T) {
	f := setupService(t)

	f.mock.ExpectQuery(`FROM alarms`).
		WithArgs("alarm-1").
		WillReturnRows(testAlarmRows("alarm-1", 420, true))
	f.mock.ExpectQuery(`FROM sleep_patterns`).
		WithArgs("user-7").
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectQuery(`FROM wake_feedback`).
		WithArgs("alarm-1", 5).
		WillReturnRows(emptyFeedbackRows())

	f.predictor.stages = []models.StagePoint{
		{Minutes: 405, Stage: models.StageLight},
		{Minutes: 420, Stage: models.StageDeep},
	}

	slots, err := f.svc.CalculateOptimalTimeSlots(context.Background(), "alarm-1")
	require.NoError(t, err)
	require.Len(t, slots, 5)

	assert.Equal(t, 405, slots[0].Minutes)
	assert.Equal(t, "06:45", slots[0].Time)
	assert.Equal(t, models.StageLight, slots[0].Stage)
	assert.Contains(t, slots[0].Factors, "light sleep phase")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCalculateOptimalTimeSlots_PredictorDown(t *testing.T) {
	f := setupService(t)

	f.mock.ExpectQuery(`FROM alarms`).
		WithArgs("alarm-1").
		WillReturnRows(testAlarmRows("alarm-1", 420, true))
	f.mock.ExpectQuery(`FROM sleep_patterns`).
		WithArgs("user-7").
		WillReturnError(sql.ErrNoRows)

	f.predictor.err = errors.New("connection refused")

	_, err := f.svc.CalculateOptimalTimeSlots(context.Background(), "alarm-1")

	var cerr *models.CollaboratorError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "predictor", cerr.Collaborator)
}

// ============================================
// RecordWakeUpFeedback
// ============================================

func TestRecordWakeUpFeedback_RunsLearning(t *testing.T) {
	f := setupService(t)

	f.mock.ExpectQuery(`FROM alarms`).
		WithArgs("alarm-1").
		WillReturnRows(testAlarmRows("alarm-1", 420, true))
	f.mock.ExpectExec(`INSERT INTO wake_feedback`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(`FROM alarm_conditions`).
		WillReturnRows(emptyConditionRows())
	f.mock.ExpectExec(`UPDATE adaptation_records`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	fb := &models.WakeUpFeedback{
		OriginalMinutes:   420,
		ActualWakeMinutes: 415,
		Difficulty:        models.DifficultyEasy,
		Feeling:           models.FeelingGood,
		SleepQuality:      7,
	}
	err := f.svc.RecordWakeUpFeedback(context.Background(), "alarm-1", fb)
	require.NoError(t, err)

	assert.Equal(t, "alarm-1", fb.AlarmID)
	assert.NotEmpty(t, fb.FeedbackID)
	assert.NotEmpty(t, fb.Date)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRecordWakeUpFeedback_AlarmNotFound(t *testing.T) {
	f := setupService(t)

	f.mock.ExpectQuery(`FROM alarms`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := f.svc.RecordWakeUpFeedback(context.Background(), "missing", &models.WakeUpFeedback{
		ActualWakeMinutes: 415,
		Difficulty:        models.DifficultyEasy,
		Feeling:           models.FeelingGood,
		SleepQuality:      7,
	})

	var nferr *models.NotFoundError
	require.ErrorAs(t, err, &nferr)
}

// ============================================
// UpsertCondition
// ============================================

func TestUpsertCondition_NewAssignsIDAndDefaultScore(t *testing.T) {
	f := setupService(t)

	f.mock.ExpectQuery(`FROM alarms`).
		WithArgs("alarm-1").
		WillReturnRows(testAlarmRows("alarm-1", 420, true))
	f.mock.ExpectExec(`INSERT INTO alarm_conditions`).
		WithArgs(sqlmock.AnyArg(), "alarm-1", "sleep_debt", true, 1, sqlmock.AnyArg(), sqlmock.AnyArg(), 0.5, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cond := &models.ConditionDefinition{
		Type:     models.ConditionSleepDebt,
		Enabled:  true,
		Priority: 1,
		Trigger: models.TriggerPredicate{
			Operator: models.OpGreaterThan,
			Value:    models.NumberValue(2),
		},
		Adjustment: models.AdjustmentSpec{
			Minutes:       15,
			MaxAdjustment: 30,
			Reason:        "accumulated sleep debt favors extra rest",
		},
	}
	saved, err := f.svc.UpsertCondition(context.Background(), "alarm-1", cond)
	require.NoError(t, err)

	assert.NotEmpty(t, saved.ConditionID)
	assert.Equal(t, "alarm-1", saved.AlarmID)
	assert.InDelta(t, 0.5, saved.EffectivenessScore, 1e-9)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpsertCondition_UpdateKeepsLearnedScore(t *testing.T) {
	f := setupService(t)

	now := time.Now()
	existing := sqlmock.NewRows(conditionTestColumns).AddRow(
		"cond-1", "alarm-1", "weather", true, 2,
		[]byte(`{"operator":"contains","value":"rain"}`),
		[]byte(`{"minutes":-10,"max_adjustment":20,"reason":"rainy weather slows the morning commute"}`),
		0.85, nil, now, now,
	)

	f.mock.ExpectQuery(`FROM alarms`).
		WithArgs("alarm-1").
		WillReturnRows(testAlarmRows("alarm-1", 420, true))
	f.mock.ExpectQuery(`FROM alarm_conditions`).
		WithArgs("cond-1").
		WillReturnRows(existing)
	f.mock.ExpectExec(`INSERT INTO alarm_conditions`).
		WithArgs("cond-1", "alarm-1", "weather", true, 3, sqlmock.AnyArg(), sqlmock.AnyArg(), 0.85, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cond := &models.ConditionDefinition{
		ConditionID: "cond-1",
		Type:        models.ConditionWeather,
		Enabled:     true,
		Priority:    3,
		Trigger: models.TriggerPredicate{
			Operator: models.OpContains,
			Value:    models.StringValue("rain"),
		},
		Adjustment: models.AdjustmentSpec{
			Minutes:       -10,
			MaxAdjustment: 20,
			Reason:        "rainy weather slows the morning commute",
		},
		EffectivenessScore: 0.2,
	}
	saved, err := f.svc.UpsertCondition(context.Background(), "alarm-1", cond)
	require.NoError(t, err)

	assert.InDelta(t, 0.85, saved.EffectivenessScore, 1e-9)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpsertCondition_WrongAlarmRejected(t *testing.T) {
	f := setupService(t)

	now := time.Now()
	foreign := sqlmock.NewRows(conditionTestColumns).AddRow(
		"cond-9", "alarm-2", "weather", true, 2,
		[]byte(`{"operator":"contains","value":"rain"}`),
		[]byte(`{"minutes":-10,"max_adjustment":20,"reason":"rainy weather slows the morning commute"}`),
		0.8, nil, now, now,
	)

	f.mock.ExpectQuery(`FROM alarms`).
		WithArgs("alarm-1").
		WillReturnRows(testAlarmRows("alarm-1", 420, true))
	f.mock.ExpectQuery(`FROM alarm_conditions`).
		WithArgs("cond-9").
		WillReturnRows(foreign)

	cond := &models.ConditionDefinition{
		ConditionID: "cond-9",
		Type:        models.ConditionWeather,
		Enabled:     true,
		Priority:    2,
		Trigger: models.TriggerPredicate{
			Operator: models.OpContains,
			Value:    models.StringValue("rain"),
		},
		Adjustment: models.AdjustmentSpec{
			Minutes:       -10,
			MaxAdjustment: 20,
			Reason:        "rainy weather slows the morning commute",
		},
	}
	_, err := f.svc.UpsertCondition(context.Background(), "alarm-1", cond)

	var nferr *models.NotFoundError
	require.ErrorAs(t, err, &nferr)
	assert.Equal(t, "condition", nferr.Resource)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
