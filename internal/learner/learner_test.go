package learner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartwake/internal/models"
	"smartwake/internal/repository"
)

func setupLearner(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *FeedbackLearner) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	learner := NewFeedbackLearner(
		repository.NewFeedbackRepository(db, logger),
		repository.NewConditionsRepository(db, logger),
		repository.NewAdaptationsRepository(db, logger),
		logger,
	)

	return db, mock, learner
}

func testAlarm(alarmID string) *models.Alarm {
	return &models.Alarm{
		AlarmID:            alarmID,
		UserID:             uuid.New().String(),
		BaselineMinutes:    420,
		WakeWindowMinutes:  30,
		Enabled:            true,
		RealTimeAdaptation: true,
		SleepPatternWeight: models.DefaultSleepPatternWeight,
		LearningFactor:     models.DefaultLearningFactor,
	}
}

func roughMorningFeedback(alarmID string) *models.WakeUpFeedback {
	return &models.WakeUpFeedback{
		FeedbackID:        uuid.New().String(),
		AlarmID:           alarmID,
		Date:              "2026-08-26",
		OriginalMinutes:   420,
		ActualWakeMinutes: 409,
		Difficulty:        models.DifficultyVeryHard,
		Feeling:           models.FeelingTerrible,
		SleepQuality:      2,
		TimeToFullyAwake:  25,
		CreatedAt:         time.Date(2026, 8, 26, 7, 15, 0, 0, time.UTC),
	}
}

func triggeredConditionRows(t *testing.T, conditionID, alarmID string) *sqlmock.Rows {
	trigger, err := json.Marshal(models.TriggerPredicate{
		Operator: models.OpContains,
		Value:    models.StringValue("rain"),
	})
	require.NoError(t, err)
	adjustment, err := json.Marshal(models.AdjustmentSpec{
		Minutes:       -10,
		MaxAdjustment: 20,
		Reason:        "rainy weather slows the morning commute",
	})
	require.NoError(t, err)

	now := time.Now()
	return sqlmock.NewRows([]string{
		"condition_id", "alarm_id", "condition_type", "enabled", "priority",
		"trigger", "adjustment", "effectiveness_score", "last_triggered",
		"created_at", "updated_at",
	}).AddRow(
		conditionID, alarmID, "weather", true, 2,
		trigger, adjustment, 0.8, now, now, now,
	)
}

// 差评反馈必须压低当日触发过的条件的效果分
func TestRecordFeedback_RoughMorningLowersEffectiveness(t *testing.T) {
	db, mock, learner := setupLearner(t)
	defer db.Close()

	alarm := testAlarm(uuid.New().String())
	fb := roughMorningFeedback(alarm.AlarmID)
	conditionID := uuid.New().String()

	// 难度 5、感受 1、质量 2 折算的样本远低于现有的 0.8 分
	sample := fb.EffectivenessSample()
	require.InDelta(t, 0.037, sample, 0.001)
	assert.Less(t, 0.8*(1-alarm.LearningFactor)+sample*alarm.LearningFactor, 0.8)

	mock.ExpectExec(`INSERT INTO wake_feedback`).
		WithArgs(
			fb.FeedbackID, fb.AlarmID, fb.Date, 420, 409,
			5, 1, 2, 25, false, false, nil, fb.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery(`SELECT`).
		WithArgs(fb.AlarmID, fb.Date).
		WillReturnRows(triggeredConditionRows(t, conditionID, alarm.AlarmID))

	mock.ExpectExec(`UPDATE alarm_conditions`).
		WithArgs(conditionID, alarm.LearningFactor, sample).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`UPDATE adaptation_records`).
		WithArgs(fb.AlarmID, fb.Date, sample).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := learner.RecordFeedback(context.Background(), alarm, fb)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// 当日没有触发过的条件时，不更新任何效果分，仍回填调整记录
func TestRecordFeedback_NoTriggeredConditions(t *testing.T) {
	db, mock, learner := setupLearner(t)
	defer db.Close()

	alarm := testAlarm(uuid.New().String())
	fb := roughMorningFeedback(alarm.AlarmID)
	sample := fb.EffectivenessSample()

	mock.ExpectExec(`INSERT INTO wake_feedback`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery(`SELECT`).
		WithArgs(fb.AlarmID, fb.Date).
		WillReturnRows(sqlmock.NewRows([]string{
			"condition_id", "alarm_id", "condition_type", "enabled", "priority",
			"trigger", "adjustment", "effectiveness_score", "last_triggered",
			"created_at", "updated_at",
		}))

	mock.ExpectExec(`UPDATE adaptation_records`).
		WithArgs(fb.AlarmID, fb.Date, sample).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := learner.RecordFeedback(context.Background(), alarm, fb)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// 好评反馈折算满分样本
func TestRecordFeedback_ExcellentSampleIsFull(t *testing.T) {
	fb := &models.WakeUpFeedback{
		AlarmID:           uuid.New().String(),
		Difficulty:        models.DifficultyVeryEasy,
		Feeling:           models.FeelingExcellent,
		SleepQuality:      10,
		ActualWakeMinutes: 415,
	}

	assert.Equal(t, 1.0, fb.EffectivenessSample())
}

func TestRecordFeedback_MismatchedAlarm(t *testing.T) {
	db, mock, learner := setupLearner(t)
	defer db.Close()

	alarm := testAlarm(uuid.New().String())
	fb := roughMorningFeedback(uuid.New().String())

	err := learner.RecordFeedback(context.Background(), alarm, fb)

	assert.Error(t, err)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "alarm_id", verr.Field)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFeedback_InvalidFeedbackRejected(t *testing.T) {
	db, mock, learner := setupLearner(t)
	defer db.Close()

	alarm := testAlarm(uuid.New().String())
	fb := roughMorningFeedback(alarm.AlarmID)
	fb.Difficulty = 6

	err := learner.RecordFeedback(context.Background(), alarm, fb)

	assert.Error(t, err)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "difficulty", verr.Field)

	require.NoError(t, mock.ExpectationsWereMet())
}

// 存储失败直接返回给调用方，不静默吞掉
func TestRecordFeedback_StorageErrorSurfaces(t *testing.T) {
	db, mock, learner := setupLearner(t)
	defer db.Close()

	alarm := testAlarm(uuid.New().String())
	fb := roughMorningFeedback(alarm.AlarmID)

	mock.ExpectExec(`INSERT INTO wake_feedback`).
		WillReturnError(errors.New("connection reset"))

	err := learner.RecordFeedback(context.Background(), alarm, fb)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record feedback")

	require.NoError(t, mock.ExpectationsWereMet())
}

// 服务端字段缺省时自动补全
func TestRecordFeedback_FillsServerFields(t *testing.T) {
	db, mock, learner := setupLearner(t)
	defer db.Close()

	alarm := testAlarm(uuid.New().String())
	fb := roughMorningFeedback(alarm.AlarmID)
	fb.FeedbackID = ""
	fb.Date = ""
	fb.CreatedAt = time.Time{}

	mock.ExpectExec(`INSERT INTO wake_feedback`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery(`SELECT`).
		WillReturnRows(sqlmock.NewRows([]string{
			"condition_id", "alarm_id", "condition_type", "enabled", "priority",
			"trigger", "adjustment", "effectiveness_score", "last_triggered",
			"created_at", "updated_at",
		}))

	mock.ExpectExec(`UPDATE adaptation_records`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := learner.RecordFeedback(context.Background(), alarm, fb)

	require.NoError(t, err)
	assert.NotEmpty(t, fb.FeedbackID)
	assert.Equal(t, models.DateOf(fb.CreatedAt), fb.Date)
	assert.False(t, fb.CreatedAt.IsZero())

	require.NoError(t, mock.ExpectationsWereMet())
}
