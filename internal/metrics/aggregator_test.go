package metrics

import (
	"context"
	"database/sql"
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

func setupAggregator(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Aggregator) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	agg := NewAggregator(
		repository.NewAlarmsRepository(db, logger),
		repository.NewConditionsRepository(db, logger),
		repository.NewAdaptationsRepository(db, logger),
		repository.NewFeedbackRepository(db, logger),
		logger,
	)

	return db, mock, agg
}

func alarmRows(alarmID string, enabled, adaptive bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"alarm_id", "user_id", "label", "baseline_minutes", "wake_window_minutes",
		"enabled", "real_time_adaptation", "sleep_pattern_weight", "learning_factor",
		"adjusted_minutes", "created_at", "updated_at",
	}).AddRow(
		alarmID, uuid.New().String(), "workday", 420, 30,
		enabled, adaptive, 0.7, 0.3, nil, now, now,
	)
}

func adaptationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"record_id", "alarm_id", "date", "original_minutes", "adjusted_minutes",
		"reason", "source", "effectiveness", "created_at",
	})
}

func feedbackRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"feedback_id", "alarm_id", "date", "original_minutes", "actual_wake_minutes",
		"difficulty", "feeling", "sleep_quality", "time_to_fully_awake",
		"woke_up_naturally", "would_prefer_later", "notes", "created_at",
	})
}

func addFeedbackRow(rows *sqlmock.Rows, alarmID, date string, difficulty, feeling, quality int) {
	rows.AddRow(
		uuid.New().String(), alarmID, date, 420, 415,
		difficulty, feeling, quality, 10, false, false, nil, time.Now(),
	)
}

func daysAgo(n int) string {
	return models.DateOf(time.Now().AddDate(0, 0, -n))
}

func TestGetMetrics_AggregatesWindow(t *testing.T) {
	db, mock, agg := setupAggregator(t)
	defer db.Close()

	alarmID := uuid.New().String()

	mock.ExpectQuery(`FROM alarms`).
		WithArgs(alarmID).
		WillReturnRows(alarmRows(alarmID, true, true))

	records := adaptationRows()
	records.AddRow(uuid.New().String(), alarmID, daysAgo(2), 420, 409, "rainy weather", "condition", 0.8, time.Now())
	records.AddRow(uuid.New().String(), alarmID, daysAgo(1), 420, 412, "light sleep phase", "sleep_pattern", 0.6, time.Now())
	records.AddRow(uuid.New().String(), alarmID, daysAgo(0), 420, 410, "rainy weather", "condition", nil, time.Now())
	mock.ExpectQuery(`FROM adaptation_records`).
		WithArgs(alarmID, sqlmock.AnyArg()).
		WillReturnRows(records)

	feedback := feedbackRows()
	addFeedbackRow(feedback, alarmID, daysAgo(2), 4, 2, 6)
	addFeedbackRow(feedback, alarmID, daysAgo(1), 5, 1, 6)
	addFeedbackRow(feedback, alarmID, daysAgo(0), 4, 2, 5)
	mock.ExpectQuery(`FROM wake_feedback`).
		WithArgs(alarmID, sqlmock.AnyArg()).
		WillReturnRows(feedback)

	mock.ExpectQuery(`SELECT condition_type`).
		WithArgs(alarmID, 3).
		WillReturnRows(sqlmock.NewRows([]string{"condition_type"}).
			AddRow("sleep_debt").
			AddRow("weather"))

	metrics, err := agg.GetMetrics(context.Background(), alarmID)

	require.NoError(t, err)
	assert.Equal(t, alarmID, metrics.AlarmID)
	assert.InDelta(t, 13.0/3.0, metrics.AverageWakeUpDifficulty, 0.0001)
	assert.InDelta(t, 0.7, metrics.AdaptationSuccessRate, 0.0001)
	assert.InDelta(t, 1.0/6.0, metrics.UserSatisfaction, 0.0001)
	assert.Equal(t, []int{6, 6, 5}, metrics.SleepQualityTrend)
	assert.Equal(t, []models.ConditionType{models.ConditionSleepDebt, models.ConditionWeather}, metrics.MostEffectiveConditions)
	assert.Equal(t, models.MetricsWindowDays, metrics.WindowDays)

	// 高难度 + 低满意度各产生一条建议；调整很活跃，没有停摆提示
	require.Len(t, metrics.Recommendations, 2)
	assert.Contains(t, metrics.Recommendations[0], "widening the wake window")
	assert.Contains(t, metrics.Recommendations[1], "earlier bedtime")

	require.NoError(t, mock.ExpectationsWereMet())
}

// 自适应开着却 7 天没有调整记录时给出停摆提示
func TestGetMetrics_NoDataDefaults(t *testing.T) {
	db, mock, agg := setupAggregator(t)
	defer db.Close()

	alarmID := uuid.New().String()

	mock.ExpectQuery(`FROM alarms`).
		WithArgs(alarmID).
		WillReturnRows(alarmRows(alarmID, true, true))
	mock.ExpectQuery(`FROM adaptation_records`).
		WillReturnRows(adaptationRows())
	mock.ExpectQuery(`FROM wake_feedback`).
		WillReturnRows(feedbackRows())
	mock.ExpectQuery(`SELECT condition_type`).
		WillReturnRows(sqlmock.NewRows([]string{"condition_type"}))

	metrics, err := agg.GetMetrics(context.Background(), alarmID)

	require.NoError(t, err)
	assert.Equal(t, 0.0, metrics.AverageWakeUpDifficulty)
	assert.Equal(t, 0.5, metrics.AdaptationSuccessRate)
	assert.Equal(t, 0.0, metrics.UserSatisfaction)
	assert.Empty(t, metrics.SleepQualityTrend)
	assert.Empty(t, metrics.MostEffectiveConditions)

	require.Len(t, metrics.Recommendations, 1)
	assert.Contains(t, metrics.Recommendations[0], "has not been adjusted")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMetrics_DisabledAlarmNoStaleAdvice(t *testing.T) {
	db, mock, agg := setupAggregator(t)
	defer db.Close()

	alarmID := uuid.New().String()

	mock.ExpectQuery(`FROM alarms`).
		WithArgs(alarmID).
		WillReturnRows(alarmRows(alarmID, false, true))
	mock.ExpectQuery(`FROM adaptation_records`).
		WillReturnRows(adaptationRows())
	mock.ExpectQuery(`FROM wake_feedback`).
		WillReturnRows(feedbackRows())
	mock.ExpectQuery(`SELECT condition_type`).
		WillReturnRows(sqlmock.NewRows([]string{"condition_type"}))

	metrics, err := agg.GetMetrics(context.Background(), alarmID)

	require.NoError(t, err)
	assert.Empty(t, metrics.Recommendations)

	require.NoError(t, mock.ExpectationsWereMet())
}

// 质量趋势只保留最近 7 次，且持续下滑时给出提示
func TestGetMetrics_QualityDeclineAdvice(t *testing.T) {
	db, mock, agg := setupAggregator(t)
	defer db.Close()

	alarmID := uuid.New().String()

	mock.ExpectQuery(`FROM alarms`).
		WithArgs(alarmID).
		WillReturnRows(alarmRows(alarmID, true, true))

	records := adaptationRows()
	records.AddRow(uuid.New().String(), alarmID, daysAgo(0), 420, 412, "light sleep phase", "sleep_pattern", nil, time.Now())
	mock.ExpectQuery(`FROM adaptation_records`).
		WillReturnRows(records)

	feedback := feedbackRows()
	qualities := []int{9, 9, 8, 8, 7, 7, 5, 4, 3}
	for i, q := range qualities {
		addFeedbackRow(feedback, alarmID, daysAgo(len(qualities)-1-i), 3, 4, q)
	}
	mock.ExpectQuery(`FROM wake_feedback`).
		WillReturnRows(feedback)

	mock.ExpectQuery(`SELECT condition_type`).
		WillReturnRows(sqlmock.NewRows([]string{"condition_type"}))

	metrics, err := agg.GetMetrics(context.Background(), alarmID)

	require.NoError(t, err)
	assert.Equal(t, []int{8, 8, 7, 7, 5, 4, 3}, metrics.SleepQualityTrend)

	require.Len(t, metrics.Recommendations, 1)
	assert.Contains(t, metrics.Recommendations[0], "trending downward")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMetrics_AlarmNotFound(t *testing.T) {
	db, mock, agg := setupAggregator(t)
	defer db.Close()

	alarmID := uuid.New().String()

	mock.ExpectQuery(`FROM alarms`).
		WithArgs(alarmID).
		WillReturnError(sql.ErrNoRows)

	metrics, err := agg.GetMetrics(context.Background(), alarmID)

	assert.Error(t, err)
	assert.Nil(t, metrics)
	var nfErr *models.NotFoundError
	assert.ErrorAs(t, err, &nfErr)

	require.NoError(t, mock.ExpectationsWereMet())
}
