package repository

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
)

func setupMockPatternsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SleepPatternsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewSleepPatternsRepository(db, logger)

	return db, mock, repo
}

func TestGetSleepPattern_Success(t *testing.T) {
	db, mock, repo := setupMockPatternsDB(t)
	defer db.Close()

	userID := uuid.New().String()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"user_id", "avg_sleep_duration", "sleep_efficiency",
		"typical_bed_minutes", "typical_wake_minutes", "updated_at",
	}).AddRow(userID, 450, 0.85, 1380, 420, now)

	mock.ExpectQuery(`SELECT`).
		WithArgs(userID).
		WillReturnRows(rows)

	pattern, err := repo.GetSleepPattern(context.Background(), userID)

	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.Equal(t, 450, pattern.AvgSleepDuration)
	assert.Equal(t, 0.85, pattern.SleepEfficiency)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSleepPattern_NoRows(t *testing.T) {
	db, mock, repo := setupMockPatternsDB(t)
	defer db.Close()

	userID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(userID).
		WillReturnError(sql.ErrNoRows)

	pattern, err := repo.GetSleepPattern(context.Background(), userID)

	// 无画像不是错误，调用方回落到默认画像
	require.NoError(t, err)
	assert.Nil(t, pattern)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSleepPattern_Success(t *testing.T) {
	db, mock, repo := setupMockPatternsDB(t)
	defer db.Close()

	pattern := &models.SleepPattern{
		UserID:             uuid.New().String(),
		AvgSleepDuration:   460,
		SleepEfficiency:    0.9,
		TypicalBedMinutes:  1380,
		TypicalWakeMinutes: 430,
	}

	mock.ExpectExec(`INSERT INTO sleep_patterns`).
		WithArgs(pattern.UserID, 460, 0.9, 1380, 430).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.UpsertSleepPattern(context.Background(), pattern)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSleepPattern_InvalidEfficiency(t *testing.T) {
	db, mock, repo := setupMockPatternsDB(t)
	defer db.Close()

	pattern := &models.SleepPattern{
		UserID:          uuid.New().String(),
		SleepEfficiency: 1.4,
	}

	err := repo.UpsertSleepPattern(context.Background(), pattern)

	assert.Error(t, err)
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)

	require.NoError(t, mock.ExpectationsWereMet())
}
