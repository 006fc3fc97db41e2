package repository

import (
	"context"
	"database/sql"
	"fmt"

	"smartwake/internal/models"

	"go.uber.org/zap"
)

// SleepPatternsRepository 睡眠画像仓库（引擎侧只读，画像由上游分析管道写入）
type SleepPatternsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSleepPatternsRepository 创建睡眠画像仓库
func NewSleepPatternsRepository(db *sql.DB, logger *zap.Logger) *SleepPatternsRepository {
	return &SleepPatternsRepository{
		db:     db,
		logger: logger,
	}
}

// GetSleepPattern 获取用户睡眠画像，无记录时返回 nil（调用方使用默认画像）
func (r *SleepPatternsRepository) GetSleepPattern(ctx context.Context, userID string) (*models.SleepPattern, error) {
	if userID == "" {
		return nil, models.NewValidationError("user_id", "user_id is required")
	}

	query := `
		SELECT
			user_id,
			avg_sleep_duration,
			sleep_efficiency,
			typical_bed_minutes,
			typical_wake_minutes,
			updated_at
		FROM sleep_patterns
		WHERE user_id = $1
	`

	var pattern models.SleepPattern
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&pattern.UserID,
		&pattern.AvgSleepDuration,
		&pattern.SleepEfficiency,
		&pattern.TypicalBedMinutes,
		&pattern.TypicalWakeMinutes,
		&pattern.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 无画像数据，正常情况
		}
		return nil, fmt.Errorf("failed to get sleep pattern: %w", err)
	}

	return &pattern, nil
}

// UpsertSleepPattern 写入用户睡眠画像
func (r *SleepPatternsRepository) UpsertSleepPattern(ctx context.Context, pattern *models.SleepPattern) error {
	if pattern == nil {
		return models.NewValidationError("pattern", "pattern is required")
	}
	if pattern.UserID == "" {
		return models.NewValidationError("user_id", "user_id is required")
	}
	if pattern.SleepEfficiency < 0 || pattern.SleepEfficiency > 1 {
		return models.NewValidationError("sleep_efficiency", "sleep efficiency must be in [0, 1]")
	}

	query := `
		INSERT INTO sleep_patterns (
			user_id,
			avg_sleep_duration,
			sleep_efficiency,
			typical_bed_minutes,
			typical_wake_minutes,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, CURRENT_TIMESTAMP
		)
		ON CONFLICT (user_id) DO UPDATE SET
			avg_sleep_duration = EXCLUDED.avg_sleep_duration,
			sleep_efficiency = EXCLUDED.sleep_efficiency,
			typical_bed_minutes = EXCLUDED.typical_bed_minutes,
			typical_wake_minutes = EXCLUDED.typical_wake_minutes,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query,
		pattern.UserID,
		pattern.AvgSleepDuration,
		pattern.SleepEfficiency,
		pattern.TypicalBedMinutes,
		pattern.TypicalWakeMinutes,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sleep pattern: %w", err)
	}

	return nil
}
