package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"smartwake/internal/models"

	"go.uber.org/zap"
)

// AlarmsRepository 闹钟仓库
type AlarmsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlarmsRepository 创建闹钟仓库
func NewAlarmsRepository(db *sql.DB, logger *zap.Logger) *AlarmsRepository {
	return &AlarmsRepository{
		db:     db,
		logger: logger,
	}
}

// rowScanner *sql.Row 和 *sql.Rows 的公共扫描接口
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const alarmColumns = `
	alarm_id,
	user_id,
	label,
	baseline_minutes,
	wake_window_minutes,
	enabled,
	real_time_adaptation,
	sleep_pattern_weight,
	learning_factor,
	adjusted_minutes,
	created_at,
	updated_at
`

// scanAlarm 扫描单行闹钟记录
func scanAlarm(row rowScanner) (*models.Alarm, error) {
	var alarm models.Alarm
	var adjusted sql.NullInt64

	err := row.Scan(
		&alarm.AlarmID,
		&alarm.UserID,
		&alarm.Label,
		&alarm.BaselineMinutes,
		&alarm.WakeWindowMinutes,
		&alarm.Enabled,
		&alarm.RealTimeAdaptation,
		&alarm.SleepPatternWeight,
		&alarm.LearningFactor,
		&adjusted,
		&alarm.CreatedAt,
		&alarm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if adjusted.Valid {
		v := int(adjusted.Int64)
		alarm.AdjustedMinutes = &v
	}
	return &alarm, nil
}

// CreateAlarm 创建闹钟
func (r *AlarmsRepository) CreateAlarm(ctx context.Context, alarm *models.Alarm) error {
	if alarm == nil {
		return models.NewValidationError("alarm", "alarm is required")
	}
	if err := alarm.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO alarms (
			alarm_id,
			user_id,
			label,
			baseline_minutes,
			wake_window_minutes,
			enabled,
			real_time_adaptation,
			sleep_pattern_weight,
			learning_factor,
			adjusted_minutes,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	var adjusted sql.NullInt64
	if alarm.AdjustedMinutes != nil {
		adjusted = sql.NullInt64{Int64: int64(*alarm.AdjustedMinutes), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		alarm.AlarmID,
		alarm.UserID,
		alarm.Label,
		alarm.BaselineMinutes,
		alarm.WakeWindowMinutes,
		alarm.Enabled,
		alarm.RealTimeAdaptation,
		alarm.SleepPatternWeight,
		alarm.LearningFactor,
		adjusted,
		alarm.CreatedAt,
		alarm.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alarm: %w", err)
	}

	return nil
}

// GetAlarm 根据 alarm_id 获取闹钟
func (r *AlarmsRepository) GetAlarm(ctx context.Context, alarmID string) (*models.Alarm, error) {
	if alarmID == "" {
		return nil, models.NewValidationError("alarm_id", "alarm_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alarms
		WHERE alarm_id = $1
	`, alarmColumns)

	alarm, err := scanAlarm(r.db.QueryRowContext(ctx, query, alarmID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.NewNotFoundError("alarm", alarmID)
		}
		return nil, fmt.Errorf("failed to get alarm: %w", err)
	}

	return alarm, nil
}

// ListAdaptiveAlarms 列出启用了实时自适应的闹钟（自适应循环的工作集）
func (r *AlarmsRepository) ListAdaptiveAlarms(ctx context.Context) ([]*models.Alarm, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM alarms
		WHERE enabled = TRUE
		  AND real_time_adaptation = TRUE
		ORDER BY created_at
	`, alarmColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list adaptive alarms: %w", err)
	}
	defer rows.Close()

	alarms := []*models.Alarm{}
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alarm: %w", err)
		}
		alarms = append(alarms, alarm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alarms: %w", err)
	}

	return alarms, nil
}

// UpdateAlarmSettings 部分更新闹钟设置
// updates 是要更新的字段 map，仅允许用户可编辑字段
func (r *AlarmsRepository) UpdateAlarmSettings(ctx context.Context, alarmID string, updates map[string]interface{}) error {
	if alarmID == "" {
		return models.NewValidationError("alarm_id", "alarm_id is required")
	}
	if len(updates) == 0 {
		return models.NewValidationError("updates", "updates cannot be empty")
	}

	// 允许更新的字段
	allowedFields := map[string]bool{
		"label":                true,
		"baseline_minutes":     true,
		"wake_window_minutes":  true,
		"enabled":              true,
		"real_time_adaptation": true,
		"sleep_pattern_weight": true,
		"learning_factor":      true,
		"adjusted_minutes":     true,
	}

	setParts := []string{}
	args := []interface{}{}
	argN := 1

	for field, value := range updates {
		if !allowedFields[field] {
			return models.NewValidationError(field, "field is not allowed to update")
		}
		setParts = append(setParts, fmt.Sprintf("%s = $%d", field, argN))
		args = append(args, value)
		argN++
	}

	setParts = append(setParts, "updated_at = CURRENT_TIMESTAMP")

	args = append(args, alarmID)
	query := fmt.Sprintf(`
		UPDATE alarms
		SET %s
		WHERE alarm_id = $%d
	`, strings.Join(setParts, ", "), argN)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update alarm: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.NewNotFoundError("alarm", alarmID)
	}

	return nil
}

// SetAdjustedTime 持久化自适应调整后的唤醒时间（nil 表示回落到基准时间）
func (r *AlarmsRepository) SetAdjustedTime(ctx context.Context, alarmID string, minutes *int) error {
	if alarmID == "" {
		return models.NewValidationError("alarm_id", "alarm_id is required")
	}

	var adjusted sql.NullInt64
	if minutes != nil {
		adjusted = sql.NullInt64{Int64: int64(*minutes), Valid: true}
	}

	query := `
		UPDATE alarms
		SET adjusted_minutes = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE alarm_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, adjusted, alarmID)
	if err != nil {
		return fmt.Errorf("failed to set adjusted time: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.NewNotFoundError("alarm", alarmID)
	}

	return nil
}
