package repository

import (
	"context"
	"database/sql"
	"fmt"

	"smartwake/internal/models"

	"go.uber.org/zap"
)

// FeedbackRepository 唤醒反馈仓库（只追加）
type FeedbackRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFeedbackRepository 创建唤醒反馈仓库
func NewFeedbackRepository(db *sql.DB, logger *zap.Logger) *FeedbackRepository {
	return &FeedbackRepository{
		db:     db,
		logger: logger,
	}
}

const feedbackColumns = `
	feedback_id,
	alarm_id,
	date,
	original_minutes,
	actual_wake_minutes,
	difficulty,
	feeling,
	sleep_quality,
	time_to_fully_awake,
	woke_up_naturally,
	would_prefer_later,
	notes,
	created_at
`

// scanFeedback 扫描单行反馈记录
func scanFeedback(row rowScanner) (*models.WakeUpFeedback, error) {
	var fb models.WakeUpFeedback
	var notes sql.NullString

	err := row.Scan(
		&fb.FeedbackID,
		&fb.AlarmID,
		&fb.Date,
		&fb.OriginalMinutes,
		&fb.ActualWakeMinutes,
		&fb.Difficulty,
		&fb.Feeling,
		&fb.SleepQuality,
		&fb.TimeToFullyAwake,
		&fb.WokeUpNaturally,
		&fb.WouldPreferLater,
		&notes,
		&fb.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if notes.Valid {
		fb.Notes = &notes.String
	}
	return &fb, nil
}

// AppendFeedback 追加唤醒反馈（校验先行）
func (r *FeedbackRepository) AppendFeedback(ctx context.Context, fb *models.WakeUpFeedback) error {
	if fb == nil {
		return models.NewValidationError("feedback", "feedback is required")
	}
	if err := fb.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO wake_feedback (
			feedback_id,
			alarm_id,
			date,
			original_minutes,
			actual_wake_minutes,
			difficulty,
			feeling,
			sleep_quality,
			time_to_fully_awake,
			woke_up_naturally,
			would_prefer_later,
			notes,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	var notes sql.NullString
	if fb.Notes != nil {
		notes = sql.NullString{String: *fb.Notes, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		fb.FeedbackID,
		fb.AlarmID,
		fb.Date,
		fb.OriginalMinutes,
		fb.ActualWakeMinutes,
		fb.Difficulty,
		fb.Feeling,
		fb.SleepQuality,
		fb.TimeToFullyAwake,
		fb.WokeUpNaturally,
		fb.WouldPreferLater,
		notes,
		fb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append feedback: %w", err)
	}

	return nil
}

// ListRecentFeedback 列出最近 N 条反馈，时间倒序（睡眠模式调整器取最近 5 条）
func (r *FeedbackRepository) ListRecentFeedback(ctx context.Context, alarmID string, limit int) ([]*models.WakeUpFeedback, error) {
	if alarmID == "" {
		return nil, models.NewValidationError("alarm_id", "alarm_id is required")
	}
	if limit <= 0 {
		limit = 5
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM wake_feedback
		WHERE alarm_id = $1
		ORDER BY date DESC, created_at DESC
		LIMIT $2
	`, feedbackColumns)

	rows, err := r.db.QueryContext(ctx, query, alarmID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent feedback: %w", err)
	}
	defer rows.Close()

	feedback := []*models.WakeUpFeedback{}
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		feedback = append(feedback, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback: %w", err)
	}

	return feedback, nil
}

// ListFeedbackSince 列出起始日期（含）之后的反馈，时间正序（指标聚合用）
func (r *FeedbackRepository) ListFeedbackSince(ctx context.Context, alarmID, sinceDate string) ([]*models.WakeUpFeedback, error) {
	if alarmID == "" {
		return nil, models.NewValidationError("alarm_id", "alarm_id is required")
	}
	if sinceDate == "" {
		return nil, models.NewValidationError("since_date", "since_date is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM wake_feedback
		WHERE alarm_id = $1
		  AND date >= $2
		ORDER BY date, created_at
	`, feedbackColumns)

	rows, err := r.db.QueryContext(ctx, query, alarmID, sinceDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	feedback := []*models.WakeUpFeedback{}
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		feedback = append(feedback, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback: %w", err)
	}

	return feedback, nil
}
