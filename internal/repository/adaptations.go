package repository

import (
	"context"
	"database/sql"
	"fmt"

	"smartwake/internal/models"

	"go.uber.org/zap"
)

// AdaptationsRepository 调整历史仓库（只追加）
type AdaptationsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAdaptationsRepository 创建调整历史仓库
func NewAdaptationsRepository(db *sql.DB, logger *zap.Logger) *AdaptationsRepository {
	return &AdaptationsRepository{
		db:     db,
		logger: logger,
	}
}

const adaptationColumns = `
	record_id,
	alarm_id,
	date,
	original_minutes,
	adjusted_minutes,
	reason,
	source,
	effectiveness,
	created_at
`

// scanAdaptation 扫描单行调整记录
func scanAdaptation(row rowScanner) (*models.AdaptationRecord, error) {
	var record models.AdaptationRecord
	var effectiveness sql.NullFloat64

	err := row.Scan(
		&record.RecordID,
		&record.AlarmID,
		&record.Date,
		&record.OriginalMinutes,
		&record.AdjustedMinutes,
		&record.Reason,
		&record.Source,
		&effectiveness,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if effectiveness.Valid {
		record.Effectiveness = &effectiveness.Float64
	}
	return &record, nil
}

// AppendRecord 追加调整记录（历史只增不改，effectiveness 除外）
func (r *AdaptationsRepository) AppendRecord(ctx context.Context, record *models.AdaptationRecord) error {
	if record == nil {
		return models.NewValidationError("record", "record is required")
	}
	if record.AlarmID == "" {
		return models.NewValidationError("alarm_id", "alarm_id is required")
	}

	query := `
		INSERT INTO adaptation_records (
			record_id,
			alarm_id,
			date,
			original_minutes,
			adjusted_minutes,
			reason,
			source,
			effectiveness,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	var effectiveness sql.NullFloat64
	if record.Effectiveness != nil {
		effectiveness = sql.NullFloat64{Float64: *record.Effectiveness, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		record.RecordID,
		record.AlarmID,
		record.Date,
		record.OriginalMinutes,
		record.AdjustedMinutes,
		record.Reason,
		record.Source,
		effectiveness,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append adaptation record: %w", err)
	}

	return nil
}

// ListRecordsSince 列出起始日期（含）之后的调整记录，时间正序
func (r *AdaptationsRepository) ListRecordsSince(ctx context.Context, alarmID, sinceDate string) ([]*models.AdaptationRecord, error) {
	if alarmID == "" {
		return nil, models.NewValidationError("alarm_id", "alarm_id is required")
	}
	if sinceDate == "" {
		return nil, models.NewValidationError("since_date", "since_date is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM adaptation_records
		WHERE alarm_id = $1
		  AND date >= $2
		ORDER BY created_at
	`, adaptationColumns)

	rows, err := r.db.QueryContext(ctx, query, alarmID, sinceDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list adaptation records: %w", err)
	}
	defer rows.Close()

	records := []*models.AdaptationRecord{}
	for rows.Next() {
		record, err := scanAdaptation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan adaptation record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate adaptation records: %w", err)
	}

	return records, nil
}

// BackfillEffectiveness 回填某日调整记录的效果值（仅填充尚未有值的行，一次性）
func (r *AdaptationsRepository) BackfillEffectiveness(ctx context.Context, alarmID, date string, effectiveness float64) (int64, error) {
	if alarmID == "" {
		return 0, models.NewValidationError("alarm_id", "alarm_id is required")
	}
	if date == "" {
		return 0, models.NewValidationError("date", "date is required")
	}

	query := `
		UPDATE adaptation_records
		SET effectiveness = $3
		WHERE alarm_id = $1
		  AND date = $2
		  AND effectiveness IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, alarmID, date, effectiveness)
	if err != nil {
		return 0, fmt.Errorf("failed to backfill effectiveness: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
