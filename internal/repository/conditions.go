package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"smartwake/internal/models"

	"go.uber.org/zap"
)

// ConditionsRepository 条件定义仓库（条件目录的持久化层）
type ConditionsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewConditionsRepository 创建条件定义仓库
func NewConditionsRepository(db *sql.DB, logger *zap.Logger) *ConditionsRepository {
	return &ConditionsRepository{
		db:     db,
		logger: logger,
	}
}

const conditionColumns = `
	condition_id,
	alarm_id,
	condition_type,
	enabled,
	priority,
	trigger,
	adjustment,
	effectiveness_score,
	last_triggered,
	created_at,
	updated_at
`

// scanCondition 扫描单行条件定义，trigger/adjustment 为 JSONB
func scanCondition(row rowScanner) (*models.ConditionDefinition, error) {
	var cond models.ConditionDefinition
	var trigger, adjustment []byte
	var lastTriggered sql.NullTime

	err := row.Scan(
		&cond.ConditionID,
		&cond.AlarmID,
		&cond.Type,
		&cond.Enabled,
		&cond.Priority,
		&trigger,
		&adjustment,
		&cond.EffectivenessScore,
		&lastTriggered,
		&cond.CreatedAt,
		&cond.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(trigger, &cond.Trigger); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger: %w", err)
	}
	if err := json.Unmarshal(adjustment, &cond.Adjustment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal adjustment: %w", err)
	}
	if lastTriggered.Valid {
		cond.LastTriggered = &lastTriggered.Time
	}
	return &cond, nil
}

// ============================================
// 基础 CRUD 操作
// ============================================

// GetCondition 根据 condition_id 获取条件定义
func (r *ConditionsRepository) GetCondition(ctx context.Context, conditionID string) (*models.ConditionDefinition, error) {
	if conditionID == "" {
		return nil, models.NewValidationError("condition_id", "condition_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alarm_conditions
		WHERE condition_id = $1
	`, conditionColumns)

	cond, err := scanCondition(r.db.QueryRowContext(ctx, query, conditionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.NewNotFoundError("condition", conditionID)
		}
		return nil, fmt.Errorf("failed to get condition: %w", err)
	}

	return cond, nil
}

// ListConditions 列出闹钟的条件定义，enabledOnly 时只返回启用的
func (r *ConditionsRepository) ListConditions(ctx context.Context, alarmID string, enabledOnly bool) ([]*models.ConditionDefinition, error) {
	if alarmID == "" {
		return nil, models.NewValidationError("alarm_id", "alarm_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alarm_conditions
		WHERE alarm_id = $1
	`, conditionColumns)
	if enabledOnly {
		query += " AND enabled = TRUE"
	}
	query += " ORDER BY priority, condition_type"

	rows, err := r.db.QueryContext(ctx, query, alarmID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	defer rows.Close()

	conditions := []*models.ConditionDefinition{}
	for rows.Next() {
		cond, err := scanCondition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		conditions = append(conditions, cond)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conditions: %w", err)
	}

	return conditions, nil
}

// UpsertCondition 插入或更新条件定义（校验先行）
// 历史记录可能引用条件，故没有删除操作，只能禁用
func (r *ConditionsRepository) UpsertCondition(ctx context.Context, cond *models.ConditionDefinition) error {
	if cond == nil {
		return models.NewValidationError("condition", "condition is required")
	}
	if cond.ConditionID == "" {
		return models.NewValidationError("condition_id", "condition_id is required")
	}
	if err := cond.Validate(); err != nil {
		return err
	}

	trigger, err := json.Marshal(cond.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}
	adjustment, err := json.Marshal(cond.Adjustment)
	if err != nil {
		return fmt.Errorf("failed to marshal adjustment: %w", err)
	}

	var lastTriggered sql.NullTime
	if cond.LastTriggered != nil {
		lastTriggered = sql.NullTime{Time: *cond.LastTriggered, Valid: true}
	}

	query := `
		INSERT INTO alarm_conditions (
			condition_id,
			alarm_id,
			condition_type,
			enabled,
			priority,
			trigger,
			adjustment,
			effectiveness_score,
			last_triggered,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
		)
		ON CONFLICT (condition_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			priority = EXCLUDED.priority,
			trigger = EXCLUDED.trigger,
			adjustment = EXCLUDED.adjustment,
			effectiveness_score = EXCLUDED.effectiveness_score,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = r.db.ExecContext(ctx, query,
		cond.ConditionID,
		cond.AlarmID,
		cond.Type,
		cond.Enabled,
		cond.Priority,
		trigger,
		adjustment,
		cond.EffectivenessScore,
		lastTriggered,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert condition: %w", err)
	}

	return nil
}

// ============================================
// 学习与触发状态
// ============================================

// ApplyEffectivenessSample 以 EMA 方式更新 effectiveness_score（数据库内原子执行，
// 反馈写入可以与评估 tick 并发，不会出现读-改-写竞争）
// newScore = current*(1-learningFactor) + sample*learningFactor
func (r *ConditionsRepository) ApplyEffectivenessSample(ctx context.Context, conditionID string, learningFactor, sample float64) error {
	if conditionID == "" {
		return models.NewValidationError("condition_id", "condition_id is required")
	}
	if learningFactor < 0 || learningFactor > 1 {
		return models.NewValidationError("learning_factor", "learning factor must be in [0, 1]")
	}
	if sample < 0 || sample > 1 {
		return models.NewValidationError("sample", "effectiveness sample must be in [0, 1]")
	}

	query := `
		UPDATE alarm_conditions
		SET effectiveness_score = LEAST(1.0, GREATEST(0.0, effectiveness_score * (1 - $2) + $3 * $2)),
		    updated_at = CURRENT_TIMESTAMP
		WHERE condition_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, conditionID, learningFactor, sample)
	if err != nil {
		return fmt.Errorf("failed to apply effectiveness sample: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.NewNotFoundError("condition", conditionID)
	}

	return nil
}

// MarkTriggered 批量写入 last_triggered（由自适应循环在应用调整后调用，求值器无副作用）
func (r *ConditionsRepository) MarkTriggered(ctx context.Context, conditionIDs []string, when time.Time) error {
	if len(conditionIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(conditionIDs))
	args := []interface{}{when}
	for i, id := range conditionIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		UPDATE alarm_conditions
		SET last_triggered = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE condition_id IN (%s)
	`, strings.Join(placeholders, ", "))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark conditions triggered: %w", err)
	}

	return nil
}

// ListTriggeredOn 列出某日历日触发过的条件（反馈学习用）
func (r *ConditionsRepository) ListTriggeredOn(ctx context.Context, alarmID, date string) ([]*models.ConditionDefinition, error) {
	if alarmID == "" {
		return nil, models.NewValidationError("alarm_id", "alarm_id is required")
	}
	if date == "" {
		return nil, models.NewValidationError("date", "date is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alarm_conditions
		WHERE alarm_id = $1
		  AND last_triggered IS NOT NULL
		  AND DATE(last_triggered) = $2
	`, conditionColumns)

	rows, err := r.db.QueryContext(ctx, query, alarmID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggered conditions: %w", err)
	}
	defer rows.Close()

	conditions := []*models.ConditionDefinition{}
	for rows.Next() {
		cond, err := scanCondition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		conditions = append(conditions, cond)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conditions: %w", err)
	}

	return conditions, nil
}

// TopEffectiveTypes 按 effectiveness_score 取前 N 个条件类型（指标聚合用）
func (r *ConditionsRepository) TopEffectiveTypes(ctx context.Context, alarmID string, limit int) ([]models.ConditionType, error) {
	if alarmID == "" {
		return nil, models.NewValidationError("alarm_id", "alarm_id is required")
	}
	if limit <= 0 {
		limit = 3
	}

	query := `
		SELECT condition_type
		FROM alarm_conditions
		WHERE alarm_id = $1
		ORDER BY effectiveness_score DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, alarmID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top effective types: %w", err)
	}
	defer rows.Close()

	types := []models.ConditionType{}
	for rows.Next() {
		var t models.ConditionType
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan condition type: %w", err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate condition types: %w", err)
	}

	return types, nil
}
