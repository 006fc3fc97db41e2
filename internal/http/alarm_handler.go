// Package httpapi 自适应唤醒服务的 HTTP API 层
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"smartwake/internal/consumer"
	"smartwake/internal/models"
	"smartwake/internal/service"

	"go.uber.org/zap"
)

// WakeService HTTP 层所需的服务操作面
type WakeService interface {
	CreateAlarm(ctx context.Context, req service.CreateAlarmRequest) (*models.Alarm, error)
	GetAlarm(ctx context.Context, alarmID string) (*models.Alarm, error)
	ListConditions(ctx context.Context, alarmID string) ([]*models.ConditionDefinition, error)
	UpdateAlarmSettings(ctx context.Context, alarmID string, req service.UpdateAlarmRequest) (*models.Alarm, error)
	TickNow(ctx context.Context, alarmID string) (consumer.RunnerState, error)
	CalculateOptimalTimeSlots(ctx context.Context, alarmID string) ([]models.OptimalTimeSlot, error)
	RecordWakeUpFeedback(ctx context.Context, alarmID string, fb *models.WakeUpFeedback) error
	GetMetrics(ctx context.Context, alarmID string) (*models.SmartAlarmMetrics, error)
	UpsertCondition(ctx context.Context, alarmID string, cond *models.ConditionDefinition) (*models.ConditionDefinition, error)
	UpsertSleepPattern(ctx context.Context, pattern *models.SleepPattern) error
}

// AlarmHandler 闹钟 API Handler
type AlarmHandler struct {
	service WakeService
	logger  *zap.Logger
}

// NewAlarmHandler 创建闹钟 API Handler
func NewAlarmHandler(service WakeService, logger *zap.Logger) *AlarmHandler {
	return &AlarmHandler{
		service: service,
		logger:  logger,
	}
}

// ServeAlarms 处理 /api/v1/alarms（集合路由）
func (h *AlarmHandler) ServeAlarms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.CreateAlarm(w, r)
}

// ServeAlarmByID 处理 /api/v1/alarms/{id}[/...]（子资源路由）
// 支持：
//   - GET    /api/v1/alarms/{id}                       - 获取闹钟
//   - PATCH  /api/v1/alarms/{id}                       - 更新设置
//   - POST   /api/v1/alarms/{id}/tick                  - 立即评估
//   - GET    /api/v1/alarms/{id}/slots                 - 候选唤醒时间槽
//   - POST   /api/v1/alarms/{id}/feedback              - 记录唤醒反馈
//   - GET    /api/v1/alarms/{id}/metrics               - 效果指标
//   - GET    /api/v1/alarms/{id}/metrics/export        - 指标导出（Excel）
//   - GET    /api/v1/alarms/{id}/conditions            - 条件列表
//   - PUT    /api/v1/alarms/{id}/conditions/{cond_id}  - 新建/更新条件
func (h *AlarmHandler) ServeAlarmByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/alarms/")
	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	alarmID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.GetAlarm(w, r, alarmID)
		case http.MethodPatch:
			h.UpdateAlarm(w, r, alarmID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "tick":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.TickNow(w, r, alarmID)
	case len(parts) == 2 && parts[1] == "slots":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetOptimalTimeSlots(w, r, alarmID)
	case len(parts) == 2 && parts[1] == "feedback":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.RecordFeedback(w, r, alarmID)
	case len(parts) == 2 && parts[1] == "metrics":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetMetrics(w, r, alarmID)
	case len(parts) == 3 && parts[1] == "metrics" && parts[2] == "export":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ExportMetrics(w, r, alarmID)
	case len(parts) == 2 && parts[1] == "conditions":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListConditions(w, r, alarmID)
	case len(parts) == 3 && parts[1] == "conditions":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.UpsertCondition(w, r, alarmID, parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ServeUserByID 处理 /api/v1/users/{id}/sleep-pattern
func (h *AlarmHandler) ServeUserByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/users/")
	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "sleep-pattern" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.UpsertSleepPattern(w, r, parts[0])
}

// CreateAlarm 创建自适应闹钟
// POST /api/v1/alarms
func (h *AlarmHandler) CreateAlarm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createAlarmRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("user_id is required"))
		return
	}

	baseline, err := models.ParseClock(req.WakeTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(fmt.Sprintf("invalid wake_time: %v", err)))
		return
	}

	alarm, err := h.service.CreateAlarm(ctx, service.CreateAlarmRequest{
		UserID:             req.UserID,
		Label:              req.Label,
		BaselineMinutes:    baseline,
		WakeWindowMinutes:  req.WakeWindowMinutes,
		RealTimeAdaptation: req.RealTimeAdaptation,
		SleepPatternWeight: req.SleepPatternWeight,
		LearningFactor:     req.LearningFactor,
	})
	if err != nil {
		h.logger.Error("CreateAlarm failed",
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		writeFail(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Ok(toAlarmResponse(alarm)))
}

// GetAlarm 获取闹钟
// GET /api/v1/alarms/{id}
func (h *AlarmHandler) GetAlarm(w http.ResponseWriter, r *http.Request, alarmID string) {
	alarm, err := h.service.GetAlarm(r.Context(), alarmID)
	if err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toAlarmResponse(alarm)))
}

// UpdateAlarm 部分更新闹钟设置
// PATCH /api/v1/alarms/{id}
func (h *AlarmHandler) UpdateAlarm(w http.ResponseWriter, r *http.Request, alarmID string) {
	ctx := r.Context()

	var req updateAlarmRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	update := service.UpdateAlarmRequest{
		Label:              req.Label,
		WakeWindowMinutes:  req.WakeWindowMinutes,
		Enabled:            req.Enabled,
		RealTimeAdaptation: req.RealTimeAdaptation,
		SleepPatternWeight: req.SleepPatternWeight,
		LearningFactor:     req.LearningFactor,
	}
	if req.WakeTime != nil {
		baseline, err := models.ParseClock(*req.WakeTime)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail(fmt.Sprintf("invalid wake_time: %v", err)))
			return
		}
		update.BaselineMinutes = &baseline
	}

	alarm, err := h.service.UpdateAlarmSettings(ctx, alarmID, update)
	if err != nil {
		h.logger.Error("UpdateAlarm failed",
			zap.String("alarm_id", alarmID),
			zap.Error(err),
		)
		writeFail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(toAlarmResponse(alarm)))
}

// TickNow 立即触发一次自适应评估
// POST /api/v1/alarms/{id}/tick
func (h *AlarmHandler) TickNow(w http.ResponseWriter, r *http.Request, alarmID string) {
	ctx := r.Context()

	outcome, err := h.service.TickNow(ctx, alarmID)
	if err != nil {
		h.logger.Error("TickNow failed",
			zap.String("alarm_id", alarmID),
			zap.Error(err),
		)
		writeFail(w, err)
		return
	}

	alarm, err := h.service.GetAlarm(ctx, alarmID)
	if err != nil {
		writeFail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(tickResponse{
		Outcome: string(outcome),
		Alarm:   toAlarmResponse(alarm),
	}))
}

// GetOptimalTimeSlots 计算候选唤醒时间槽
// GET /api/v1/alarms/{id}/slots
func (h *AlarmHandler) GetOptimalTimeSlots(w http.ResponseWriter, r *http.Request, alarmID string) {
	slots, err := h.service.CalculateOptimalTimeSlots(r.Context(), alarmID)
	if err != nil {
		h.logger.Error("CalculateOptimalTimeSlots failed",
			zap.String("alarm_id", alarmID),
			zap.Error(err),
		)
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(slots))
}

// RecordFeedback 记录唤醒反馈
// POST /api/v1/alarms/{id}/feedback
func (h *AlarmHandler) RecordFeedback(w http.ResponseWriter, r *http.Request, alarmID string) {
	ctx := r.Context()

	var req feedbackRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	actual, err := models.ParseClock(req.ActualWakeTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(fmt.Sprintf("invalid actual_wake_time: %v", err)))
		return
	}

	fb := &models.WakeUpFeedback{
		AlarmID:           alarmID,
		Date:              req.Date,
		ActualWakeMinutes: actual,
		Difficulty:        req.Difficulty,
		Feeling:           req.Feeling,
		SleepQuality:      req.SleepQuality,
		TimeToFullyAwake:  req.TimeToFullyAwake,
		WokeUpNaturally:   req.WokeUpNaturally,
		WouldPreferLater:  req.WouldPreferLater,
		Notes:             req.Notes,
	}
	if req.OriginalWakeTime != "" {
		original, err := models.ParseClock(req.OriginalWakeTime)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail(fmt.Sprintf("invalid original_wake_time: %v", err)))
			return
		}
		fb.OriginalMinutes = original
	}

	if err := h.service.RecordWakeUpFeedback(ctx, alarmID, fb); err != nil {
		h.logger.Error("RecordFeedback failed",
			zap.String("alarm_id", alarmID),
			zap.Error(err),
		)
		writeFail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// GetMetrics 获取闹钟效果指标
// GET /api/v1/alarms/{id}/metrics
func (h *AlarmHandler) GetMetrics(w http.ResponseWriter, r *http.Request, alarmID string) {
	m, err := h.service.GetMetrics(r.Context(), alarmID)
	if err != nil {
		h.logger.Error("GetMetrics failed",
			zap.String("alarm_id", alarmID),
			zap.Error(err),
		)
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(m))
}

// ExportMetrics 导出闹钟效果指标 Excel
// GET /api/v1/alarms/{id}/metrics/export
func (h *AlarmHandler) ExportMetrics(w http.ResponseWriter, r *http.Request, alarmID string) {
	m, err := h.service.GetMetrics(r.Context(), alarmID)
	if err != nil {
		h.logger.Error("ExportMetrics failed",
			zap.String("alarm_id", alarmID),
			zap.Error(err),
		)
		writeFail(w, err)
		return
	}

	excelData, err := GenerateMetricsExport(m)
	if err != nil {
		h.logger.Error("GenerateMetricsExport failed",
			zap.String("alarm_id", alarmID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail(fmt.Sprintf("failed to generate export: %v", err)))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=alarm-metrics-%s.xlsx", alarmID))
	w.WriteHeader(http.StatusOK)
	w.Write(excelData)
}

// ListConditions 列出闹钟的全部条件定义
// GET /api/v1/alarms/{id}/conditions
func (h *AlarmHandler) ListConditions(w http.ResponseWriter, r *http.Request, alarmID string) {
	conditions, err := h.service.ListConditions(r.Context(), alarmID)
	if err != nil {
		writeFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(conditions))
}

// UpsertCondition 新建或更新条件定义
// PUT /api/v1/alarms/{id}/conditions/{cond_id}
func (h *AlarmHandler) UpsertCondition(w http.ResponseWriter, r *http.Request, alarmID, conditionID string) {
	ctx := r.Context()

	var cond models.ConditionDefinition
	if err := readBodyJSON(r, 1<<20, &cond); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	cond.ConditionID = conditionID

	saved, err := h.service.UpsertCondition(ctx, alarmID, &cond)
	if err != nil {
		h.logger.Error("UpsertCondition failed",
			zap.String("alarm_id", alarmID),
			zap.String("condition_id", conditionID),
			zap.Error(err),
		)
		writeFail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(saved))
}

// UpsertSleepPattern 写入用户睡眠画像
// PUT /api/v1/users/{id}/sleep-pattern
func (h *AlarmHandler) UpsertSleepPattern(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()

	var req sleepPatternRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	bed, err := models.ParseClock(req.TypicalBedTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(fmt.Sprintf("invalid typical_bed_time: %v", err)))
		return
	}
	wake, err := models.ParseClock(req.TypicalWakeTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(fmt.Sprintf("invalid typical_wake_time: %v", err)))
		return
	}

	pattern := &models.SleepPattern{
		UserID:             userID,
		AvgSleepDuration:   req.AvgSleepDuration,
		SleepEfficiency:    req.SleepEfficiency,
		TypicalBedMinutes:  bed,
		TypicalWakeMinutes: wake,
	}
	if err := h.service.UpsertSleepPattern(ctx, pattern); err != nil {
		h.logger.Error("UpsertSleepPattern failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		writeFail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// Healthz 健康检查
// GET /healthz
func (h *AlarmHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]any{"status": "ok"}))
}
