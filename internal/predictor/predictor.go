// Package predictor 睡眠阶段预测服务的 HTTP 客户端。
// 预测模型由独立服务托管，本客户端只负责请求编排与重试。
package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smartwake/internal/config"
	"smartwake/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// predictRequest 预测请求（阶段预测与唤醒建议共用）
type predictRequest struct {
	UserID            string  `json:"user_id"`
	WakeTime          string  `json:"wake_time"` // "HH:MM"，基准唤醒时间
	WakeWindowMinutes int     `json:"wake_window_minutes"`
	AvgSleepDuration  int     `json:"avg_sleep_duration,omitempty"`
	SleepEfficiency   float64 `json:"sleep_efficiency,omitempty"`
	TypicalBedTime    string  `json:"typical_bed_time,omitempty"`
	TypicalWakeTime   string  `json:"typical_wake_time,omitempty"`
}

// predictResponse 预测服务响应信封
type predictResponse struct {
	Status int             `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

// stagePayload 阶段预测的单点载荷
type stagePayload struct {
	Time  string `json:"time"`
	Stage string `json:"stage"`
}

// recommendationPayload 唤醒建议载荷
type recommendationPayload struct {
	Time       string  `json:"time"`
	Confidence float64 `json:"confidence"`
}

// Client 睡眠阶段预测服务客户端
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient 创建预测服务客户端
func NewClient(cfg config.PredictorConfig, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutSec) * time.Second).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// buildRequest 由闹钟与睡眠画像组装请求体，画像可为 nil
func buildRequest(alarm *models.Alarm, pattern *models.SleepPattern) predictRequest {
	req := predictRequest{
		UserID:            alarm.UserID,
		WakeTime:          models.FormatClock(alarm.BaselineMinutes),
		WakeWindowMinutes: alarm.WakeWindowMinutes,
	}
	if pattern != nil {
		req.AvgSleepDuration = pattern.AvgSleepDuration
		req.SleepEfficiency = pattern.SleepEfficiency
		req.TypicalBedTime = models.FormatClock(pattern.TypicalBedMinutes)
		req.TypicalWakeTime = models.FormatClock(pattern.TypicalWakeMinutes)
	}
	return req
}

// call 调用预测服务并返回信封内的数据
func (c *Client) call(ctx context.Context, path string, req predictRequest) (json.RawMessage, error) {
	var response predictResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&response).
		Post(path)

	if err != nil {
		return nil, fmt.Errorf("failed to call predictor: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("predictor returned HTTP %d", resp.StatusCode())
	}
	if response.Status != 0 {
		return nil, fmt.Errorf("predictor error: %s (status: %d)", response.Msg, response.Status)
	}

	return response.Data, nil
}

// Predict 预测今夜围绕基准唤醒时间的睡眠阶段序列
func (c *Client) Predict(ctx context.Context, alarm *models.Alarm, pattern *models.SleepPattern) ([]models.StagePoint, error) {
	req := buildRequest(alarm, pattern)

	c.logger.Debug("Requesting sleep stage prediction",
		zap.String("alarm_id", alarm.AlarmID),
		zap.String("wake_time", req.WakeTime),
	)

	data, err := c.call(ctx, "/predict/stages", req)
	if err != nil {
		c.logger.Error("Sleep stage prediction failed",
			zap.String("alarm_id", alarm.AlarmID),
			zap.Error(err),
		)
		return nil, err
	}

	var payload []stagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stage prediction: %w", err)
	}

	points := make([]models.StagePoint, 0, len(payload))
	for _, p := range payload {
		minutes, err := models.ParseClock(p.Time)
		if err != nil {
			return nil, fmt.Errorf("invalid stage time %q: %w", p.Time, err)
		}
		points = append(points, models.StagePoint{
			Minutes: minutes,
			Stage:   models.SleepStage(p.Stage),
		})
	}

	c.logger.Debug("Received sleep stage prediction",
		zap.String("alarm_id", alarm.AlarmID),
		zap.Int("point_count", len(points)),
	)

	return points, nil
}

// Recommend 获取预测器给出的最优唤醒时间建议
func (c *Client) Recommend(ctx context.Context, alarm *models.Alarm, pattern *models.SleepPattern) (*models.WakeRecommendation, error) {
	req := buildRequest(alarm, pattern)

	data, err := c.call(ctx, "/predict/recommendation", req)
	if err != nil {
		c.logger.Error("Wake recommendation failed",
			zap.String("alarm_id", alarm.AlarmID),
			zap.Error(err),
		)
		return nil, err
	}

	var payload recommendationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wake recommendation: %w", err)
	}

	minutes, err := models.ParseClock(payload.Time)
	if err != nil {
		return nil, fmt.Errorf("invalid recommendation time %q: %w", payload.Time, err)
	}

	return &models.WakeRecommendation{
		Minutes:    minutes,
		Confidence: payload.Confidence,
	}, nil
}
