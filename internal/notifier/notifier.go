// Package notifier 通过 MQTT 向下游（手机端、床头网关）广播唤醒时间变更
package notifier

import (
	"encoding/json"
	"fmt"
	"time"

	"smartwake/internal/config"
	"smartwake/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// publishWait 发布确认的最长等待时间
const publishWait = 5 * time.Second

// ScheduleChange 唤醒时间变更消息
type ScheduleChange struct {
	AlarmID    string    `json:"alarm_id"`
	WakeTime   string    `json:"wake_time"` // "HH:MM"
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	ChangedAt  time.Time `json:"changed_at"`
}

// ScheduleNotifier MQTT 变更通知器
type ScheduleNotifier struct {
	client mqtt.Client
	qos    byte
	prefix string
	logger *zap.Logger
}

// NewScheduleNotifier 创建通知器并连接 broker
func NewScheduleNotifier(cfg config.MQTTConfig, logger *zap.Logger) (*ScheduleNotifier, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &ScheduleNotifier{
		client: client,
		qos:    cfg.QoS,
		prefix: cfg.TopicPrefix,
		logger: logger,
	}, nil
}

// scheduleTopic 变更消息的主题，如 smartwake/{alarm_id}/schedule
func scheduleTopic(prefix, alarmID string) string {
	return prefix + alarmID + "/schedule"
}

// ScheduleChanged 广播某个闹钟的唤醒时间变更
func (n *ScheduleNotifier) ScheduleChanged(alarmID string, wakeMinutes int, confidence float64, reason string) error {
	change := ScheduleChange{
		AlarmID:    alarmID,
		WakeTime:   models.FormatClock(wakeMinutes),
		Confidence: confidence,
		Reason:     reason,
		ChangedAt:  time.Now(),
	}

	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule change: %w", err)
	}

	topic := scheduleTopic(n.prefix, alarmID)
	token := n.client.Publish(topic, n.qos, false, payload)
	if !token.WaitTimeout(publishWait) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	n.logger.Info("Published schedule change",
		zap.String("topic", topic),
		zap.String("wake_time", change.WakeTime),
		zap.String("reason", reason),
	)

	return nil
}

// Close 断开 broker 连接
func (n *ScheduleNotifier) Close() {
	n.client.Disconnect(250)
}
