package consumer

import (
	"context"
	"fmt"

	"smartwake/internal/config"
	"smartwake/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ReadingCache Redis 条件读数缓存。
// 上游采集器（天气、日历、穿戴设备网关）把归一化后的读数快照
// 写到 {prefix}{user_id}{suffix}，本服务只读。
type ReadingCache struct {
	redisClient *redis.Client
	prefix      string
	suffix      string
	logger      *zap.Logger
}

// NewReadingCache 创建条件读数缓存
func NewReadingCache(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *ReadingCache {
	return &ReadingCache{
		redisClient: redisClient,
		prefix:      cfg.Wake.ReadingsKeyPrefix,
		suffix:      cfg.Wake.ReadingsSuffix,
		logger:      logger,
	}
}

// CurrentReadings 读取用户当前的条件读数快照。
// 缓存未命中返回空快照，属正常状态（采集器可能还没发布）。
func (c *ReadingCache) CurrentReadings(ctx context.Context, userID string) (models.ConditionReading, error) {
	key := fmt.Sprintf("%s%s%s", c.prefix, userID, c.suffix)

	val, err := c.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			c.logger.Debug("No condition readings published for user",
				zap.String("user_id", userID),
				zap.String("key", key),
			)
			return models.ConditionReading{}, nil
		}
		return nil, fmt.Errorf("failed to get readings cache: %w", err)
	}

	reading, err := models.ParseConditionReading([]byte(val))
	if err != nil {
		return nil, fmt.Errorf("failed to parse readings for user %s: %w", userID, err)
	}

	return reading, nil
}
