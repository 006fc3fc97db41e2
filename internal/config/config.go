package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	TopicPrefix string // 如 "smartwake/"
}

// PredictorConfig 睡眠阶段预测服务配置
type PredictorConfig struct {
	BaseURL    string
	TimeoutSec int
	RetryCount int
}

// Config 自适应唤醒服务配置
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	MQTT      MQTTConfig
	Predictor PredictorConfig

	// 自适应循环配置
	Wake struct {
		TickMinutes           int    // 循环节拍（分钟），默认 15
		SignificanceThreshold int    // 调整显著性阈值（分钟），默认 5
		CollaboratorTimeout   int    // 协作方调用超时（秒），默认 5
		ReadingsKeyPrefix     string // 条件读数缓存键前缀，如 "smartwake:user:"
		ReadingsSuffix        string // 条件读数缓存键后缀，如 ":readings"
	}

	HTTP struct {
		Addr string // 监听地址，默认 ":8080"
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "smartwake")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "smartwake")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "smartwake/")

	cfg.Predictor.BaseURL = getEnv("PREDICTOR_BASE_URL", "http://localhost:9100")
	cfg.Predictor.TimeoutSec = getEnvInt("PREDICTOR_TIMEOUT_SECONDS", 5)
	cfg.Predictor.RetryCount = getEnvInt("PREDICTOR_RETRY_COUNT", 2)

	cfg.Wake.TickMinutes = getEnvInt("ADAPTATION_TICK_MINUTES", 15)
	cfg.Wake.SignificanceThreshold = getEnvInt("SIGNIFICANCE_THRESHOLD_MINUTES", 5)
	cfg.Wake.CollaboratorTimeout = getEnvInt("COLLABORATOR_TIMEOUT_SECONDS", 5)
	cfg.Wake.ReadingsKeyPrefix = getEnv("CACHE_READINGS_PREFIX", "smartwake:user:")
	cfg.Wake.ReadingsSuffix = ":readings"

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
