package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/flybeeper/track-filter/internal/filter"
)

// Config содержит конфигурацию приложения
type Config struct {
	Environment string
	Server      ServerConfig
	Redis       RedisConfig
	MQTT        MQTTConfig
	MySQL       MySQLConfig
	Filter      *filter.Config
	Logging     LoggingConfig
	Monitoring  MonitoringConfig
}

// ServerConfig конфигурация HTTP сервера
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// RedisConfig конфигурация Redis
type RedisConfig struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// MQTTConfig конфигурация MQTT
type MQTTConfig struct {
	URL          string
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	TopicPrefix  string
}

// MySQLConfig конфигурация MySQL (реестр устройств)
type MySQLConfig struct {
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
	CacheTTL     time.Duration
}

// LoggingConfig конфигурация логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// MonitoringConfig конфигурация мониторинга
type MonitoringConfig struct {
	MetricsEnabled bool
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Address:      getEnv("SERVER_ADDRESS", ":8090"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getInt("REDIS_DB", 0),
			PoolSize:     getInt("REDIS_POOL_SIZE", 100),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 10),
		},
		MQTT: MQTTConfig{
			URL:          getEnv("MQTT_URL", "tcp://localhost:1883"),
			ClientID:     getEnv("MQTT_CLIENT_ID", "track-filter"),
			Username:     getEnv("MQTT_USERNAME", ""),
			Password:     getEnv("MQTT_PASSWORD", ""),
			CleanSession: getBool("MQTT_CLEAN_SESSION", false),
			TopicPrefix:  getEnv("MQTT_TOPIC_PREFIX", "tf/positions/+"),
		},
		MySQL: MySQLConfig{
			DSN:          getEnv("MYSQL_DSN", ""),
			MaxIdleConns: getInt("MYSQL_MAX_IDLE_CONNS", 5),
			MaxOpenConns: getInt("MYSQL_MAX_OPEN_CONNS", 25),
			CacheTTL:     getDuration("MYSQL_CACHE_TTL", 5*time.Minute),
		},
		Filter: loadFilter(),
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFilter загружает секцию фильтрации. Переменные FILTER_*
// соответствуют опциям filter.* исходной конфигурации:
// FILTER_FUTURE в секундах, FILTER_DISTANCE в метрах,
// FILTER_MAX_SPEED в км/ч - в единицах скорости позиций.
func loadFilter() *filter.Config {
	cfg := filter.DefaultConfig()

	cfg.Enable = getBool("FILTER_ENABLE", cfg.Enable)
	cfg.FilterInvalid = getBool("FILTER_INVALID", cfg.FilterInvalid)
	cfg.FilterZero = getBool("FILTER_ZERO", cfg.FilterZero)
	cfg.FilterDuplicate = getBool("FILTER_DUPLICATE", cfg.FilterDuplicate)
	cfg.FilterFuture = time.Duration(getInt("FILTER_FUTURE", int(cfg.FilterFuture/time.Second))) * time.Second
	cfg.FilterApproximate = getBool("FILTER_APPROXIMATE", cfg.FilterApproximate)
	cfg.FilterStatic = getBool("FILTER_STATIC", cfg.FilterStatic)
	cfg.StaticSpeedMax = getFloat("FILTER_STATIC_SPEED", cfg.StaticSpeedMax)
	cfg.StaticDistance = getFloat("FILTER_STATIC_DISTANCE", cfg.StaticDistance)
	cfg.FilterDistance = getFloat("FILTER_DISTANCE", cfg.FilterDistance)
	cfg.FilterMaxSpeed = getFloat("FILTER_MAX_SPEED", cfg.FilterMaxSpeed)
	cfg.SkipLimit = getInt("FILTER_SKIP_LIMIT", cfg.SkipLimit)
	cfg.SkipAttributesEnable = getBool("FILTER_SKIP_ATTRIBUTES", cfg.SkipAttributesEnable)

	return cfg
}

func (c *Config) validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.MQTT.URL == "" {
		return fmt.Errorf("mqtt URL is required")
	}
	if c.Filter.SkipLimit < 0 {
		return fmt.Errorf("filter skip limit cannot be negative")
	}
	if c.Filter.FilterMaxSpeed < 0 {
		return fmt.Errorf("filter max speed cannot be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
