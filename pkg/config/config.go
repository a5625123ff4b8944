// Package config 提供 TOML 配置加载、环境变量覆盖与校验
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config 基础配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// gRPC 服务配置
	GRPC GRPCConfig `mapstructure:"grpc"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 限流配置
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// 预测参数
	Forecast ForecastConfig `mapstructure:"forecast"`
	// 定时任务
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// GRPCConfig gRPC 服务配置
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql, postgres, memory
	Driver string `mapstructure:"driver"`
	// 数据源名称
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`
	// 是否启用 SQL 日志
	LogEnabled bool `mapstructure:"log_enabled"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold"`
	// 启动时是否自动建表
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置，Host 为空表示不启用
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ConnTimeout  int    `mapstructure:"conn_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	// 即将到来的预测缓存时间（秒）
	UpcomingTTL int `mapstructure:"upcoming_ttl"`
}

// Enabled 是否配置了 Redis
func (c RedisConfig) Enabled() bool { return c.Host != "" }

// KafkaConfig Kafka 配置，Brokers 为空表示不启用
type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	MaxRetries   int      `mapstructure:"max_retries"`
	RetryBackoff int      `mapstructure:"retry_backoff"`
}

// Enabled 是否配置了 Kafka
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// RateLimitConfig 触发接口限流配置
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// 单个客户端 IP 的配额
	QPS   int `mapstructure:"qps"`
	Burst int `mapstructure:"burst"`
	// 全部客户端共享的触发配额，0 表示不限
	GlobalQPS   int `mapstructure:"global_qps"`
	GlobalBurst int `mapstructure:"global_burst"`
}

// ForecastConfig 预测模块参数
type ForecastConfig struct {
	// 固定时区，所有日期/小时都在该时区下计算
	Timezone string `mapstructure:"timezone"`
	// 历史数据回溯天数
	LookbackDays int `mapstructure:"lookback_days"`
	// 每轮生成未来多少个小时的预测
	HorizonHours int `mapstructure:"horizon_hours"`
	// 预测保留天数
	RetentionDays int `mapstructure:"retention_days"`
	// 健康检查窗口（小时）与最少预测数
	UpcomingWindowHours int `mapstructure:"upcoming_window_hours"`
	MinUpcoming         int `mapstructure:"min_upcoming"`
	// 准确率回填窗口：目标时间早于 now-min_age 且晚于 now-max_age（分钟）
	AccuracyMinAgeMinutes int `mapstructure:"accuracy_min_age_minutes"`
	AccuracyMaxAgeMinutes int `mapstructure:"accuracy_max_age_minutes"`
	AccuracyBatchSize     int `mapstructure:"accuracy_batch_size"`
	// 批处理节流（毫秒）
	GenerationPaceMs int `mapstructure:"generation_pace_ms"`
	AccuracyPaceMs   int `mapstructure:"accuracy_pace_ms"`
	// 训练完成后延迟多久触发一次生成（秒）
	RetrainGenerateDelaySec int `mapstructure:"retrain_generate_delay_sec"`
	// 节假日（MM-DD）与特殊活动（MM-DD=名称）
	Holidays      []string          `mapstructure:"holidays"`
	SpecialEvents map[string]string `mapstructure:"special_events"`
}

// Location 解析配置的时区
func (c ForecastConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// SchedulerConfig 定时任务 cron 表达式（5 段）
type SchedulerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	HourlyGeneration string `mapstructure:"hourly_generation"`
	NightlyTraining  string `mapstructure:"nightly_training"`
	AccuracyRefresh  string `mapstructure:"accuracy_refresh"`
	WeeklyCleanup    string `mapstructure:"weekly_cleanup"`
	HealthCheck      string `mapstructure:"health_check"`
}

// Load 从 TOML 文件加载配置，文件不存在时使用默认值，支持 APP_ 前缀环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.GRPC.Port < 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}
	switch c.Database.Driver {
	case "memory":
	case "mysql", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if _, err := c.Forecast.Location(); err != nil {
		return fmt.Errorf("invalid forecast.timezone %q: %w", c.Forecast.Timezone, err)
	}
	if c.Forecast.LookbackDays <= 0 || c.Forecast.HorizonHours <= 0 || c.Forecast.RetentionDays <= 0 {
		return fmt.Errorf("forecast lookback_days, horizon_hours and retention_days must be positive")
	}
	if c.Forecast.AccuracyMinAgeMinutes >= c.Forecast.AccuracyMaxAgeMinutes {
		return fmt.Errorf("forecast.accuracy_min_age_minutes must be less than accuracy_max_age_minutes")
	}
	if c.RateLimit.GlobalQPS < 0 || (c.RateLimit.GlobalQPS > 0 && c.RateLimit.GlobalBurst <= 0) {
		return fmt.Errorf("rate_limit.global_burst must be positive when global_qps is set")
	}
	if c.Scheduler.Enabled {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		for name, spec := range map[string]string{
			"hourly_generation": c.Scheduler.HourlyGeneration,
			"nightly_training":  c.Scheduler.NightlyTraining,
			"accuracy_refresh":  c.Scheduler.AccuracyRefresh,
			"weekly_cleanup":    c.Scheduler.WeeklyCleanup,
			"health_check":      c.Scheduler.HealthCheck,
		} {
			if _, err := parser.Parse(spec); err != nil {
				return fmt.Errorf("invalid scheduler.%s %q: %w", name, spec, err)
			}
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "menu-forecast")
	v.SetDefault("version", "v1")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)
	v.SetDefault("redis.upcoming_ttl", 300)

	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/forecast.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.qps", 5)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.global_qps", 20)
	v.SetDefault("rate_limit.global_burst", 40)

	v.SetDefault("forecast.timezone", "Asia/Shanghai")
	v.SetDefault("forecast.lookback_days", 90)
	v.SetDefault("forecast.horizon_hours", 6)
	v.SetDefault("forecast.retention_days", 30)
	v.SetDefault("forecast.upcoming_window_hours", 6)
	v.SetDefault("forecast.min_upcoming", 3)
	v.SetDefault("forecast.accuracy_min_age_minutes", 60)
	v.SetDefault("forecast.accuracy_max_age_minutes", 180)
	v.SetDefault("forecast.accuracy_batch_size", 10)
	v.SetDefault("forecast.generation_pace_ms", 500)
	v.SetDefault("forecast.accuracy_pace_ms", 300)
	v.SetDefault("forecast.retrain_generate_delay_sec", 5)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.hourly_generation", "5 * * * *")
	v.SetDefault("scheduler.nightly_training", "30 2 * * *")
	v.SetDefault("scheduler.accuracy_refresh", "*/30 * * * *")
	v.SetDefault("scheduler.weekly_cleanup", "0 3 * * 0")
	v.SetDefault("scheduler.health_check", "0 */6 * * *")
}

