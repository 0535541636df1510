package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MACROPANEL_KAFKA_BROKERS.
const EnvPrefix = "MACROPANEL"

type Config struct {
	Environment string          `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
	Server      ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Metrics     MetricsConfig   `yaml:"metrics" envconfig:"METRICS"`
	Logging     LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	ClickHouse  ClickHouse      `yaml:"clickhouse" envconfig:"CLICKHOUSE"`
	Kafka       KafkaConfig     `yaml:"kafka" envconfig:"KAFKA"`
	Redis       RedisConfig     `yaml:"redis" envconfig:"REDIS"`
	Queue       QueueConfig     `yaml:"queue" envconfig:"QUEUE"`
	Scoring     ScoringConfig   `yaml:"scoring" envconfig:"SCORING"`
	RateLimit   RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Breaker     BreakerConfig   `yaml:"breaker" envconfig:"BREAKER"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	BodyLimit       string        `yaml:"body_limit" envconfig:"BODY_LIMIT" default:"32M"`
	CORS            bool          `yaml:"cors" envconfig:"CORS" default:"true"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	Path    string `yaml:"path" envconfig:"PATH" default:"/metrics"`
}

type LoggingConfig struct {
	Level            string        `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format           string        `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output           string        `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	CollectErrors    bool          `yaml:"collect_errors" envconfig:"COLLECT_ERRORS"`
	CollectInterval  time.Duration `yaml:"collect_interval" envconfig:"COLLECT_INTERVAL" default:"30s"`
	CollectThreshold int           `yaml:"collect_threshold" envconfig:"COLLECT_THRESHOLD" default:"100"`
}

type ClickHouse struct {
	Enabled          bool          `yaml:"enabled" envconfig:"ENABLED"`
	Host             string        `yaml:"host" envconfig:"HOST" default:"localhost"`
	Port             int           `yaml:"port" envconfig:"PORT" default:"9000"`
	Database         string        `yaml:"database" envconfig:"DATABASE" default:"macropanel"`
	User             string        `yaml:"user" envconfig:"USER" default:"default"`
	Password         string        `yaml:"password" envconfig:"PASSWORD"`
	UseHTTP          bool          `yaml:"use_http" envconfig:"USE_HTTP"`
	AsyncInsert      bool          `yaml:"async_insert" envconfig:"ASYNC_INSERT"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" envconfig:"WAIT_FOR_ASYNC_INSERT"`
	DialTimeout      time.Duration `yaml:"dial_timeout" envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" envconfig:"MAX_EXECUTION_TIME" default:"60s"`
	BatchSize        int           `yaml:"batch_size" envconfig:"BATCH_SIZE" default:"2000"`
}

type KafkaConfig struct {
	Enabled           bool     `yaml:"enabled" envconfig:"ENABLED"`
	Brokers           []string `yaml:"brokers" envconfig:"BROKERS"`
	ObservationsTopic string   `yaml:"observations_topic" envconfig:"OBSERVATIONS_TOPIC" default:"panel.observations"`
	ScoresTopic       string   `yaml:"scores_topic" envconfig:"SCORES_TOPIC" default:"panel.scores"`
	LogsTopic         string   `yaml:"logs_topic" envconfig:"LOGS_TOPIC" default:"panel.logs"`
	RequiredAcks      int      `yaml:"required_acks" envconfig:"REQUIRED_ACKS" default:"-1"`
	Compression       string   `yaml:"compression" envconfig:"COMPRESSION" default:"snappy"`
	Producer          struct {
		MaxAttempts  int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS" default:"5"`
		Linger       time.Duration `yaml:"linger" envconfig:"LINGER" default:"20ms"`
		BatchBytes   int           `yaml:"batch_bytes" envconfig:"BATCH_BYTES" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" envconfig:"BATCH_SIZE" default:"500"`
		WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"10s"`
	} `yaml:"producer" envconfig:"PRODUCER"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" envconfig:"GROUP_ID" default:"macropanel-ingest"`
		Workers    int           `yaml:"workers" envconfig:"WORKERS" default:"4"`
		BufferSize int           `yaml:"buffer_size" envconfig:"BUFFER_SIZE" default:"256"`
		RetryMax   int           `yaml:"retry_max" envconfig:"RETRY_MAX" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" envconfig:"BACKOFF_MIN" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" envconfig:"BACKOFF_MAX" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" envconfig:"DLQ_TOPIC" default:"panel.observations.dlq"`
		MinBytes   int           `yaml:"min_bytes" envconfig:"MIN_BYTES" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" envconfig:"MAX_BYTES" default:"10485760"`
	} `yaml:"consumer" envconfig:"CONSUMER"`
}

type RedisConfig struct {
	Enabled    bool          `yaml:"enabled" envconfig:"ENABLED"`
	Addr       string        `yaml:"addr" envconfig:"ADDR" default:"localhost:6379"`
	Password   string        `yaml:"password" envconfig:"PASSWORD"`
	DB         int           `yaml:"db" envconfig:"DB"`
	KeyPrefix  string        `yaml:"key_prefix" envconfig:"KEY_PREFIX" default:"macropanel"`
	MemorySize int           `yaml:"memory_size" envconfig:"MEMORY_SIZE" default:"256"`
	CacheTTL   time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" default:"10m"`
}

type QueueConfig struct {
	Enabled    bool          `yaml:"enabled" envconfig:"ENABLED"`
	Workers    int           `yaml:"workers" envconfig:"WORKERS" default:"2"`
	RetryLimit int           `yaml:"retry_limit" envconfig:"RETRY_LIMIT" default:"3"`
	RetryDelay time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY" default:"30s"`
}

// ScoringConfig holds the defaults applied when a request leaves a knob unset.
type ScoringConfig struct {
	Neutral    string  `yaml:"neutral" envconfig:"NEUTRAL" default:"zero"`
	Sequential bool    `yaml:"sequential" envconfig:"SEQUENTIAL" default:"true"`
	MinObs     int     `yaml:"min_obs" envconfig:"MIN_OBS" default:"261"`
	Thresh     float64 `yaml:"thresh" envconfig:"THRESH"` // 0 disables winsorization
	PanWeight  float64 `yaml:"pan_weight" envconfig:"PAN_WEIGHT" default:"1"`
	Postfix    string  `yaml:"postfix" envconfig:"POSTFIX" default:"_ZN"`
	MaxWeight  float64 `yaml:"max_weight" envconfig:"MAX_WEIGHT" default:"1"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"5"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"10"`
}

type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" envconfig:"CONSECUTIVE_FAILURES" default:"3"`
	Interval            time.Duration `yaml:"interval" envconfig:"INTERVAL" default:"60s"`
	Timeout             time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"30s"`
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return overlay(c, path)
}

// LoadWithEnv fills defaults and MACROPANEL_* variables first, then overlays
// the YAML file. Keys the file leaves out keep their environment value.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	return overlay(c, path)
}

func overlay(c *Config, path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be within 1..65535, got %d", c.Server.Port)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
		}
		if c.Kafka.ObservationsTopic == "" || c.Kafka.ScoresTopic == "" {
			return fmt.Errorf("kafka.observations_topic and kafka.scores_topic are required")
		}
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue requires redis.enabled")
	}
	if c.Logging.CollectErrors && !c.Kafka.Enabled {
		return fmt.Errorf("logging.collect_errors requires kafka.enabled")
	}

	s := c.Scoring
	switch s.Neutral {
	case "mean", "median", "zero":
	default:
		return fmt.Errorf("scoring.neutral must be mean, median or zero, got '%s'", s.Neutral)
	}
	if s.MinObs < 0 {
		return fmt.Errorf("scoring.min_obs must be >= 0")
	}
	if s.Thresh != 0 && s.Thresh < 1 {
		return fmt.Errorf("scoring.thresh must be 0 (off) or >= 1, got %v", s.Thresh)
	}
	if s.PanWeight < 0 || s.PanWeight > 1 {
		return fmt.Errorf("scoring.pan_weight must be within [0, 1], got %v", s.PanWeight)
	}
	if s.MaxWeight <= 0 || s.MaxWeight > 1 {
		return fmt.Errorf("scoring.max_weight must be within (0, 1], got %v", s.MaxWeight)
	}
	return nil
}
