package kafka

import (
	"time"

	"MacroPanel/pkg/config"
	"MacroPanel/pkg/logger"
)

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
	Async        bool
	HashByKey    bool
}

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = compression }
}

// WithRequiredAcks sets required acknowledgements (-1 = all).
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks = acks }
}

func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) { c.MaxAttempts = n }
}

// WithBatching sets the writer batch limits.
func WithBatching(size, bytes int, timeout time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchSize = size
		c.BatchBytes = bytes
		c.BatchTimeout = timeout
	}
}

func WithWriteTimeout(d time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.WriteTimeout = d }
}

// WithAsync toggles fire-and-forget writes.
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) { c.Async = async }
}

// WithHashByKey keeps every message of one key (a cross-section) on one partition.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = hash }
}

// ProducerOptions maps the service configuration onto producer options.
func ProducerOptions(c config.KafkaConfig) []ProducerOption {
	return []ProducerOption{
		WithBrokers(c.Brokers),
		WithRequiredAcks(c.RequiredAcks),
		WithCompression(c.Compression),
		WithMaxAttempts(c.Producer.MaxAttempts),
		WithBatching(c.Producer.BatchSize, c.Producer.BatchBytes, c.Producer.Linger),
		WithWriteTimeout(c.Producer.WriteTimeout),
		WithHashByKey(true),
	}
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Workers    int
	BufferSize int
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	DLQTopic   string
	MinBytes   int
	MaxBytes   int
	Logger     *logger.Logger
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

func WithConsumerWorkers(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.Workers = n
		}
	}
}

func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// WithConsumerRetry configures retry attempts and the backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ routes messages that exhaust their retries to topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

func WithConsumerLogger(l *logger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// ConsumerOptions maps the service configuration onto consumer options.
func ConsumerOptions(c config.KafkaConfig) []ConsumerOption {
	return []ConsumerOption{
		WithConsumerBrokers(c.Brokers),
		WithConsumerGroupID(c.Consumer.GroupID),
		WithConsumerWorkers(c.Consumer.Workers),
		WithConsumerBufferSize(c.Consumer.BufferSize),
		WithConsumerRetry(c.Consumer.RetryMax, c.Consumer.BackoffMin, c.Consumer.BackoffMax),
		WithConsumerDLQ(c.Consumer.DLQTopic),
		WithConsumerFetch(c.Consumer.MinBytes, c.Consumer.MaxBytes),
	}
}
