package kafka

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"MacroPanel/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type partitionKey struct {
	topic     string
	partition int
}

// Consumer fans messages from one reader per topic into a worker pool.
// At most one message per (topic, partition) is in flight, so per-partition
// ordering survives the pool.
type Consumer struct {
	cfg       ConsumerConfig
	log       *logger.Logger
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	newReader func(topic string) messageReader
	dlq       messageWriter
	hook      ConsumerHook
	msgs      chan kafka.Message

	partMu    sync.Mutex
	partLocks map[partitionKey]*sync.Mutex

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := ConsumerConfig{
		GroupID:    "macropanel",
		Workers:    1,
		BufferSize: 64,
		RetryMax:   3,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
		MinBytes:   1,
		MaxBytes:   10e6,
		Logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: brokers are required")
	}

	c := &Consumer{
		cfg:       cfg,
		log:       cfg.Logger.With("kafka-consumer"),
		handlers:  make(map[string]MessageHandler),
		readers:   make(map[string]messageReader),
		hook:      NoopHook{},
		msgs:      make(chan kafka.Message, cfg.BufferSize),
		partLocks: make(map[partitionKey]*sync.Mutex),
	}
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	initConsumerMetrics()
	return c, nil
}

// RegisterHandler binds handler to its topic. A second handler for the same topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start spawns the readers and workers. They run until Stop or ctx cancellation.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("kafka consumer: no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)

	for topic := range c.handlers {
		c.readers[topic] = c.newReader(topic)
	}
	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.work(ctx)
	}
	for topic, r := range c.readers {
		c.wg.Add(1)
		go c.fetch(ctx, topic, r)
	}

	c.log.Info("kafka consumer started",
		logger.Int("workers", c.cfg.Workers),
		logger.Int("topics", len(c.readers)),
		logger.String("group_id", c.cfg.GroupID))
	return nil
}

// Stop cancels the loops, waits for in-flight messages and closes the readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if err := r.Close(); err != nil {
				c.log.Warn("close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("close dlq writer", logger.Error(err))
			}
		}
	})
	return stopErr
}

func (c *Consumer) fetch(ctx context.Context, topic string, r messageReader) {
	defer c.wg.Done()

	failures := 0
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.log.Warn("fetch message", logger.String("topic", topic), logger.Error(err))
			if !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, failures)) {
				return
			}
			continue
		}
		failures = 0

		// blocking send applies backpressure to the reader
		select {
		case c.msgs <- msg:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgs)))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case msg := <-c.msgs:
			c.process(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) process(ctx context.Context, km kafka.Message) {
	handler, ok := c.handlers[km.Topic]
	if !ok {
		return
	}
	start := time.Now()

	pl := c.partitionLock(km.Topic, km.Partition)
	pl.Lock()
	defer pl.Unlock()

	err := c.handleWithRetry(ctx, handler, km)
	if ctx.Err() != nil && err != nil {
		// shutting down; leave the offset uncommitted so the message is redelivered
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
		c.hook.OnError(ctx, km.Topic, km, km.Value, err)
		c.log.Error("message failed",
			logger.String("topic", km.Topic),
			logger.Int("partition", km.Partition),
			logger.Int64("offset", km.Offset),
			logger.Error(err))
		if c.dlq != nil {
			result = "dlq"
			c.toDLQ(km, err)
		}
	}

	// commit on success or after DLQ to avoid poison loops
	if err == nil || c.dlq != nil {
		if r := c.readers[km.Topic]; r != nil {
			c.commit(r, km)
		}
	}
	consumerHandled.WithLabelValues(km.Topic, result).Inc()
	consumerLatency.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) handleWithRetry(ctx context.Context, handler MessageHandler, km kafka.Message) error {
	var err error
	for attempt := 1; ; attempt++ {
		hctx, hmsg, data, berr := c.hook.BeforeHandle(ctx, km.Topic, km, km.Value)
		if berr != nil {
			return berr
		}
		err = handler.Handle(hctx, data)
		c.hook.AfterHandle(hctx, km.Topic, hmsg, data, err)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		if !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return err
		}
	}
}

func (c *Consumer) toDLQ(km kafka.Message, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   km.Key,
		Value: km.Value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(km.Topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.log.Error("write to dlq", logger.String("dlq_topic", c.cfg.DLQTopic), logger.Error(err))
	}
}

func (c *Consumer) commit(r messageReader, km kafka.Message) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("commit offset", logger.String("topic", km.Topic), logger.Int64("offset", km.Offset), logger.Error(err))
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.partMu.Lock()
	defer c.partMu.Unlock()

	key := partitionKey{topic, partition}
	l, ok := c.partLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[key] = l
	}
	return l
}

// sleepCtx reports false if ctx ended before d elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// backoffWithJitter doubles from min per attempt, capped at max, minus up to 50% jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := max
	if attempt < 32 {
		if d := min << uint(attempt-1); d > 0 && d < max {
			exp = d
		}
	}
	if half := int64(exp) / 2; half > 0 {
		exp -= time.Duration(rand.Int64N(half))
	}
	return exp
}

var (
	consumerMetricsOnce sync.Once
	consumerQueueDepth  *prometheus.GaugeVec
	consumerHandled     *prometheus.CounterVec
	consumerLatency     *prometheus.HistogramVec
)

func initConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "macropanel_kafka_consumer_queue_depth",
			Help: "Messages waiting for a worker",
		}, []string{"topic"})
		consumerHandled = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "macropanel_kafka_consumer_messages_total",
			Help: "Messages handled by outcome",
		}, []string{"topic", "result"})
		consumerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "macropanel_kafka_consumer_handle_seconds",
			Help:    "Handling time per message, retries included",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}
