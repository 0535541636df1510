package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"MacroPanel/pkg/logger"
)

var ErrNotFound = errors.New("queue: message not found")

type Config struct {
	Workers       int
	RetryLimit    int
	RetryDelay    time.Duration
	PollTimeout   time.Duration // BRPOP block time
	RetryInterval time.Duration // how often due retries are moved back
	StatusTTL     time.Duration
}

// RedisQueue is a list-backed work queue. Failed messages wait in a sorted
// set scored by their due time and land in a dead-letter list once they run
// out of retries.
type RedisQueue struct {
	log    *logger.Logger
	cfg    Config
	client redis.UniversalClient
	prefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRedisQueue(lgr *logger.Logger, client redis.UniversalClient, prefix string, cfg Config) *RedisQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}
	if prefix == "" {
		prefix = "macropanel"
	}
	return &RedisQueue{
		log:    lgr.With("queue"),
		cfg:    cfg,
		client: client,
		prefix: prefix + ":queue",
		jobs:   make(map[string]Job),
	}
}

func (r *RedisQueue) messagesKey() string        { return r.prefix + ":messages" }
func (r *RedisQueue) retryKey() string           { return r.prefix + ":retry" }
func (r *RedisQueue) deadKey() string            { return r.prefix + ":dlq" }
func (r *RedisQueue) statusKey(id string) string { return r.prefix + ":status:" + id }

// Register binds job to its type. A later job for the same type is ignored.
func (r *RedisQueue) Register(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.log.Warn("job already registered", logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
}

// Enqueue stores payload under a new id and returns it.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.messagesKey(), data)
	r.writeStatus(ctx, pipe, Status{ID: msg.ID, Type: msgType, State: StateQueued})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", msgType, err)
	}
	return msg.ID, nil
}

// Status returns the last recorded state of message id.
func (r *RedisQueue) Status(ctx context.Context, id string) (*Status, error) {
	data, err := r.client.Get(ctx, r.statusKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &s, nil
}

// Start pings Redis and launches the workers and the retry mover.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("queue ping: %w", err)
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	r.wg.Add(1)
	go r.moveDueRetries(ctx)

	r.log.Info("queue started", logger.Int("workers", r.cfg.Workers), logger.Int("jobs", len(r.jobs)))
	return nil
}

// Stop cancels the workers and waits for them up to ctx's deadline.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

func (r *RedisQueue) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	for {
		res, err := r.client.BRPop(ctx, r.cfg.PollTimeout, r.messagesKey()).Result()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			r.log.Warn("queue pop", logger.Int("worker", id), logger.Error(err))
			time.Sleep(r.cfg.PollTimeout)
			continue
		}
		// res = [key, value]
		r.process(ctx, []byte(res[1]))
	}
}

func (r *RedisQueue) process(ctx context.Context, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		r.log.Error("drop undecodable message", logger.Error(err))
		r.client.LPush(ctx, r.deadKey(), data)
		return
	}

	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.fail(ctx, msg, fmt.Errorf("no job registered for type %q", msg.Type), false)
		return
	}

	msg.Attempts++
	r.setStatus(ctx, Status{ID: msg.ID, Type: msg.Type, State: StateRunning, Attempts: msg.Attempts})

	start := time.Now()
	err := r.handle(ctx, job, msg)
	if err != nil {
		r.fail(ctx, msg, err, !IsPermanent(err) && msg.Attempts <= r.cfg.RetryLimit)
		return
	}
	r.setStatus(ctx, Status{ID: msg.ID, Type: msg.Type, State: StateDone, Attempts: msg.Attempts})
	r.log.Debug("job done",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Duration("took", time.Since(start)))
}

func (r *RedisQueue) handle(ctx context.Context, job Job, msg Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panic: %v", p)
		}
	}()
	return job.Handle(ctx, msg.ID, msg.Payload)
}

func (r *RedisQueue) fail(ctx context.Context, msg Message, cause error, retry bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal failed message", logger.Error(err))
		return
	}

	st := Status{ID: msg.ID, Type: msg.Type, Attempts: msg.Attempts, Error: cause.Error()}
	pipe := r.client.TxPipeline()
	if retry {
		st.State = StateRetrying
		due := time.Now().Add(r.cfg.RetryDelay).UnixMilli()
		pipe.ZAdd(ctx, r.retryKey(), redis.Z{Score: float64(due), Member: data})
	} else {
		st.State = StateDead
		pipe.LPush(ctx, r.deadKey(), data)
	}
	r.writeStatus(ctx, pipe, st)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("record failed message", logger.String("id", msg.ID), logger.Error(err))
		return
	}

	r.log.Warn("job failed",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempts", msg.Attempts),
		logger.String("state", string(st.State)),
		logger.Error(cause))
}

func (r *RedisQueue) moveDueRetries(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.requeueDue(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("requeue retries", logger.Error(err))
			}
		}
	}
}

func (r *RedisQueue) requeueDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{Min: "-inf", Max: now, Count: 100}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	pipe := r.client.TxPipeline()
	for _, m := range due {
		pipe.ZRem(ctx, r.retryKey(), m)
		pipe.LPush(ctx, r.messagesKey(), m)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// DeadLetters returns how many messages sit in the dead-letter list.
func (r *RedisQueue) DeadLetters(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.deadKey()).Result()
}

func (r *RedisQueue) setStatus(ctx context.Context, s Status) {
	pipe := r.client.Pipeline()
	r.writeStatus(ctx, pipe, s)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn("write status", logger.String("id", s.ID), logger.Error(err))
	}
}

func (r *RedisQueue) writeStatus(ctx context.Context, pipe redis.Pipeliner, s Status) {
	s.UpdatedAt = time.Now().UTC()
	data, _ := json.Marshal(s)
	pipe.Set(ctx, r.statusKey(s.ID), data, r.cfg.StatusTTL)
}
