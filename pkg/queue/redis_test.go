package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MacroPanel/pkg/logger"
)

type scoreArgs struct {
	Category string `json:"category"`
}

type recordingJob struct {
	failFirst int32
	calls     atomic.Int32
	got       atomic.Value
}

func (j *recordingJob) Type() string { return "score" }

func (j *recordingJob) Handle(_ context.Context, _ string, payload json.RawMessage) error {
	n := j.calls.Add(1)
	args, err := ParsePayload[scoreArgs](payload)
	if err != nil {
		return err
	}
	j.got.Store(args.Category)
	if n <= j.failFirst {
		return errors.New("transient")
	}
	return nil
}

func newQueue(t *testing.T, cfg Config) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg.PollTimeout = 50 * time.Millisecond
	cfg.RetryInterval = 20 * time.Millisecond
	return NewRedisQueue(logger.Nop(), client, "test", cfg), mr
}

func stop(t *testing.T, q *RedisQueue) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))
}

func TestEnqueueRecordsQueuedStatus(t *testing.T) {
	q, mr := newQueue(t, Config{})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "score", scoreArgs{"XR"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	st, err := q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, st.State)
	assert.Equal(t, "score", st.Type)

	items, err := mr.List("test:queue:messages")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = q.Status(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWorkerRunsJob(t *testing.T) {
	q, _ := newQueue(t, Config{Workers: 2})
	job := &recordingJob{}
	q.Register(job)
	ctx := context.Background()

	require.NoError(t, q.Start(ctx))
	defer stop(t, q)

	id, err := q.Enqueue(ctx, "score", scoreArgs{"CPI"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		st, err := q.Status(ctx, id)
		return err == nil && st.State == StateDone
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "CPI", job.got.Load())
	assert.Equal(t, int32(1), job.calls.Load())
}

func TestFailedJobIsRetried(t *testing.T) {
	q, _ := newQueue(t, Config{RetryLimit: 2, RetryDelay: time.Millisecond})
	job := &recordingJob{failFirst: 1}
	q.Register(job)
	ctx := context.Background()

	require.NoError(t, q.Start(ctx))
	defer stop(t, q)

	id, err := q.Enqueue(ctx, "score", scoreArgs{"XR"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		st, err := q.Status(ctx, id)
		return err == nil && st.State == StateDone && st.Attempts == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestExhaustedJobIsDeadLettered(t *testing.T) {
	q, _ := newQueue(t, Config{RetryLimit: 0})
	q.Register(&recordingJob{failFirst: 100})
	ctx := context.Background()

	require.NoError(t, q.Start(ctx))
	defer stop(t, q)

	id, err := q.Enqueue(ctx, "score", scoreArgs{"XR"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		st, err := q.Status(ctx, id)
		return err == nil && st.State == StateDead
	}, 3*time.Second, 20*time.Millisecond)

	n, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	st, _ := q.Status(ctx, id)
	assert.Equal(t, "transient", st.Error)
}

type rejectingJob struct{ calls atomic.Int32 }

func (j *rejectingJob) Type() string { return "score" }

func (j *rejectingJob) Handle(context.Context, string, json.RawMessage) error {
	j.calls.Add(1)
	return Permanent(errors.New("bad request"))
}

func TestPermanentErrorSkipsRetries(t *testing.T) {
	q, _ := newQueue(t, Config{RetryLimit: 5, RetryDelay: 10 * time.Millisecond})
	job := &rejectingJob{}
	q.Register(job)
	ctx := context.Background()

	require.NoError(t, q.Start(ctx))
	defer stop(t, q)

	id, err := q.Enqueue(ctx, "score", scoreArgs{"XR"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		st, err := q.Status(ctx, id)
		return err == nil && st.State == StateDead
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), job.calls.Load())
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
	assert.Nil(t, Permanent(nil))
}

func TestUnknownTypeIsDeadLettered(t *testing.T) {
	q, _ := newQueue(t, Config{})
	ctx := context.Background()
	require.NoError(t, q.Start(ctx))
	defer stop(t, q)

	id, err := q.Enqueue(ctx, "unknown", struct{}{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		st, err := q.Status(ctx, id)
		return err == nil && st.State == StateDead
	}, 3*time.Second, 20*time.Millisecond)
}

func TestStartTwice(t *testing.T) {
	q, _ := newQueue(t, Config{})
	ctx := context.Background()
	require.NoError(t, q.Start(ctx))
	defer stop(t, q)
	assert.Error(t, q.Start(ctx))
}

func TestParsePayload(t *testing.T) {
	v, err := ParsePayload[scoreArgs](json.RawMessage(`{"category":"GDP"}`))
	require.NoError(t, err)
	assert.Equal(t, "GDP", v.Category)

	_, err = ParsePayload[scoreArgs](json.RawMessage(`[`))
	assert.Error(t, err)
}
