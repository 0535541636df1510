package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"MacroPanel/internal/domain/models"
	"MacroPanel/pkg/cache"
	"MacroPanel/pkg/queue"
)

// ScoreJobType is the queue message type of background score runs.
const ScoreJobType = "score"

type jobQueue interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
	Status(ctx context.Context, id string) (*queue.Status, error)
}

// ScoreJobs runs score requests in the background through the Redis queue
// and keeps each result in the cache under jobs:<id>:result.
type ScoreJobs struct {
	scores    *ScoreUseCase
	queue     jobQueue
	cache     cache.Service
	resultTTL time.Duration
}

func NewScoreJobs(scores *ScoreUseCase, q jobQueue, c cache.Service, resultTTL time.Duration) *ScoreJobs {
	if resultTTL <= 0 {
		resultTTL = 24 * time.Hour
	}
	return &ScoreJobs{scores: scores, queue: q, cache: c, resultTTL: resultTTL}
}

func resultKey(id string) string { return cache.Key("jobs", id, "result") }

// Submit validates req and enqueues it. Queued runs always publish.
func (j *ScoreJobs) Submit(ctx context.Context, req models.ScoreRequest) (string, error) {
	if j.queue == nil {
		return "", fmt.Errorf("%w: job queue is disabled", models.ErrUnavailable)
	}
	if err := j.scores.Validate(req); err != nil {
		return "", err
	}
	req.Publish = true
	id, err := j.queue.Enqueue(ctx, ScoreJobType, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUnavailable, err)
	}
	return id, nil
}

// Get reports the job state and, once done, its result.
func (j *ScoreJobs) Get(ctx context.Context, id string) (*models.JobResponse, error) {
	if j.queue == nil {
		return nil, fmt.Errorf("%w: job queue is disabled", models.ErrUnavailable)
	}
	st, err := j.queue.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &models.JobResponse{
		ID:        st.ID,
		State:     string(st.State),
		Attempts:  st.Attempts,
		Error:     st.Error,
		UpdatedAt: st.UpdatedAt,
	}
	if st.State == queue.StateDone && j.cache != nil {
		var result models.ScoreResponse
		if err := j.cache.Get(ctx, resultKey(id), &result); err == nil {
			resp.Result = &result
		}
	}
	return resp, nil
}

func (j *ScoreJobs) Type() string { return ScoreJobType }

// Handle runs one queued request. Invalid requests fail permanently; a lock
// keeps a redelivered message from running twice at once.
func (j *ScoreJobs) Handle(ctx context.Context, id string, payload json.RawMessage) error {
	req, err := queue.ParsePayload[models.ScoreRequest](payload)
	if err != nil {
		return queue.Permanent(err)
	}

	if j.cache != nil {
		lock := cache.Key("jobs", id, "lock")
		ok, err := j.cache.TryLock(ctx, lock, 10*time.Minute)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("job %s is already running", id)
		}
		defer func() { _ = j.cache.Unlock(context.WithoutCancel(ctx), lock) }()
	}

	req.Publish = true
	resp, err := j.scores.Score(ctx, *req)
	if err != nil {
		if errors.Is(err, models.ErrConfig) || errors.Is(err, models.ErrDataShape) {
			return queue.Permanent(err)
		}
		return err
	}
	if j.cache != nil {
		if err := j.cache.Set(ctx, resultKey(id), resp, j.resultTTL); err != nil {
			return fmt.Errorf("store job result: %w", err)
		}
	}
	return nil
}

var _ queue.Job = (*ScoreJobs)(nil)
