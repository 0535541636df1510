package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"MacroPanel/internal/domain/models"
	domrepo "MacroPanel/internal/domain/repository"
	"MacroPanel/pkg/config"
	applogger "MacroPanel/pkg/logger"
)

// BreakerStore guards a PanelStore with a circuit breaker. While the breaker
// is open calls fail fast with models.ErrUnavailable.
type BreakerStore struct {
	next domrepo.PanelStore
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerStore(next domrepo.PanelStore, cfg config.BreakerConfig, l *applogger.Logger) *BreakerStore {
	st := gobreaker.Settings{Name: "panel-store"}
	st.Interval = cfg.Interval
	st.Timeout = cfg.Timeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	// caller mistakes and cancellations say nothing about store health
	st.IsSuccessful = func(err error) bool {
		return err == nil ||
			errors.Is(err, models.ErrConfig) ||
			errors.Is(err, models.ErrDataShape) ||
			errors.Is(err, context.Canceled)
	}
	if l != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state change",
				applogger.String("breaker", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		}
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// State exposes the breaker state for health reporting.
func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }

func (b *BreakerStore) execute(fn func() (interface{}, error)) (interface{}, error) {
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: panel store: %v", models.ErrUnavailable, err)
	}
	return out, err
}

func (b *BreakerStore) Init(ctx context.Context) error {
	_, err := b.execute(func() (interface{}, error) { return nil, b.next.Init(ctx) })
	return err
}

func (b *BreakerStore) LoadObservations(ctx context.Context, q domrepo.PanelQuery) (models.Panel, error) {
	out, err := b.execute(func() (interface{}, error) { return b.next.LoadObservations(ctx, q) })
	if err != nil {
		return nil, err
	}
	return out.(models.Panel), nil
}

func (b *BreakerStore) StoreObservations(ctx context.Context, p models.Panel) error {
	_, err := b.execute(func() (interface{}, error) { return nil, b.next.StoreObservations(ctx, p) })
	return err
}

func (b *BreakerStore) StoreScores(ctx context.Context, runID string, p models.Panel) error {
	_, err := b.execute(func() (interface{}, error) { return nil, b.next.StoreScores(ctx, runID, p) })
	return err
}

func (b *BreakerStore) Health(ctx context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: panel store circuit open", models.ErrUnavailable)
	}
	return b.next.Health(ctx)
}

func (b *BreakerStore) Close() error {
	return b.next.Close()
}
