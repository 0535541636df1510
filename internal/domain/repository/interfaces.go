package repository

import (
	"context"
	"time"

	"MacroPanel/internal/domain/models"
)

// PanelQuery selects stored observations. Empty lists and zero bounds are unrestricted.
type PanelQuery struct {
	Categories    []string
	CrossSections []string
	Window        models.DateRange
}

type PanelStore interface {
	// Init creates the backing tables if they are missing.
	Init(ctx context.Context) error
	LoadObservations(ctx context.Context, q PanelQuery) (models.Panel, error)
	StoreObservations(ctx context.Context, p models.Panel) error
	// StoreScores persists a score panel under runID; missing values are stored as NULL.
	StoreScores(ctx context.Context, runID string, p models.Panel) error
	Health(ctx context.Context) error
	Close() error
}

type ScorePublisher interface {
	PublishScores(ctx context.Context, runID string, p models.Panel) error
	Close() error
}

type Metrics interface {
	RecordObservations(category string, n int)
	RecordScores(category string, total, missing int)
	RecordSplits(mode string, n int)
	RecordCapRows(outcome string, n int)
	RecordError(component, kind string)
	RecordLatency(op string, d time.Duration)
}
