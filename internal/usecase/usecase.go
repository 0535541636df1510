package usecase

import (
	"context"
	"fmt"
	"time"

	"MacroPanel/internal/domain/models"
	domrepo "MacroPanel/internal/domain/repository"
)

type nopMetrics struct{}

func (nopMetrics) RecordObservations(string, int)      {}
func (nopMetrics) RecordScores(string, int, int)       {}
func (nopMetrics) RecordSplits(string, int)            {}
func (nopMetrics) RecordCapRows(string, int)           {}
func (nopMetrics) RecordError(string, string)          {}
func (nopMetrics) RecordLatency(string, time.Duration) {}

func metricsOrNop(m domrepo.Metrics) domrepo.Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

func window(start, end string) (models.DateRange, error) {
	return models.DateRangeDTO{Start: start, End: end}.ToModel()
}

// loadPanel returns the inline observations when present, otherwise reads
// the store.
func loadPanel(ctx context.Context, store domrepo.PanelStore, inline []models.ObservationDTO, q domrepo.PanelQuery) (models.Panel, error) {
	if len(inline) > 0 {
		return models.PanelFromDTO(inline)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: no panel store configured and no observations supplied", models.ErrConfig)
	}
	p, err := store.LoadObservations(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load panel: %w", err)
	}
	return p, nil
}
