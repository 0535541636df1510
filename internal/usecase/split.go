package usecase

import (
	"context"
	"fmt"
	"time"

	"MacroPanel/internal/domain/models"
	domrepo "MacroPanel/internal/domain/repository"
	"MacroPanel/internal/panel"
	"MacroPanel/internal/split"
	"MacroPanel/pkg/util"
)

const (
	ModeTimeSeries = "timeseries"
	ModeKFold      = "kfold"
)

// SplitUseCase builds validation folds over a category's panel.
type SplitUseCase struct {
	store   domrepo.PanelStore
	metrics domrepo.Metrics
}

func NewSplitUseCase(store domrepo.PanelStore, metrics domrepo.Metrics) *SplitUseCase {
	return &SplitUseCase{store: store, metrics: metricsOrNop(metrics)}
}

func splitter(req models.SplitRequest) (split.Splitter, string, error) {
	switch req.Mode {
	case ModeKFold:
		s, err := split.NewKFold(req.NSplits)
		return s, ModeKFold, err
	case "", ModeTimeSeries:
		s, err := split.NewTimeSeriesSplit(split.Config{
			NSplits:        req.NSplits,
			TrainIntervals: req.TrainIntervals,
			TestSize:       req.TestSize,
			MinPeriods:     req.MinPeriods,
			MinCids:        req.MinCids,
			MaxPeriods:     req.MaxPeriods,
		})
		return s, ModeTimeSeries, err
	default:
		return nil, "", fmt.Errorf("%w: unknown split mode %q", models.ErrConfig, req.Mode)
	}
}

// Split returns folds as row positions into the response index, which is the
// category's non-missing rows sorted by cross-section and date.
func (uc *SplitUseCase) Split(ctx context.Context, req models.SplitRequest) (*models.SplitResponse, error) {
	start := time.Now()
	s, mode, err := splitter(req)
	if err != nil {
		return nil, err
	}
	w, err := window(req.Start, req.End)
	if err != nil {
		return nil, err
	}

	source, err := loadPanel(ctx, uc.store, req.Observations, domrepo.PanelQuery{
		Categories:    []string{req.Category},
		CrossSections: req.CrossSections,
		Window:        w,
	})
	if err != nil {
		return nil, err
	}
	p, err := panel.Reduce(source, panel.Filter{
		Categories:    []string{req.Category},
		CrossSections: req.CrossSections,
		Window:        w,
		DropMissing:   true,
	})
	if err != nil {
		uc.metrics.RecordError("split", kind(err))
		return nil, fmt.Errorf("split %s: %w", req.Category, err)
	}
	p.Sort()

	index := split.Keys(p)
	folds, err := s.Split(index)
	if err != nil {
		uc.metrics.RecordError("split", kind(err))
		return nil, fmt.Errorf("split %s: %w", req.Category, err)
	}

	resp := &models.SplitResponse{
		Index: make([]models.KeyDTO, len(index)),
		Folds: make([]models.FoldDTO, len(folds)),
	}
	for i, k := range index {
		resp.Index[i] = models.KeyDTO{CrossSection: k.CrossSection, Date: util.FormatDate(k.Date)}
	}
	for i, f := range folds {
		dto := models.FoldDTO{Train: f.Train, Test: f.Test}
		dto.TrainStart, dto.TrainEnd = span(index, f.Train)
		dto.TestStart, dto.TestEnd = span(index, f.Test)
		resp.Folds[i] = dto
	}

	uc.metrics.RecordSplits(mode, len(folds))
	uc.metrics.RecordLatency("split", time.Since(start))
	return resp, nil
}

// span returns the first and last date covered by rows.
func span(index []split.Key, rows []int) (string, string) {
	if len(rows) == 0 {
		return "", ""
	}
	lo, hi := index[rows[0]].Date, index[rows[0]].Date
	for _, r := range rows[1:] {
		d := index[r].Date
		if d.Before(lo) {
			lo = d
		}
		if d.After(hi) {
			hi = d
		}
	}
	return util.FormatDate(lo), util.FormatDate(hi)
}
