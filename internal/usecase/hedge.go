package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MacroPanel/internal/domain/models"
	domrepo "MacroPanel/internal/domain/repository"
	"MacroPanel/internal/hedge"
	"MacroPanel/pkg/util"
)

// HedgeUseCase estimates rolling hedge ratios against a benchmark return.
type HedgeUseCase struct {
	store   domrepo.PanelStore
	metrics domrepo.Metrics
}

func NewHedgeUseCase(store domrepo.PanelStore, metrics domrepo.Metrics) *HedgeUseCase {
	return &HedgeUseCase{store: store, metrics: metricsOrNop(metrics)}
}

func (uc *HedgeUseCase) config(req models.HedgeRequest) (hedge.Config, error) {
	freq, err := hedge.ParseFrequency(req.Frequency)
	if err != nil {
		return hedge.Config{}, err
	}
	w, err := window(req.Start, req.End)
	if err != nil {
		return hedge.Config{}, err
	}
	bl, err := models.BlacklistFromDTO(req.Blacklist)
	if err != nil {
		return hedge.Config{}, err
	}
	minObs := req.MinObs
	if minObs == 0 {
		minObs = hedge.DefaultMinObs
	}
	return hedge.Config{
		Category:      req.Category,
		CrossSections: req.CrossSections,
		Benchmark:     req.Benchmark,
		Window:        w,
		Blacklist:     bl,
		Frequency:     freq,
		MinObs:        minObs,
		Lookback:      req.Lookback,
		InSample:      req.InSample,
	}, nil
}

func (uc *HedgeUseCase) Ratios(ctx context.Context, req models.HedgeRequest) (*models.HedgeResponse, error) {
	start := time.Now()
	cfg, err := uc.config(req)
	if err != nil {
		uc.metrics.RecordError("hedge", kind(err))
		return nil, err
	}

	query := domrepo.PanelQuery{Categories: []string{req.Category}, Window: cfg.Window}
	if benchCid, benchXcat, ok := strings.Cut(req.Benchmark, "_"); ok {
		if benchXcat != req.Category {
			query.Categories = append(query.Categories, benchXcat)
		}
		if len(req.CrossSections) > 0 {
			query.CrossSections = append(append([]string(nil), req.CrossSections...), benchCid)
		}
	}

	source, err := loadPanel(ctx, uc.store, req.Observations, query)
	if err != nil {
		uc.metrics.RecordError("hedge", kind(err))
		return nil, err
	}

	res, err := hedge.Ratios(ctx, source, cfg)
	if err != nil {
		uc.metrics.RecordError("hedge", kind(err))
		return nil, fmt.Errorf("hedge %s against %s: %w", req.Category, req.Benchmark, err)
	}

	resp := &models.HedgeResponse{
		Benchmark: res.Benchmark,
		Estimates: make([]models.HedgeEstimateDTO, len(res.Estimates)),
		Rows:      models.PanelToDTO(res.Ratios),
	}
	for i, e := range res.Estimates {
		resp.Estimates[i] = models.HedgeEstimateDTO{
			CrossSection: e.CrossSection,
			Date:         util.FormatDate(e.Estimated),
			Intercept:    e.Intercept,
			Coefficient:  e.Coefficient,
			Observations: e.Observations,
		}
	}
	uc.metrics.RecordLatency("hedge", time.Since(start))
	return resp, nil
}
