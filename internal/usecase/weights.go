package usecase

import (
	"context"
	"fmt"
	"time"

	"MacroPanel/internal/domain/models"
	domrepo "MacroPanel/internal/domain/repository"
	"MacroPanel/internal/panel"
	"MacroPanel/internal/weights"
)

// WeightsUseCase caps weight rows, either given directly or as a long panel
// with one row per category and date.
type WeightsUseCase struct {
	maxWeight float64
	metrics   domrepo.Metrics
}

func NewWeightsUseCase(maxWeight float64, metrics domrepo.Metrics) *WeightsUseCase {
	return &WeightsUseCase{maxWeight: maxWeight, metrics: metricsOrNop(metrics)}
}

func (uc *WeightsUseCase) Cap(_ context.Context, req models.CapRequest) (*models.CapResponse, error) {
	start := time.Now()
	capWeight := req.Cap
	if capWeight == 0 {
		capWeight = uc.maxWeight
	}

	var (
		resp *models.CapResponse
		err  error
	)
	if len(req.Observations) > 0 {
		resp, err = uc.capPanel(req.Observations, capWeight)
	} else {
		resp, err = uc.capRows(req.Rows, capWeight)
	}
	if err != nil {
		uc.metrics.RecordError("weights", kind(err))
		return nil, err
	}
	uc.metrics.RecordLatency("cap", time.Since(start))
	return resp, nil
}

func (uc *WeightsUseCase) capRows(rows [][]*float64, capWeight float64) (*models.CapResponse, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: rows or observations are required", models.ErrDataShape)
	}
	resp := &models.CapResponse{
		Rows:       make([][]*float64, len(rows)),
		Iterations: make([]int, len(rows)),
		Rescaled:   make([]bool, len(rows)),
	}
	capped := 0
	for i, row := range rows {
		res, err := weights.CapRow(models.FloatRow(row), capWeight)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		resp.Rows[i] = models.NullableRow(res.Row)
		resp.Iterations[i] = res.Iterations
		resp.Rescaled[i] = res.Rescaled
		if res.Changed() {
			capped++
		}
	}
	uc.metrics.RecordCapRows("capped", capped)
	uc.metrics.RecordCapRows("unchanged", len(rows)-capped)
	return resp, nil
}

func (uc *WeightsUseCase) capPanel(in []models.ObservationDTO, capWeight float64) (*models.CapResponse, error) {
	p, err := models.PanelFromDTO(in)
	if err != nil {
		return nil, err
	}
	var out models.Panel
	for _, cat := range p.Categories() {
		f, err := panel.Pivot(p, cat, nil)
		if err != nil {
			return nil, err
		}
		capped, err := weights.CapFrame(f, capWeight)
		if err != nil {
			return nil, err
		}
		out = append(out, capped.Long()...)
		uc.metrics.RecordCapRows("frame", f.Rows())
	}
	return &models.CapResponse{Observations: models.PanelToDTO(out)}, nil
}
