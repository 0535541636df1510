package usecase

import (
	"context"
	"fmt"
	"time"

	"MacroPanel/internal/composite"
	"MacroPanel/internal/domain/models"
	domrepo "MacroPanel/internal/domain/repository"
	applogger "MacroPanel/pkg/logger"
)

// CompositeUseCase builds linear composites of categories, typically of
// Zn-score output.
type CompositeUseCase struct {
	store   domrepo.PanelStore
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewCompositeUseCase(store domrepo.PanelStore, metrics domrepo.Metrics) *CompositeUseCase {
	return &CompositeUseCase{store: store, metrics: metricsOrNop(metrics)}
}

// SetLogger injects a structured logger.
func (uc *CompositeUseCase) SetLogger(l *applogger.Logger) { uc.l = l }

func (uc *CompositeUseCase) plan(req models.CompositeRequest, w models.DateRange) (*composite.Plan, error) {
	policy, err := composite.ParseMissingPolicy(req.NaNTreatment)
	if err != nil {
		return nil, err
	}
	bl, err := models.BlacklistFromDTO(req.Blacklist)
	if err != nil {
		return nil, err
	}
	return composite.NewPlan(composite.Config{
		Categories:    req.Categories,
		Weights:       req.Weights,
		Signs:         req.Signs,
		CrossSections: req.CrossSections,
		Window:        w,
		Blacklist:     bl,
		Complete:      req.Complete,
		Missing:       policy,
		FillValue:     req.FillValue,
		Category:      req.NewCategory,
	})
}

func (uc *CompositeUseCase) Compose(ctx context.Context, req models.CompositeRequest) (*models.CompositeResponse, error) {
	start := time.Now()
	w, err := window(req.Start, req.End)
	if err != nil {
		uc.metrics.RecordError("composite", kind(err))
		return nil, err
	}
	pl, err := uc.plan(req, w)
	if err != nil {
		uc.metrics.RecordError("composite", kind(err))
		return nil, err
	}
	if req.Store && uc.store == nil {
		return nil, fmt.Errorf("%w: storing a composite needs a panel store", models.ErrConfig)
	}

	source, err := loadPanel(ctx, uc.store, req.Observations, domrepo.PanelQuery{
		Categories:    req.Categories,
		CrossSections: req.CrossSections,
		Window:        w,
	})
	if err != nil {
		uc.metrics.RecordError("composite", kind(err))
		return nil, err
	}

	out, err := pl.Apply(source)
	if err != nil {
		uc.metrics.RecordError("composite", kind(err))
		return nil, fmt.Errorf("composite %v: %w", req.Categories, err)
	}
	if uc.l != nil && len(pl.Warnings()) > 0 {
		uc.l.Warn("composite inputs coerced",
			applogger.Strings("categories", req.Categories),
			applogger.Strings("warnings", pl.Warnings()),
		)
	}

	resp := &models.CompositeResponse{
		Rows:     models.PanelToDTO(out),
		Weights:  pl.Weights(),
		Warnings: pl.Warnings(),
	}
	if req.Store {
		if err := uc.store.StoreObservations(ctx, out); err != nil {
			uc.metrics.RecordError("composite", kind(err))
			return nil, fmt.Errorf("store composite: %w", err)
		}
		resp.Stored = true
		uc.metrics.RecordObservations(out[0].Category, len(out))
	}

	uc.metrics.RecordLatency("composite", time.Since(start))
	return resp, nil
}
