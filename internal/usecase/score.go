package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"MacroPanel/internal/domain/models"
	domrepo "MacroPanel/internal/domain/repository"
	"MacroPanel/internal/panel"
	"MacroPanel/internal/zscore"
	"MacroPanel/pkg/cache"
	"MacroPanel/pkg/config"
	applogger "MacroPanel/pkg/logger"
)

// ScoreUseCase computes Zn-score tables for one or more categories.
type ScoreUseCase struct {
	store     domrepo.PanelStore
	publisher domrepo.ScorePublisher
	cache     cache.Service
	metrics   domrepo.Metrics
	defaults  config.ScoringConfig
	cacheTTL  time.Duration
	l         *applogger.Logger
}

// NewScoreUseCase wires the score use case. publisher and cache may be nil.
func NewScoreUseCase(store domrepo.PanelStore, publisher domrepo.ScorePublisher, c cache.Service, metrics domrepo.Metrics, defaults config.ScoringConfig, cacheTTL time.Duration) *ScoreUseCase {
	return &ScoreUseCase{
		store:     store,
		publisher: publisher,
		cache:     c,
		metrics:   metricsOrNop(metrics),
		defaults:  defaults,
		cacheTTL:  cacheTTL,
	}
}

func (uc *ScoreUseCase) SetLogger(l *applogger.Logger) { uc.l = l }

// scoreParams is everything besides the category that determines a score table.
type scoreParams struct {
	Config        zscore.Config                  `json:"config"`
	CrossSections []string                       `json:"cids"`
	Start         string                         `json:"start"`
	End           string                         `json:"end"`
	Blacklist     map[string]models.DateRangeDTO `json:"blacklist"`
}

type scoreRun struct {
	normalizer *zscore.Normalizer
	filter     panel.Filter
	params     scoreParams
}

// options merges request knobs over the configured defaults.
func (uc *ScoreUseCase) options(req models.ScoreRequest) []zscore.Option {
	d := uc.defaults
	opts := []zscore.Option{
		zscore.WithNeutral(d.Neutral),
		zscore.WithSequential(d.Sequential),
		zscore.WithMinObs(d.MinObs),
		zscore.WithPanWeight(d.PanWeight),
		zscore.WithPostfix(d.Postfix),
	}
	if d.Thresh > 0 {
		opts = append(opts, zscore.WithThresh(d.Thresh))
	}
	if req.Neutral != nil {
		opts = append(opts, zscore.WithNeutral(*req.Neutral))
	}
	if req.Sequential != nil {
		opts = append(opts, zscore.WithSequential(*req.Sequential))
	}
	if req.MinObs != nil {
		opts = append(opts, zscore.WithMinObs(*req.MinObs))
	}
	switch {
	case req.Thresh == nil:
	case *req.Thresh == 0:
		opts = append(opts, zscore.WithoutThresh())
	default:
		opts = append(opts, zscore.WithThresh(*req.Thresh))
	}
	if req.PanWeight != nil {
		opts = append(opts, zscore.WithPanWeight(*req.PanWeight))
	}
	if req.Postfix != nil {
		opts = append(opts, zscore.WithPostfix(*req.Postfix))
	}
	return opts
}

// prepare validates the whole request before any data is read.
func (uc *ScoreUseCase) prepare(req models.ScoreRequest) (*scoreRun, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("%w: at least one category is required", models.ErrConfig)
	}
	n, err := zscore.New(uc.options(req)...)
	if err != nil {
		return nil, err
	}
	w, err := window(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	bl, err := models.BlacklistFromDTO(req.Blacklist)
	if err != nil {
		return nil, err
	}
	return &scoreRun{
		normalizer: n,
		filter: panel.Filter{
			CrossSections: req.CrossSections,
			Window:        w,
			Blacklist:     bl,
			DropMissing:   true,
		},
		params: scoreParams{
			Config:        n.Config(),
			CrossSections: req.CrossSections,
			Start:         req.Start,
			End:           req.End,
			Blacklist:     req.Blacklist,
		},
	}, nil
}

// Validate rejects a request whose knobs are invalid without computing anything.
func (uc *ScoreUseCase) Validate(req models.ScoreRequest) error {
	_, err := uc.prepare(req)
	return err
}

// Score computes every requested category and concatenates the tables. Stored
// panels are cached per category; inline observations are never cached.
func (uc *ScoreUseCase) Score(ctx context.Context, req models.ScoreRequest) (*models.ScoreResponse, error) {
	start := time.Now()
	run, err := uc.prepare(req)
	if err != nil {
		return nil, err
	}
	hash, err := cache.HashParams(run.params)
	if err != nil {
		return nil, err
	}

	useCache := uc.cache != nil && len(req.Observations) == 0
	var (
		source models.Panel
		loaded bool
		rows   []models.ObservationDTO
		hits   int
	)
	for _, cat := range req.Categories {
		key := cache.Key("scores", cat, hash)
		if useCache {
			var cached []models.ObservationDTO
			err := uc.cache.Get(ctx, key, &cached)
			if err == nil {
				rows = append(rows, cached...)
				hits++
				continue
			}
			if !errors.Is(err, cache.ErrCacheMiss) {
				uc.warn("score cache get failed", key, err)
			}
		}

		if !loaded {
			source, err = loadPanel(ctx, uc.store, req.Observations, domrepo.PanelQuery{
				Categories:    req.Categories,
				CrossSections: req.CrossSections,
				Window:        run.filter.Window,
			})
			if err != nil {
				uc.metrics.RecordError("score", "load")
				return nil, err
			}
			loaded = true
		}

		table, err := uc.scoreCategory(ctx, run, source, cat)
		if err != nil {
			uc.metrics.RecordError("score", kind(err))
			return nil, err
		}
		dto := models.PanelToDTO(table)
		rows = append(rows, dto...)

		if useCache {
			if err := uc.cache.Set(ctx, key, dto, uc.cacheTTL); err != nil {
				uc.warn("score cache set failed", key, err)
			}
		}
	}

	resp := &models.ScoreResponse{
		RunID:  uuid.NewString(),
		Rows:   rows,
		Cached: useCache && hits == len(req.Categories),
	}
	for _, r := range rows {
		if r.Value == nil {
			resp.Missing++
		}
	}

	if req.Publish {
		if err := uc.publish(ctx, resp); err != nil {
			return nil, err
		}
	}
	uc.metrics.RecordLatency("score", time.Since(start))
	return resp, nil
}

func (uc *ScoreUseCase) scoreCategory(ctx context.Context, run *scoreRun, source models.Panel, cat string) (models.Panel, error) {
	f := run.filter
	f.Categories = []string{cat}
	reduced, err := panel.Reduce(source, f)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", cat, err)
	}
	table, err := run.normalizer.ScorePanel(ctx, reduced, cat, run.filter.CrossSections)
	if err != nil {
		return nil, err
	}

	missing := 0
	for _, o := range table {
		if math.IsNaN(o.Value) {
			missing++
		}
	}
	uc.metrics.RecordScores(cat, len(table), missing)
	return table, nil
}

func (uc *ScoreUseCase) publish(ctx context.Context, resp *models.ScoreResponse) error {
	table, err := models.PanelFromDTO(resp.Rows)
	if err != nil {
		return fmt.Errorf("%w: score rows: %v", models.ErrInvariant, err)
	}
	if uc.store != nil {
		if err := uc.store.StoreScores(ctx, resp.RunID, table); err != nil {
			uc.metrics.RecordError("score", "store")
			return fmt.Errorf("store scores: %w", err)
		}
	}
	if uc.publisher != nil {
		if err := uc.publisher.PublishScores(ctx, resp.RunID, table); err != nil {
			uc.metrics.RecordError("score", "publish")
			return err
		}
	}
	if uc.l != nil {
		uc.l.Info("scores published",
			applogger.String("run_id", resp.RunID),
			applogger.Int("rows", len(table)),
		)
	}
	return nil
}

func (uc *ScoreUseCase) warn(msg, key string, err error) {
	if uc.l != nil {
		uc.l.Warn(msg, applogger.String("key", key), applogger.Error(err))
	}
}

// kind labels an error for the errors_total metric.
func kind(err error) string {
	switch {
	case errors.Is(err, models.ErrConfig):
		return "config"
	case errors.Is(err, models.ErrDataShape):
		return "data_shape"
	case errors.Is(err, models.ErrInvariant):
		return "invariant"
	case errors.Is(err, models.ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
