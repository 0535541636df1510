package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MacroPanel/internal/domain/models"
	domrepo "MacroPanel/internal/domain/repository"
	"MacroPanel/pkg/cache"
	pkgkafka "MacroPanel/pkg/kafka"
	applogger "MacroPanel/pkg/logger"
)

// ObservationIngestHandler consumes observation messages and writes them to
// the panel store. A message carries one observation or an array of them.
type ObservationIngestHandler struct {
	topic   string
	store   domrepo.PanelStore
	cache   cache.Service
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewObservationIngestHandler(topic string, store domrepo.PanelStore, c cache.Service, metrics domrepo.Metrics) *ObservationIngestHandler {
	return &ObservationIngestHandler{topic: topic, store: store, cache: c, metrics: metricsOrNop(metrics)}
}

func (h *ObservationIngestHandler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *ObservationIngestHandler) Topic() string { return h.topic }

func (h *ObservationIngestHandler) Handle(ctx context.Context, b []byte) error {
	dtos, err := decodeObservations(b)
	if err != nil {
		h.metrics.RecordError("ingest", "unmarshal")
		return err
	}
	p, err := models.PanelFromDTO(dtos)
	if err != nil {
		h.metrics.RecordError("ingest", kind(err))
		return err
	}
	if len(p) == 0 {
		return nil
	}

	start := time.Now()
	if err := h.store.StoreObservations(ctx, p); err != nil {
		h.metrics.RecordError("ingest", "store")
		return fmt.Errorf("store observations: %w", err)
	}
	h.metrics.RecordLatency("ingest_store", time.Since(start))

	counts := make(map[string]int)
	for _, o := range p {
		counts[o.Category]++
	}
	for cat, n := range counts {
		h.metrics.RecordObservations(cat, n)
		if h.cache == nil {
			continue
		}
		// cached score tables of this category are stale now
		if err := h.cache.DeleteByPattern(ctx, cache.Key("scores", cat, "*")); err != nil && h.l != nil {
			h.l.Warn("invalidate score cache",
				applogger.String("category", cat),
				applogger.Error(err),
			)
		}
	}
	if h.l != nil {
		h.l.Debug("observations stored", applogger.Any("per_category", counts))
	}
	return nil
}

func decodeObservations(b []byte) ([]models.ObservationDTO, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty observation message", models.ErrDataShape)
	}
	if b[0] == '[' {
		var out []models.ObservationDTO
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("%w: decode observations: %v", models.ErrDataShape, err)
		}
		return out, nil
	}
	var one models.ObservationDTO
	if err := json.Unmarshal(b, &one); err != nil {
		return nil, fmt.Errorf("%w: decode observation: %v", models.ErrDataShape, err)
	}
	return []models.ObservationDTO{one}, nil
}

var _ pkgkafka.MessageHandler = (*ObservationIngestHandler)(nil)
