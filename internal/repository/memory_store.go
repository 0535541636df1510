package repository

import (
	"context"
	"fmt"
	"sync"

	"MacroPanel/internal/domain/models"
	domrepo "MacroPanel/internal/domain/repository"
	"MacroPanel/pkg/util"
)

type pointKey struct {
	cid, xcat string
	date      int64
}

// MemoryPanelStore keeps observations in process. It backs the service when
// ClickHouse is disabled. Writes to an existing point replace it. Only the
// latest score run per output category is retained; a run is dropped once
// newer runs have superseded all of its categories.
type MemoryPanelStore struct {
	mu     sync.RWMutex
	obs    map[pointKey]models.Observation
	scores map[string]models.Panel
	latest map[string]string // score category -> run id
}

func NewMemoryPanelStore() *MemoryPanelStore {
	return &MemoryPanelStore{
		obs:    make(map[pointKey]models.Observation),
		scores: make(map[string]models.Panel),
		latest: make(map[string]string),
	}
}

func (s *MemoryPanelStore) Init(context.Context) error { return nil }

func (s *MemoryPanelStore) LoadObservations(_ context.Context, q domrepo.PanelQuery) (models.Panel, error) {
	cats := lookup(q.Categories)
	cids := lookup(q.CrossSections)

	s.mu.RLock()
	out := make(models.Panel, 0, len(s.obs))
	for _, o := range s.obs {
		if len(cats) > 0 && !cats[o.Category] {
			continue
		}
		if len(cids) > 0 && !cids[o.CrossSection] {
			continue
		}
		if !q.Window.Contains(o.Date) {
			continue
		}
		out = append(out, o)
	}
	s.mu.RUnlock()

	out.Sort()
	return out, nil
}

func (s *MemoryPanelStore) StoreObservations(_ context.Context, p models.Panel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range p {
		if o.Missing() {
			continue
		}
		o.Date = util.Day(o.Date)
		s.obs[pointKey{o.CrossSection, o.Category, o.Date.Unix()}] = o
	}
	return nil
}

func (s *MemoryPanelStore) StoreScores(_ context.Context, runID string, p models.Panel) error {
	if runID == "" {
		return fmt.Errorf("%w: run id is required", models.ErrConfig)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	superseded := make(map[string]struct{})
	for _, cat := range p.Categories() {
		if prev, ok := s.latest[cat]; ok && prev != runID {
			superseded[prev] = struct{}{}
		}
		s.latest[cat] = runID
	}
	s.scores[runID] = append(models.Panel(nil), p...)

	for _, owner := range s.latest {
		delete(superseded, owner)
	}
	for prev := range superseded {
		delete(s.scores, prev)
	}
	return nil
}

// Scores returns the score table stored under runID while it is retained.
func (s *MemoryPanelStore) Scores(runID string) (models.Panel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.scores[runID]
	return p, ok
}

func (s *MemoryPanelStore) Health(context.Context) error { return nil }

func (s *MemoryPanelStore) Close() error { return nil }

func lookup(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}
