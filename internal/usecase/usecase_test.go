package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MacroPanel/internal/domain/models"
	domrepo "MacroPanel/internal/domain/repository"
	"MacroPanel/internal/repository"
	"MacroPanel/pkg/cache"
	"MacroPanel/pkg/config"
	"MacroPanel/pkg/queue"
	"MacroPanel/pkg/util"
)

func ptr[T any](v T) *T { return &v }

func scoringDefaults() config.ScoringConfig {
	return config.ScoringConfig{Neutral: "zero", Sequential: true, MinObs: 261, PanWeight: 1, Postfix: "_ZN", MaxWeight: 1}
}

// countingStore counts reads so tests can tell cache hits from loads.
type countingStore struct {
	*repository.MemoryPanelStore
	loads int
}

func (s *countingStore) LoadObservations(ctx context.Context, q domrepo.PanelQuery) (models.Panel, error) {
	s.loads++
	return s.MemoryPanelStore.LoadObservations(ctx, q)
}

type fakePublisher struct {
	runID string
	rows  int
}

func (f *fakePublisher) PublishScores(_ context.Context, runID string, p models.Panel) error {
	f.runID, f.rows = runID, len(p)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

// samplePanel has cids AUD (+1, +2, ...) and CAD (-1, -2, ...) for category
// XR on consecutive business days from 2020-01-06.
func samplePanel(days int) models.Panel {
	dates := util.BusinessDays(time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC), time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))[:days]
	var p models.Panel
	for i, d := range dates {
		p = append(p,
			models.Observation{CrossSection: "AUD", Category: "XR", Date: d, Value: float64(i + 1)},
			models.Observation{CrossSection: "CAD", Category: "XR", Date: d, Value: -float64(i + 1)},
		)
	}
	return p
}

func staticRequest() models.ScoreRequest {
	return models.ScoreRequest{
		Categories: []string{"XR"},
		Neutral:    ptr("zero"),
		Sequential: ptr(false),
		MinObs:     ptr(0),
	}
}

func TestScoreInlineObservations(t *testing.T) {
	uc := NewScoreUseCase(nil, nil, nil, nil, scoringDefaults(), time.Minute)
	req := staticRequest()
	req.Observations = models.PanelToDTO(samplePanel(2))

	resp, err := uc.Score(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Rows, 4)
	assert.NotEmpty(t, resp.RunID)
	assert.False(t, resp.Cached)
	assert.Equal(t, 0, resp.Missing)

	// zero neutral, static panel dispersion sqrt((1+4+1+4)/4)
	want := 1 / math.Sqrt(2.5)
	first := resp.Rows[0]
	assert.Equal(t, "AUD", first.CrossSection)
	assert.Equal(t, "XR_ZN", first.Category)
	assert.Equal(t, "2020-01-06", first.Date)
	require.NotNil(t, first.Value)
	assert.InDelta(t, want, *first.Value, 1e-9)
}

func TestScoreZeroThreshDisablesConfiguredClipping(t *testing.T) {
	defaults := scoringDefaults()
	defaults.Thresh = 1
	uc := NewScoreUseCase(nil, nil, nil, nil, defaults, time.Minute)

	maxAbs := func(resp *models.ScoreResponse) float64 {
		m := 0.0
		for _, r := range resp.Rows {
			require.NotNil(t, r.Value)
			m = math.Max(m, math.Abs(*r.Value))
		}
		return m
	}

	req := staticRequest()
	req.Observations = models.PanelToDTO(samplePanel(2))
	resp, err := uc.Score(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 1, maxAbs(resp), 1e-12)

	req.Thresh = ptr(0.0)
	resp, err = uc.Score(context.Background(), req)
	require.NoError(t, err)
	// 2 / sqrt(2.5)
	assert.InDelta(t, 2/math.Sqrt(2.5), maxAbs(resp), 1e-9)
}

func TestScoreMinObsLeavesMissing(t *testing.T) {
	uc := NewScoreUseCase(nil, nil, nil, nil, scoringDefaults(), time.Minute)
	req := models.ScoreRequest{Categories: []string{"XR"}, Observations: models.PanelToDTO(samplePanel(5))}

	// default min_obs of 261 suppresses every score
	resp, err := uc.Score(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, resp.Rows, 10)
	assert.Equal(t, 10, resp.Missing)
}

func TestScoreCachesStoredPanels(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{MemoryPanelStore: repository.NewMemoryPanelStore()}
	require.NoError(t, store.StoreObservations(ctx, samplePanel(3)))
	mem := cache.NewMemoryCache(16)
	uc := NewScoreUseCase(store, nil, mem, nil, scoringDefaults(), time.Minute)

	first, err := uc.Score(ctx, staticRequest())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, store.loads)

	second, err := uc.Score(ctx, staticRequest())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, store.loads)
	assert.Equal(t, first.Rows, second.Rows)

	// new data for XR drops the cached table
	ingest := NewObservationIngestHandler("obs", store, mem, nil)
	require.NoError(t, ingest.Handle(ctx, []byte(`{"cid":"AUD","xcat":"XR","real_date":"2020-01-09","value":4}`)))

	third, err := uc.Score(ctx, staticRequest())
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, store.loads)
	assert.Len(t, third.Rows, 7)
}

func TestScorePublish(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryPanelStore()
	require.NoError(t, store.StoreObservations(ctx, samplePanel(3)))
	pub := &fakePublisher{}
	uc := NewScoreUseCase(store, pub, nil, nil, scoringDefaults(), time.Minute)

	req := staticRequest()
	req.Publish = true
	resp, err := uc.Score(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, resp.RunID, pub.runID)
	assert.Equal(t, 6, pub.rows)
	stored, ok := store.Scores(resp.RunID)
	require.True(t, ok)
	assert.Len(t, stored, 6)
}

func TestScoreRejectsBadConfigBeforeLoading(t *testing.T) {
	store := &countingStore{MemoryPanelStore: repository.NewMemoryPanelStore()}
	uc := NewScoreUseCase(store, nil, nil, nil, scoringDefaults(), time.Minute)

	tests := []struct {
		name   string
		mutate func(r *models.ScoreRequest)
	}{
		{"thresh below one", func(r *models.ScoreRequest) { r.Thresh = ptr(0.5) }},
		{"pan weight above one", func(r *models.ScoreRequest) { r.PanWeight = ptr(1.5) }},
		{"unknown neutral", func(r *models.ScoreRequest) { r.Neutral = ptr("mode") }},
		{"no categories", func(r *models.ScoreRequest) { r.Categories = nil }},
		{"inverted window", func(r *models.ScoreRequest) { r.Start, r.End = "2020-02-01", "2020-01-01" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := staticRequest()
			tt.mutate(&req)
			_, err := uc.Score(context.Background(), req)
			assert.ErrorIs(t, err, models.ErrConfig)
		})
	}
	assert.Equal(t, 0, store.loads)
}

func TestScoreMissingCategory(t *testing.T) {
	uc := NewScoreUseCase(nil, nil, nil, nil, scoringDefaults(), time.Minute)
	req := staticRequest()
	req.Categories = []string{"GDP"}
	req.Observations = models.PanelToDTO(samplePanel(3))

	_, err := uc.Score(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrDataShape)
}

func TestScoreWithoutStore(t *testing.T) {
	uc := NewScoreUseCase(nil, nil, nil, nil, scoringDefaults(), time.Minute)
	_, err := uc.Score(context.Background(), staticRequest())
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestSplitTimeSeries(t *testing.T) {
	uc := NewSplitUseCase(nil, nil)
	resp, err := uc.Split(context.Background(), models.SplitRequest{
		Category:     "XR",
		Mode:         ModeTimeSeries,
		NSplits:      2,
		TestSize:     2,
		Observations: models.PanelToDTO(samplePanel(10)),
	})
	require.NoError(t, err)
	require.Len(t, resp.Index, 20)
	assert.Equal(t, models.KeyDTO{CrossSection: "AUD", Date: "2020-01-06"}, resp.Index[0])
	require.NotEmpty(t, resp.Folds)

	for _, f := range resp.Folds {
		train := make(map[int]bool, len(f.Train))
		for _, i := range f.Train {
			train[i] = true
		}
		for _, i := range f.Test {
			assert.False(t, train[i], "row %d in both train and test", i)
		}
		assert.Less(t, f.TrainEnd, f.TestStart)
	}
}

func TestSplitKFoldAndErrors(t *testing.T) {
	uc := NewSplitUseCase(nil, nil)
	obs := models.PanelToDTO(samplePanel(10))

	resp, err := uc.Split(context.Background(), models.SplitRequest{Category: "XR", Mode: ModeKFold, NSplits: 5, Observations: obs})
	require.NoError(t, err)
	assert.Len(t, resp.Folds, 5)

	_, err = uc.Split(context.Background(), models.SplitRequest{Category: "XR", Mode: ModeTimeSeries, Observations: obs})
	assert.ErrorIs(t, err, models.ErrConfig)

	_, err = uc.Split(context.Background(), models.SplitRequest{Category: "XR", Mode: "random", Observations: obs})
	assert.ErrorIs(t, err, models.ErrConfig)

	_, err = uc.Split(context.Background(), models.SplitRequest{Category: "GDP", NSplits: 2, TestSize: 1, Observations: obs})
	assert.ErrorIs(t, err, models.ErrDataShape)
}

func TestCapRows(t *testing.T) {
	uc := NewWeightsUseCase(1, nil)
	resp, err := uc.Cap(context.Background(), models.CapRequest{
		Cap:  0.4,
		Rows: [][]*float64{{ptr(0.6), ptr(0.3), nil, ptr(0.1)}, {ptr(0.3), ptr(0.3), ptr(0.4), nil}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 2)

	row := resp.Rows[0]
	assert.Nil(t, row[2])
	var total float64
	for _, v := range row {
		if v == nil {
			continue
		}
		assert.LessOrEqual(t, *v, 0.4+0.001)
		total += *v
	}
	assert.InDelta(t, 1, total, 0.001)
	assert.Positive(t, resp.Iterations[0])
	assert.Equal(t, 0, resp.Iterations[1])
}

type capMetrics struct {
	nopMetrics
	rows map[string]int
}

func (m *capMetrics) RecordCapRows(kind string, n int) { m.rows[kind] += n }

func TestCapRowsCountsRescaledRows(t *testing.T) {
	m := &capMetrics{rows: make(map[string]int)}
	uc := NewWeightsUseCase(1, m)
	resp, err := uc.Cap(context.Background(), models.CapRequest{
		Cap:  0.5,
		Rows: [][]*float64{{ptr(0.8), ptr(0.8)}, {ptr(0.5), ptr(0.5)}},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0}, resp.Iterations)
	assert.Equal(t, []bool{true, false}, resp.Rescaled)
	assert.Equal(t, 0.5, *resp.Rows[0][0])
	assert.Equal(t, 1, m.rows["capped"])
	assert.Equal(t, 1, m.rows["unchanged"])
}

func TestCapDefaultsAndErrors(t *testing.T) {
	uc := NewWeightsUseCase(1, nil)
	resp, err := uc.Cap(context.Background(), models.CapRequest{Rows: [][]*float64{{ptr(0.9), ptr(0.1)}}})
	require.NoError(t, err)
	assert.Equal(t, 0.9, *resp.Rows[0][0])

	_, err = uc.Cap(context.Background(), models.CapRequest{Cap: 0.2, Rows: [][]*float64{{ptr(0.5), ptr(0.3), ptr(0.2)}}})
	assert.ErrorIs(t, err, models.ErrConfig)

	_, err = uc.Cap(context.Background(), models.CapRequest{Cap: 0.5})
	assert.ErrorIs(t, err, models.ErrDataShape)
}

func TestCapPanel(t *testing.T) {
	uc := NewWeightsUseCase(1, nil)
	d := "2020-01-06"
	resp, err := uc.Cap(context.Background(), models.CapRequest{
		Cap: 0.5,
		Observations: []models.ObservationDTO{
			{CrossSection: "AUD", Category: "W", Date: d, Value: ptr(0.8)},
			{CrossSection: "CAD", Category: "W", Date: d, Value: ptr(0.1)},
			{CrossSection: "GBP", Category: "W", Date: d, Value: ptr(0.1)},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Observations, 3)
	for _, o := range resp.Observations {
		assert.LessOrEqual(t, *o.Value, 0.5+0.001)
	}
}

func TestComposeStoresComposite(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryPanelStore()
	require.NoError(t, store.StoreObservations(ctx, samplePanel(3)))
	crys := samplePanel(3)
	for i := range crys {
		crys[i].Category = "CRY"
		crys[i].Value *= 3
	}
	require.NoError(t, store.StoreObservations(ctx, crys))

	uc := NewCompositeUseCase(store, nil)
	resp, err := uc.Compose(ctx, models.CompositeRequest{
		Categories:    []string{"XR", "CRY"},
		Weights:       []float64{3, 1},
		CrossSections: []string{"AUD"},
		NewCategory:   "MIX",
		Store:         true,
	})
	require.NoError(t, err)
	assert.True(t, resp.Stored)
	assert.Equal(t, []float64{0.75, 0.25}, resp.Weights)
	assert.Len(t, resp.Warnings, 1)
	require.Len(t, resp.Rows, 3)
	// 0.75*x + 0.25*3x
	assert.InDelta(t, 1.5, *resp.Rows[0].Value, 1e-12)

	stored, err := store.LoadObservations(ctx, domrepo.PanelQuery{Categories: []string{"MIX"}})
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	_, err = NewCompositeUseCase(nil, nil).Compose(ctx, models.CompositeRequest{
		Categories:   []string{"XR"},
		Store:        true,
		Observations: models.PanelToDTO(samplePanel(1)),
	})
	assert.ErrorIs(t, err, models.ErrConfig)

	_, err = uc.Compose(ctx, models.CompositeRequest{Categories: []string{"XR"}, NaNTreatment: "zero"})
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestHedgeRatiosFromStore(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryPanelStore()
	var p models.Panel
	for i, d := range util.BusinessDays(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC)) {
		x := float64((i*3)%5) - 2
		p = append(p,
			models.Observation{CrossSection: "USD", Category: "EQXR", Date: d, Value: x},
			models.Observation{CrossSection: "AUD", Category: "EQXR", Date: d, Value: 1 - 0.5*x},
			models.Observation{CrossSection: "CAD", Category: "EQXR", Date: d, Value: x},
		)
	}
	require.NoError(t, store.StoreObservations(ctx, p))

	uc := NewHedgeUseCase(store, nil)
	resp, err := uc.Ratios(ctx, models.HedgeRequest{
		Category:      "EQXR",
		CrossSections: []string{"AUD"},
		Benchmark:     "USD_EQXR",
		Frequency:     "q",
		MinObs:        10,
	})
	require.NoError(t, err)
	require.Len(t, resp.Estimates, 1)
	e := resp.Estimates[0]
	assert.Equal(t, "AUD", e.CrossSection)
	assert.Equal(t, "2020-03-31", e.Date)
	assert.InDelta(t, -0.5, e.Coefficient, 1e-9)
	assert.InDelta(t, 1, e.Intercept, 1e-9)
	// the second quarter's business days
	assert.Len(t, resp.Rows, 65)

	_, err = uc.Ratios(ctx, models.HedgeRequest{Category: "EQXR", Benchmark: "USD_EQXR", Frequency: "d"})
	assert.ErrorIs(t, err, models.ErrConfig)

	_, err = NewHedgeUseCase(nil, nil).Ratios(ctx, models.HedgeRequest{Category: "EQXR", Benchmark: "USD_EQXR"})
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestIngestHandler(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryPanelStore()
	h := NewObservationIngestHandler("panel.observations", store, nil, nil)
	assert.Equal(t, "panel.observations", h.Topic())

	require.NoError(t, h.Handle(ctx, []byte(`[
		{"cid":"AUD","xcat":"XR","real_date":"2020-01-06","value":1},
		{"cid":"CAD","xcat":"XR","real_date":"2020-01-06","value":null}
	]`)))
	p, err := store.LoadObservations(ctx, domrepo.PanelQuery{})
	require.NoError(t, err)
	assert.Len(t, p, 1)

	err = h.Handle(ctx, []byte(`{"cid":"AUD","xcat":"XR","real_date":"2020-01-04","value":1}`))
	assert.ErrorIs(t, err, models.ErrDataShape)

	err = h.Handle(ctx, []byte(`{"cid":`))
	assert.ErrorIs(t, err, models.ErrDataShape)

	assert.ErrorIs(t, h.Handle(ctx, []byte("  ")), models.ErrDataShape)
}

type fakeQueue struct {
	payload interface{}
	status  *queue.Status
	err     error
}

func (q *fakeQueue) Enqueue(_ context.Context, _ string, payload interface{}) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.payload = payload
	return "job-1", nil
}

func (q *fakeQueue) Status(context.Context, string) (*queue.Status, error) {
	if q.status == nil {
		return nil, queue.ErrNotFound
	}
	return q.status, nil
}

func TestScoreJobs(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryPanelStore()
	require.NoError(t, store.StoreObservations(ctx, samplePanel(3)))
	mem := cache.NewMemoryCache(16)
	scores := NewScoreUseCase(store, nil, mem, nil, scoringDefaults(), time.Minute)
	q := &fakeQueue{}
	jobs := NewScoreJobs(scores, q, mem, time.Hour)

	id, err := jobs.Submit(ctx, staticRequest())
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.True(t, q.payload.(models.ScoreRequest).Publish)

	payload, err := json.Marshal(q.payload)
	require.NoError(t, err)
	require.NoError(t, jobs.Handle(ctx, id, payload))

	q.status = &queue.Status{ID: id, State: queue.StateDone, Attempts: 1}
	got, err := jobs.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "done", got.State)
	require.NotNil(t, got.Result)
	assert.Len(t, got.Result.Rows, 6)
	_, ok := store.Scores(got.Result.RunID)
	assert.True(t, ok)
}

func TestScoreJobsErrors(t *testing.T) {
	ctx := context.Background()
	scores := NewScoreUseCase(nil, nil, nil, nil, scoringDefaults(), time.Minute)

	_, err := NewScoreJobs(scores, nil, nil, 0).Submit(ctx, staticRequest())
	assert.ErrorIs(t, err, models.ErrUnavailable)

	jobs := NewScoreJobs(scores, &fakeQueue{}, nil, 0)
	bad := staticRequest()
	bad.Thresh = ptr(0.1)
	_, err = jobs.Submit(ctx, bad)
	assert.ErrorIs(t, err, models.ErrConfig)

	_, err = jobs.Get(ctx, "missing")
	assert.ErrorIs(t, err, queue.ErrNotFound)

	err = jobs.Handle(ctx, "x", json.RawMessage(`[`))
	assert.True(t, queue.IsPermanent(err))

	// no store and no inline data is a caller error, never retried
	payload, _ := json.Marshal(staticRequest())
	err = jobs.Handle(ctx, "x", payload)
	assert.True(t, queue.IsPermanent(err))

	_, err = NewScoreJobs(scores, &fakeQueue{err: errors.New("redis down")}, nil, 0).Submit(ctx, staticRequest())
	assert.ErrorIs(t, err, models.ErrUnavailable)
}
