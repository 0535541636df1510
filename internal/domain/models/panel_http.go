package models

import (
	"fmt"
	"math"
	"time"

	"MacroPanel/pkg/util"
)

// ObservationDTO is the wire form of an Observation. A null value is missing.
type ObservationDTO struct {
	CrossSection string   `json:"cid" validate:"required"`
	Category     string   `json:"xcat" validate:"required"`
	Date         string   `json:"real_date" validate:"required,datetime=2006-01-02"`
	Value        *float64 `json:"value"`
}

func NewObservationDTO(o Observation) ObservationDTO {
	return ObservationDTO{
		CrossSection: o.CrossSection,
		Category:     o.Category,
		Date:         util.FormatDate(o.Date),
		Value:        finite(o.Value),
	}
}

// ToModel parses the date and rejects weekend timestamps.
func (d ObservationDTO) ToModel() (Observation, error) {
	if d.CrossSection == "" || d.Category == "" {
		return Observation{}, fmt.Errorf("%w: observation needs cid and xcat", ErrDataShape)
	}
	date, err := util.ParseDate(d.Date)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: %v", ErrDataShape, err)
	}
	if !util.IsBusinessDay(date) {
		return Observation{}, fmt.Errorf("%w: %s/%s on %s is not a business day", ErrDataShape, d.CrossSection, d.Category, d.Date)
	}
	v := math.NaN()
	if d.Value != nil {
		v = *d.Value
	}
	return Observation{CrossSection: d.CrossSection, Category: d.Category, Date: date, Value: v}, nil
}

func PanelFromDTO(in []ObservationDTO) (Panel, error) {
	out := make(Panel, 0, len(in))
	for _, d := range in {
		o, err := d.ToModel()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func PanelToDTO(p Panel) []ObservationDTO {
	out := make([]ObservationDTO, len(p))
	for i, o := range p {
		out[i] = NewObservationDTO(o)
	}
	return out
}

// DateRangeDTO bounds are YYYY-MM-DD; empty means open.
type DateRangeDTO struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

func (d DateRangeDTO) ToModel() (DateRange, error) {
	var r DateRange
	var err error
	if d.Start != "" {
		if r.Start, err = util.ParseDate(d.Start); err != nil {
			return r, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	if d.End != "" {
		if r.End, err = util.ParseDate(d.End); err != nil {
			return r, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return r, fmt.Errorf("%w: range end %s before start %s", ErrConfig, d.End, d.Start)
	}
	return r, nil
}

func BlacklistFromDTO(in map[string]DateRangeDTO) (Blacklist, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(Blacklist, len(in))
	for key, d := range in {
		r, err := d.ToModel()
		if err != nil {
			return nil, fmt.Errorf("blacklist %s: %w", key, err)
		}
		out[key] = r
	}
	return out, nil
}

func BlacklistToDTO(b Blacklist) map[string]DateRangeDTO {
	out := make(map[string]DateRangeDTO, len(b))
	for key, r := range b {
		var d DateRangeDTO
		if !r.Start.IsZero() {
			d.Start = util.FormatDate(r.Start)
		}
		if !r.End.IsZero() {
			d.End = util.FormatDate(r.End)
		}
		out[key] = d
	}
	return out
}

// ScoreRequest asks for Zn-scores of one or more categories. Nil knobs fall
// back to the service's scoring defaults; a thresh of 0 turns clipping off
// even when a default threshold is configured. Observations, when present,
// are scored instead of stored data.
type ScoreRequest struct {
	Categories    []string                `json:"categories" validate:"required,min=1,dive,required"`
	CrossSections []string                `json:"cids"`
	Start         string                  `json:"start" validate:"omitempty,datetime=2006-01-02"`
	End           string                  `json:"end" validate:"omitempty,datetime=2006-01-02"`
	Blacklist     map[string]DateRangeDTO `json:"blacklist"`
	Neutral       *string                 `json:"neutral" validate:"omitempty,oneof=mean median zero"`
	Sequential    *bool                   `json:"sequential"`
	MinObs        *int                    `json:"min_obs" validate:"omitempty,gte=0"`
	Thresh        *float64                `json:"thresh"`
	PanWeight     *float64                `json:"pan_weight" validate:"omitempty,gte=0,lte=1"`
	Postfix       *string                 `json:"postfix"`
	Publish       bool                    `json:"publish"`
	Observations  []ObservationDTO        `json:"observations" validate:"omitempty,dive"`
}

type ScoreResponse struct {
	RunID   string           `json:"run_id"`
	Rows    []ObservationDTO `json:"rows"`
	Missing int              `json:"missing"`
	Cached  bool             `json:"cached"`
}

// SplitRequest selects fixed-splits mode with n_splits, expanding mode with
// train_intervals, or k-fold mode.
type SplitRequest struct {
	Category       string           `json:"category" validate:"required"`
	CrossSections  []string         `json:"cids"`
	Start          string           `json:"start" validate:"omitempty,datetime=2006-01-02"`
	End            string           `json:"end" validate:"omitempty,datetime=2006-01-02"`
	Mode           string           `json:"mode" default:"timeseries" validate:"oneof=timeseries kfold"`
	NSplits        int              `json:"n_splits" validate:"gte=0"`
	TrainIntervals int              `json:"train_intervals" validate:"gte=0"`
	TestSize       int              `json:"test_size" validate:"required_unless=Mode kfold,gte=0"`
	MinPeriods     int              `json:"min_periods" default:"500" validate:"gte=0"`
	MinCids        int              `json:"min_cids" default:"4" validate:"gte=0"`
	MaxPeriods     int              `json:"max_periods" validate:"gte=0"`
	Observations   []ObservationDTO `json:"observations" validate:"omitempty,dive"`
}

type KeyDTO struct {
	CrossSection string `json:"cid"`
	Date         string `json:"real_date"`
}

type FoldDTO struct {
	Train      []int  `json:"train"`
	Test       []int  `json:"test"`
	TrainStart string `json:"train_start"`
	TrainEnd   string `json:"train_end"`
	TestStart  string `json:"test_start"`
	TestEnd    string `json:"test_end"`
}

// SplitResponse lists folds as positions into Index.
type SplitResponse struct {
	Index []KeyDTO  `json:"index"`
	Folds []FoldDTO `json:"folds"`
}

// CapRequest caps either wide rows of weights or a long panel of them. A
// zero cap falls back to the configured max weight.
type CapRequest struct {
	Cap          float64          `json:"cap" validate:"omitempty,gt=0,lte=1"`
	Rows         [][]*float64     `json:"rows" validate:"required_without=Observations"`
	Observations []ObservationDTO `json:"observations" validate:"omitempty,dive"`
}

type CapResponse struct {
	Rows         [][]*float64     `json:"rows,omitempty"`
	Iterations   []int            `json:"iterations,omitempty"`
	Rescaled     []bool           `json:"rescaled,omitempty"`
	Observations []ObservationDTO `json:"observations,omitempty"`
}

// CompositeRequest combines categories into new_xcat. Weights and signs
// follow the order of categories; weights are rescaled to sum to one and
// signs are coerced to +1 or -1. With store set the composite is written back
// to the panel store as observations.
type CompositeRequest struct {
	Categories    []string                `json:"categories" validate:"required,min=1,dive,required"`
	Weights       []float64               `json:"weights"`
	Signs         []float64               `json:"signs"`
	CrossSections []string                `json:"cids"`
	Start         string                  `json:"start" validate:"omitempty,datetime=2006-01-02"`
	End           string                  `json:"end" validate:"omitempty,datetime=2006-01-02"`
	Blacklist     map[string]DateRangeDTO `json:"blacklist"`
	Complete      bool                    `json:"complete_xcats"`
	NaNTreatment  string                  `json:"nan_treatment" validate:"omitempty,oneof=reweight drop fill"`
	FillValue     float64                 `json:"fill_value"`
	NewCategory   string                  `json:"new_xcat" default:"NEW"`
	Store         bool                    `json:"store"`
	Observations  []ObservationDTO        `json:"observations" validate:"omitempty,dive"`
}

type CompositeResponse struct {
	Rows     []ObservationDTO `json:"rows"`
	Weights  []float64        `json:"weights"`
	Warnings []string         `json:"warnings,omitempty"`
	Stored   bool             `json:"stored"`
}

// HedgeRequest estimates hedge ratios of xcat returns against the single
// benchmark series hedge_return, a CID_XCAT ticker.
type HedgeRequest struct {
	Category      string                  `json:"xcat" validate:"required"`
	CrossSections []string                `json:"cids"`
	Benchmark     string                  `json:"hedge_return" validate:"required"`
	Start         string                  `json:"start" validate:"omitempty,datetime=2006-01-02"`
	End           string                  `json:"end" validate:"omitempty,datetime=2006-01-02"`
	Blacklist     map[string]DateRangeDTO `json:"blacklist"`
	Frequency     string                  `json:"refreq" default:"m" validate:"oneof=w m q"`
	MinObs        int                     `json:"min_obs" default:"24" validate:"gte=2"`
	Lookback      int                     `json:"lookback" validate:"gte=0"`
	InSample      bool                    `json:"in_sample"`
	Observations  []ObservationDTO        `json:"observations" validate:"omitempty,dive"`
}

type HedgeEstimateDTO struct {
	CrossSection string  `json:"cid"`
	Date         string  `json:"real_date"`
	Intercept    float64 `json:"intercept"`
	Coefficient  float64 `json:"coefficient"`
	Observations int     `json:"observations"`
}

// HedgeResponse lists one estimate per re-estimation date and the daily
// ratios they imply.
type HedgeResponse struct {
	Benchmark string             `json:"hedge_return"`
	Estimates []HedgeEstimateDTO `json:"estimates"`
	Rows      []ObservationDTO   `json:"rows"`
}

// JobResponse reports a queued score job; Result is set once it is done.
type JobResponse struct {
	ID        string         `json:"id"`
	State     string         `json:"state"`
	Attempts  int            `json:"attempts"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
	Result    *ScoreResponse `json:"result,omitempty"`
}

// NullableRow maps NaN to nil for JSON.
func NullableRow(row []float64) []*float64 {
	out := make([]*float64, len(row))
	for i, v := range row {
		out[i] = finite(v)
	}
	return out
}

// FloatRow maps nil to NaN.
func FloatRow(row []*float64) []float64 {
	out := make([]float64, len(row))
	for i, v := range row {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
