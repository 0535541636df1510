package split

import (
	"fmt"
	"sort"

	"MacroPanel/internal/domain/models"
)

// KFold cuts the unique dates into contiguous blocks; each fold tests one
// block and trains on every other date. Training data may follow the test
// block, so it suits model selection rather than out-of-sample evaluation.
type KFold struct {
	n int
}

var _ Splitter = (*KFold)(nil)

func NewKFold(nSplits int) (*KFold, error) {
	if nSplits < 2 {
		return nil, fmt.Errorf("%w: k-fold needs n_splits >= 2, got %d", models.ErrConfig, nSplits)
	}
	return &KFold{n: nSplits}, nil
}

func (k *KFold) Split(index []Key) ([]Fold, error) {
	tl, err := newTimeline(index)
	if err != nil {
		return nil, err
	}
	if tl.len() < k.n {
		return nil, fmt.Errorf("%w: %d unique dates cannot form %d folds", models.ErrConfig, tl.len(), k.n)
	}

	folds := make([]Fold, 0, k.n)
	for _, c := range chunks(tl.len(), k.n) {
		var train []int
		if c[0] > 0 {
			train = append(train, tl.collect(0, c[0]-1)...)
		}
		if c[1] < tl.len()-1 {
			train = append(train, tl.collect(c[1]+1, tl.len()-1)...)
		}
		sort.Ints(train)
		folds = append(folds, Fold{Train: train, Test: tl.collect(c[0], c[1])})
	}
	return folds, nil
}
