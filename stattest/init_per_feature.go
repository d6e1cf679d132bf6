package stattest

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/kexpfam/pkg/errors"
	"github.com/YuminosukeSato/kexpfam/pkg/log"
)

// InitPerFeature binds a feature set to one fetcher slot. Assigning a
// feature set replaces whatever fetcher the slot held.
type InitPerFeature struct {
	slot *DataFetcher
}

// NewInitPerFeature returns an initializer writing to slot.
func NewInitPerFeature(slot *DataFetcher) *InitPerFeature {
	return &InitPerFeature{slot: slot}
}

// Assign creates a fetcher for samples and stores it in the slot.
// A nil feature set clears the slot.
func (p *InitPerFeature) Assign(samples mat.Matrix) *InitPerFeature {
	if samples == nil {
		*p.slot = nil
		return p
	}
	*p.slot = NewDataFetcher(samples)

	n, d := samples.Dims()
	log.GetLoggerWithName("stattest").Debug("Samples assigned",
		log.OperationKey, log.OperationFetcherAssign,
		log.PointsKey, n,
		log.DimensionsKey, d,
	)
	return p
}

// Samples returns the feature set bound to the slot, or nil.
func (p *InitPerFeature) Samples() mat.Matrix {
	if *p.slot == nil {
		return nil
	}
	return (*p.slot).Samples()
}

// Fetcher returns the fetcher currently held by the slot.
func (p *InitPerFeature) Fetcher() DataFetcher { return *p.slot }

// DataManager owns a fixed number of fetcher slots, one per distribution
// under test.
type DataManager struct {
	fetchers []DataFetcher
}

// NewDataManager creates a manager with n empty slots.
func NewDataManager(n int) (*DataManager, error) {
	if n <= 0 {
		return nil, errors.NewValidationError("num_distributions", "must be positive", n)
	}
	return &DataManager{fetchers: make([]DataFetcher, n)}, nil
}

// NumDistributions returns the number of slots.
func (m *DataManager) NumDistributions() int { return len(m.fetchers) }

// SamplesAt returns the initializer for slot i.
func (m *DataManager) SamplesAt(i int) (*InitPerFeature, error) {
	if i < 0 || i >= len(m.fetchers) {
		return nil, errors.NewIndexError("DataManager.SamplesAt", i, len(m.fetchers))
	}
	return NewInitPerFeature(&m.fetchers[i]), nil
}

// SetBlockSize applies n to every bound fetcher.
func (m *DataManager) SetBlockSize(n int) error {
	for i, f := range m.fetchers {
		if f == nil {
			return errors.NewModelError("DataManager.SetBlockSize", "slot has no samples", errors.NewIndexError("DataManager.SetBlockSize", i, len(m.fetchers)))
		}
		if err := f.SetBlockSize(n); err != nil {
			return err
		}
	}
	return nil
}
