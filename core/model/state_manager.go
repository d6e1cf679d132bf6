// Package model provides state management and the shared interfaces for
// density estimators.
package model

import (
	"sync"

	"github.com/YuminosukeSato/kexpfam/pkg/errors"
)

// StateManager tracks whether an estimator holds fitted coefficients and the
// problem shape they were fitted for. Safe for concurrent readers.
type StateManager struct {
	mu     sync.RWMutex
	fitted bool

	nDimensions int
	nPoints     int
	systemSize  int
}

// NewStateManager creates a new StateManager instance.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// SetFitted marks the model as fitted for a linear system of the given size.
func (s *StateManager) SetFitted(systemSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = true
	s.systemSize = systemSize
}

// Reset clears the fitted state but keeps the problem dimensions.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = false
	s.systemSize = 0
}

// SetDimensions records the training set shape.
func (s *StateManager) SetDimensions(nDimensions, nPoints int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nDimensions = nDimensions
	s.nPoints = nPoints
}

// GetDimensions returns the training set shape.
func (s *StateManager) GetDimensions() (nDimensions, nPoints int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nDimensions, s.nPoints
}

// SystemSize returns the dimension of the last solved linear system, or 0.
func (s *StateManager) SystemSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemSize
}

// RequireFitted returns a NotFittedError naming model and method if the
// model has not been fitted.
func (s *StateManager) RequireFitted(modelName, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(modelName, method)
	}
	return nil
}

// ModelState is a snapshot of a StateManager, for debugging output.
type ModelState struct {
	Fitted      bool `json:"fitted"`
	NDimensions int  `json:"n_dimensions,omitempty"`
	NPoints     int  `json:"n_points,omitempty"`
	SystemSize  int  `json:"system_size,omitempty"`
}

// GetState returns the current state as a ModelState struct.
func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelState{
		Fitted:      s.fitted,
		NDimensions: s.nDimensions,
		NPoints:     s.nPoints,
		SystemSize:  s.systemSize,
	}
}
