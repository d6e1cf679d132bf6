// Package kernel provides the kernel adapters consumed by the density
// estimators. An adapter evaluates a kernel between a left-hand point set
// (the basis, usually the training data) and a right-hand point set (the
// evaluation points), and may cache pairwise statistics in Precompute.
package kernel

import "gonum.org/v1/gonum/mat"

// Adapter is the contract an estimator relies on. Point sets hold one point
// per row. Adapters do not invalidate themselves: after changing either side
// the owner must call Precompute.
type Adapter interface {
	SetLHS(X *mat.Dense)
	SetRHS(Y *mat.Dense)
	Precompute() error
}

// Differentiable is an Adapter that also exposes kernel values and
// derivatives with respect to the right-hand point.
type Differentiable interface {
	Adapter

	// NumLHS and NumRHS return the number of points on each side.
	NumLHS() int
	NumRHS() int

	// Kernel returns k(x_a, y_b).
	Kernel(a, b int) float64

	// GradRHS writes ∇_y k(x_a, y) at y = y_b into dst and returns it.
	// A nil or wrongly sized dst is replaced by a new slice.
	GradRHS(a, b int, dst []float64) []float64

	// HessianDiagRHS writes the diagonal of ∇²_y k(x_a, y) at y = y_b.
	HessianDiagRHS(a, b int, dst []float64) []float64
}
