package kernel

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/kexpfam/core/parallel"
	"github.com/YuminosukeSato/kexpfam/pkg/errors"
	"github.com/YuminosukeSato/kexpfam/pkg/log"
)

var _ Differentiable = (*Gaussian)(nil)

// Gaussian is the kernel k(x, y) = exp(-‖x - y‖² / σ).
//
// Precompute caches the full lhs × rhs kernel matrix. Without a cache (before
// the first Precompute, or after a side changed) values are computed on the
// fly from the points.
type Gaussian struct {
	sigma float64

	lhs *mat.Dense
	rhs *mat.Dense

	cache *mat.Dense

	workers int
	logger  log.Logger
}

// Option configures a Gaussian kernel.
type Option func(*Gaussian)

// WithWorkers sets the number of goroutines used by Precompute.
// Values <= 0 use one worker per CPU.
func WithWorkers(n int) Option {
	return func(g *Gaussian) {
		g.workers = n
	}
}

// WithLogger sets the logger used for precompute diagnostics.
func WithLogger(l log.Logger) Option {
	return func(g *Gaussian) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGaussian creates a Gaussian kernel with bandwidth sigma > 0.
func NewGaussian(sigma float64, opts ...Option) (*Gaussian, error) {
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return nil, errors.NewValidationError("sigma", "must be positive and finite", sigma)
	}
	g := &Gaussian{
		sigma:  sigma,
		logger: log.GetLoggerWithName("kernel"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Sigma returns the kernel bandwidth.
func (g *Gaussian) Sigma() float64 { return g.sigma }

// SetLHS sets the basis points and drops any cached values.
func (g *Gaussian) SetLHS(X *mat.Dense) {
	g.lhs = X
	g.cache = nil
}

// SetRHS sets the evaluation points and drops any cached values.
func (g *Gaussian) SetRHS(Y *mat.Dense) {
	g.rhs = Y
	g.cache = nil
}

// NumLHS returns the number of basis points.
func (g *Gaussian) NumLHS() int { return numRows(g.lhs) }

// NumRHS returns the number of evaluation points.
func (g *Gaussian) NumRHS() int { return numRows(g.rhs) }

func numRows(m *mat.Dense) int {
	if m == nil {
		return 0
	}
	r, _ := m.Dims()
	return r
}

// Precompute fills the kernel matrix for the current sides.
func (g *Gaussian) Precompute() error {
	if g.lhs == nil || g.rhs == nil {
		return errors.NewValueError("Gaussian.Precompute", "both lhs and rhs must be set")
	}
	nLHS, dLHS := g.lhs.Dims()
	nRHS, dRHS := g.rhs.Dims()
	if dLHS != dRHS {
		return errors.NewDimensionError("Gaussian.Precompute", dLHS, dRHS, 1)
	}

	cache := mat.NewDense(nLHS, nRHS, nil)
	parallel.ParallelizeN(g.workers, nLHS, func(start, end int) {
		for a := start; a < end; a++ {
			x := g.lhs.RawRowView(a)
			row := cache.RawRowView(a)
			for b := range row {
				row[b] = g.eval(x, g.rhs.RawRowView(b))
			}
		}
	})
	g.cache = cache

	g.logger.Debug("Kernel matrix precomputed",
		log.OperationKey, log.OperationPrecompute,
		log.PointsKey, nLHS,
		log.TestPointsKey, nRHS,
		log.BandwidthKey, g.sigma,
	)
	return nil
}

func (g *Gaussian) eval(x, y []float64) float64 {
	d := floats.Distance(x, y, 2)
	return math.Exp(-d * d / g.sigma)
}

// Kernel returns k(x_a, y_b).
func (g *Gaussian) Kernel(a, b int) float64 {
	if g.cache != nil {
		return g.cache.At(a, b)
	}
	return g.eval(g.lhs.RawRowView(a), g.rhs.RawRowView(b))
}

// GradRHS returns ∂k/∂y_d = (2/σ)(x_d - y_d) k(x, y).
func (g *Gaussian) GradRHS(a, b int, dst []float64) []float64 {
	x := g.lhs.RawRowView(a)
	y := g.rhs.RawRowView(b)
	dst = ensureLen(dst, len(x))

	floats.SubTo(dst, x, y)
	floats.Scale(2/g.sigma*g.Kernel(a, b), dst)
	return dst
}

// HessianDiagRHS returns ∂²k/∂y_d² = ((2/σ)²(x_d - y_d)² - 2/σ) k(x, y).
func (g *Gaussian) HessianDiagRHS(a, b int, dst []float64) []float64 {
	x := g.lhs.RawRowView(a)
	y := g.rhs.RawRowView(b)
	dst = ensureLen(dst, len(x))

	k := g.Kernel(a, b)
	c := 2 / g.sigma
	for d := range dst {
		diff := x[d] - y[d]
		dst[d] = (c*c*diff*diff - c) * k
	}
	return dst
}

func ensureLen(dst []float64, n int) []float64 {
	if len(dst) != n {
		return make([]float64, n)
	}
	return dst
}
