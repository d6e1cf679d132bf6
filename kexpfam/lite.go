package kexpfam

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/kexpfam/core/parallel"
	"github.com/YuminosukeSato/kexpfam/kernel"
	"github.com/YuminosukeSato/kexpfam/pkg/errors"
)

// Lite models the log density as f(y) = Σ_i α_i k(x_i, y), one coefficient
// per training point x_i.
//
// With G_a the D×N matrix of kernel gradients ∂k(x_i, x_a)/∂y_d and L_a the
// kernel Laplacians Σ_d ∂²k(x_i, x_a)/∂y_d², the regularized score-matching
// loss
//
//	J(α) = 1/N Σ_a (½‖G_a α‖² + L_a·α) + λ/2 ‖α‖²
//
// is minimized by (1/N Σ_a G_aᵀG_a + λI) α = -1/N Σ_a L_a.
type Lite struct {
	*Base

	kernel kernel.Differentiable
}

var (
	_ Variant     = (*Lite)(nil)
	_ SystemSizer = (*Lite)(nil)
)

// NewLite creates a Lite estimator on data (one point per row). The kernel
// is owned by the estimator from here on.
func NewLite(data *mat.Dense, k kernel.Differentiable, lambda float64, opts ...Option) (*Lite, error) {
	if k == nil {
		return nil, errors.NewModelError("NewLite", "no kernel", errors.ErrNilKernel)
	}

	l := &Lite{kernel: k}
	base, err := NewBase(data, k, lambda, l, append([]Option{WithModelName("Lite")}, opts...)...)
	if err != nil {
		return nil, err
	}
	l.Base = base
	return l, nil
}

// NewLiteGaussian creates a Lite estimator with a Gaussian kernel of
// bandwidth sigma. The kernel shares the estimator's worker count and logger.
func NewLiteGaussian(data *mat.Dense, sigma, lambda float64, opts ...Option) (*Lite, error) {
	var settings Base
	for _, opt := range opts {
		opt(&settings)
	}

	k, err := kernel.NewGaussian(sigma,
		kernel.WithWorkers(settings.workers),
		kernel.WithLogger(settings.logger),
	)
	if err != nil {
		return nil, err
	}
	return NewLite(data, k, lambda, opts...)
}

// BuildSystem assembles A and b from kernel derivatives at the training
// points. Base.Fit guarantees the kernel rhs is the training set.
func (l *Lite) BuildSystem() (*mat.Dense, *mat.VecDense, error) {
	const op = "Lite.BuildSystem"

	n := l.NumLHS()
	m := l.NumRHS()
	d := l.NumDimensions()

	// Row a*d+j of G holds ∂k(x_i, x_a)/∂y_j for every basis point i.
	G := mat.NewDense(m*d, n, nil)
	// Row a of lap holds the Laplacians L_a.
	lap := mat.NewDense(m, n, nil)

	err := parallel.ParallelizeErr(l.workers, m, func(start, end int) error {
		grad := make([]float64, d)
		hess := make([]float64, d)
		for a := start; a < end; a++ {
			lapRow := lap.RawRowView(a)
			for i := 0; i < n; i++ {
				grad = l.kernel.GradRHS(i, a, grad)
				hess = l.kernel.HessianDiagRHS(i, a, hess)
				for j := 0; j < d; j++ {
					G.Set(a*d+j, i, grad[j])
				}
				lapRow[i] = floats.Sum(hess)
			}

			if err := errors.CheckNumericalStability(op, lapRow, a); err != nil {
				return err
			}
			for j := 0; j < d; j++ {
				if err := errors.CheckNumericalStability(op, G.RawRowView(a*d+j), a); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	A := mat.NewDense(n, n, nil)
	A.Mul(G.T(), G)
	A.Scale(1/float64(m), A)
	for i := 0; i < n; i++ {
		A.Set(i, i, A.At(i, i)+l.lambda)
	}

	ones := make([]float64, m)
	floats.AddConst(1, ones)
	b := mat.NewVecDense(n, nil)
	b.MulVec(lap.T(), mat.NewVecDense(m, ones))
	b.ScaleVec(-1/float64(m), b)

	return A, b, nil
}

// SystemSize returns N: Lite has one coefficient per training point.
func (l *Lite) SystemSize() int { return l.NumLHS() }

func (l *Lite) alpha() []float64 {
	if l.alphaBeta == nil {
		return nil
	}
	return l.alphaBeta.RawVector().Data
}

// LogPDFAt returns f at test point i.
func (l *Lite) LogPDFAt(i int) float64 {
	s := 0.0
	for j, a := range l.alpha() {
		s += a * l.kernel.Kernel(j, i)
	}
	return s
}

// GradAt returns ∇f at test point i.
func (l *Lite) GradAt(i int) []float64 {
	d := l.NumDimensions()
	out := make([]float64, d)
	buf := make([]float64, d)
	for j, a := range l.alpha() {
		buf = l.kernel.GradRHS(j, i, buf)
		floats.AddScaled(out, a, buf)
	}
	return out
}

// HessianDiagAt returns the diagonal of ∇²f at test point i.
func (l *Lite) HessianDiagAt(i int) []float64 {
	d := l.NumDimensions()
	out := make([]float64, d)
	buf := make([]float64, d)
	for j, a := range l.alpha() {
		buf = l.kernel.HessianDiagRHS(j, i, buf)
		floats.AddScaled(out, a, buf)
	}
	return out
}
