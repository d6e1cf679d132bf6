package kexpfam

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/kexpfam/core/model"
	"github.com/YuminosukeSato/kexpfam/core/parallel"
	"github.com/YuminosukeSato/kexpfam/kernel"
	"github.com/YuminosukeSato/kexpfam/pkg/errors"
	"github.com/YuminosukeSato/kexpfam/pkg/log"
)

// PointEvaluator evaluates the fitted model at test point i.
// Implementations are called concurrently for distinct i.
type PointEvaluator interface {
	// LogPDFAt returns the unnormalized log density.
	LogPDFAt(i int) float64
	// GradAt returns the gradient of the log density, length D.
	GradAt(i int) []float64
	// HessianDiagAt returns the diagonal of the Hessian of the log density, length D.
	HessianDiagAt(i int) []float64
}

// SystemBuilder assembles the linear system whose solution are the model
// coefficients. It is called with the test set equal to the training set.
type SystemBuilder interface {
	BuildSystem() (*mat.Dense, *mat.VecDense, error)
}

// SystemSizer is implemented by variants whose coefficient vector has a fixed
// length. SolveAndStore rejects solutions of any other length.
type SystemSizer interface {
	SystemSize() int
}

// Variant is a concrete density estimator plugged into Base.
type Variant interface {
	SystemBuilder
	PointEvaluator
}

// Spectrum is the range of squared singular values of the last solved
// system, reported as a conditioning diagnostic.
type Spectrum struct {
	Min float64
	Max float64
}

// LogMin returns log(Min); -Inf for a singular system.
func (s Spectrum) LogMin() float64 { return math.Log(s.Min) }

// LogMax returns log(Max).
func (s Spectrum) LogMax() float64 { return math.Log(s.Max) }

// Base holds training and test data, the kernel adapter and the fitted
// coefficients, and aggregates a Variant's per-point quantities over the
// test set.
//
// Base takes exclusive ownership of its kernel: the kernel's lhs and rhs
// always mirror the training and test sets, and nothing else may change them.
// Fit and the test-data setters must not run concurrently with other calls.
type Base struct {
	name string

	lhs *mat.Dense
	rhs *mat.Dense

	kernel  kernel.Adapter
	variant Variant
	lambda  float64

	alphaBeta *mat.VecDense
	spectrum  Spectrum
	state     *model.StateManager

	workers int
	logger  log.Logger
}

var _ model.DensityEstimator = (*Base)(nil)

// NewBase creates the shared estimator state for variant v. Both kernel
// sides are set to data and the kernel is precomputed.
func NewBase(data *mat.Dense, k kernel.Adapter, lambda float64, v Variant, opts ...Option) (*Base, error) {
	const op = "NewBase"

	if data == nil || data.IsEmpty() {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if k == nil {
		return nil, errors.NewModelError(op, "no kernel", errors.ErrNilKernel)
	}
	if v == nil {
		return nil, errors.NewValueError(op, "variant must not be nil")
	}
	if lambda < 0 || math.IsNaN(lambda) || math.IsInf(lambda, 0) {
		return nil, errors.NewValidationError("lambda", "must be non-negative and finite", lambda)
	}

	b := &Base{
		name:    "Base",
		lhs:     data,
		rhs:     data,
		kernel:  k,
		variant: v,
		lambda:  lambda,
		state:   model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = log.GetLoggerWithName("kexpfam")
	}
	b.logger = b.logger.With(log.ModelNameKey, b.name)

	n, d := data.Dims()
	b.state.SetDimensions(d, n)

	k.SetLHS(data)
	k.SetRHS(data)

	b.logger.Info("Problem size",
		log.PointsKey, n,
		log.DimensionsKey, d,
		log.RegularizationKey, lambda,
	)

	if err := k.Precompute(); err != nil {
		return nil, errors.Wrap(err, "precomputing kernel for training data")
	}
	return b, nil
}

// NumDimensions returns the dimension D of every point.
func (b *Base) NumDimensions() int {
	_, d := b.lhs.Dims()
	return d
}

// NumLHS returns the number of training points.
func (b *Base) NumLHS() int {
	n, _ := b.lhs.Dims()
	return n
}

// NumRHS returns the number of test points.
func (b *Base) NumRHS() int {
	m, _ := b.rhs.Dims()
	return m
}

// Lambda returns the regularization strength.
func (b *Base) Lambda() float64 { return b.lambda }

// Workers returns the number of goroutines parallel regions run on.
func (b *Base) Workers() int { return parallel.Workers(b.workers) }

// IsFitted reports whether coefficients are available.
func (b *Base) IsFitted() bool { return b.state.IsFitted() }

// Coefficients returns the solved coefficient vector, or nil before fitting.
// The vector is owned by the estimator and must not be modified.
func (b *Base) Coefficients() *mat.VecDense { return b.alphaBeta }

// Spectrum returns the eigenspectrum range of the last solved system.
func (b *Base) Spectrum() Spectrum { return b.spectrum }

// SetTestData makes X the set of points queries are evaluated on. X must
// have the training dimension. The kernel rhs is updated and precomputed.
func (b *Base) SetTestData(X *mat.Dense) error {
	const op = "SetTestData"

	if X == nil || X.IsEmpty() {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	m, d := X.Dims()
	if d != b.NumDimensions() {
		return errors.NewDimensionError(op, b.NumDimensions(), d, 1)
	}

	b.rhs = X
	b.kernel.SetRHS(X)
	if err := b.kernel.Precompute(); err != nil {
		return errors.Wrap(err, "precomputing kernel for test data")
	}

	b.logger.Debug("Test data set",
		log.OperationKey, log.OperationSetTestData,
		log.TestPointsKey, m,
	)
	return nil
}

// SetTestPoint evaluates queries on the single point x. The slice is wrapped,
// not copied.
func (b *Base) SetTestPoint(x []float64) error {
	if len(x) != b.NumDimensions() {
		return errors.NewDimensionError("SetTestPoint", b.NumDimensions(), len(x), 1)
	}
	return b.SetTestData(mat.NewDense(1, len(x), x))
}

// ResetTestData evaluates queries on the training data again.
func (b *Base) ResetTestData() error {
	return b.SetTestData(b.lhs)
}

// IsTestEqualsTrainData reports whether the test set is the training set:
// same backing storage and the same shape. Equal values in different
// storage do not count.
func (b *Base) IsTestEqualsTrainData() bool {
	return sameStorage(b.lhs, b.rhs)
}

func sameStorage(a, c *mat.Dense) bool {
	if a == c {
		return true
	}
	ra, rc := a.RawMatrix(), c.RawMatrix()
	if ra.Rows != rc.Rows || ra.Cols != rc.Cols || ra.Stride != rc.Stride {
		return false
	}
	if len(ra.Data) == 0 || len(rc.Data) == 0 {
		return false
	}
	return &ra.Data[0] == &rc.Data[0]
}

// LHSPoint returns a view of training point i. Writes through the view
// change the training data.
func (b *Base) LHSPoint(i int) ([]float64, error) {
	if i < 0 || i >= b.NumLHS() {
		return nil, errors.NewIndexError("LHSPoint", i, b.NumLHS())
	}
	return b.lhs.RawRowView(i), nil
}

// RHSPoint returns a view of test point i.
func (b *Base) RHSPoint(i int) ([]float64, error) {
	if i < 0 || i >= b.NumRHS() {
		return nil, errors.NewIndexError("RHSPoint", i, b.NumRHS())
	}
	return b.rhs.RawRowView(i), nil
}

// Fit builds the variant's linear system on the training data and solves
// it. If a different test set is active it is restored afterwards.
func (b *Base) Fit() (err error) {
	defer errors.Recover(&err, b.name+".Fit")

	b.state.Reset()
	b.alphaBeta = nil

	if !b.IsTestEqualsTrainData() {
		prev := b.rhs
		if err := b.ResetTestData(); err != nil {
			return err
		}
		defer func() {
			if rerr := b.SetTestData(prev); rerr != nil && err == nil {
				err = rerr
			}
		}()
	}

	b.logger.Info("Building system", log.OperationKey, log.OperationBuildSystem)
	A, rhs, err := b.variant.BuildSystem()
	if err != nil {
		return errors.Wrap(err, "building system")
	}
	if A == nil || rhs == nil {
		return errors.NewModelError(b.name+".Fit", "variant returned no system", nil)
	}

	b.logger.Info("Solving system", log.OperationKey, log.OperationFit, log.SystemSizeKey, rhs.Len())
	if err := b.SolveAndStore(A, rhs); err != nil {
		return err
	}

	st := b.state.GetState()
	b.logger.Info("Fitted",
		log.PointsKey, st.NPoints,
		log.DimensionsKey, st.NDimensions,
		log.SystemSizeKey, st.SystemSize,
	)
	return nil
}

// SolveAndStore solves A·x = y in the least-squares sense and stores x as the
// coefficients. Rank-deficient and ill-conditioned systems are solved anyway
// (minimum-norm solution) and only reported through a warning, both on the
// estimator's logger and through errors.Warn. Variants implementing
// SystemSizer only accept systems with that many unknowns.
func (b *Base) SolveAndStore(A mat.Matrix, y mat.Vector) error {
	const op = "SolveAndStore"

	if A == nil || y == nil {
		return errors.NewValueError(op, "system matrix and right-hand side must not be nil")
	}
	r, c := A.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError(op, "empty system", errors.ErrEmptyData)
	}
	if y.Len() != r {
		return errors.NewDimensionError(op, r, y.Len(), 0)
	}
	if s, ok := b.variant.(SystemSizer); ok && s.SystemSize() != c {
		return errors.NewDimensionError(op, s.SystemSize(), c, 1)
	}
	if err := errors.CheckMatrix(op, A); err != nil {
		return err
	}
	if err := errors.CheckNumericalStability(op, mat.Col(nil, 0, y), 0); err != nil {
		return err
	}

	b.logger.Info("Solving with SVD", log.OperationKey, log.OperationSolve, log.SystemSizeKey, c)

	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDThin); !ok {
		return errors.NewModelError(op, "SVD factorization failed", nil)
	}
	values := svd.Values(nil)

	eps := math.Nextafter(1, 2) - 1
	rank := svd.Rank(float64(max(r, c)) * eps)

	x := mat.NewVecDense(c, nil)
	if rank > 0 {
		svd.SolveVecTo(x, y, rank)
	}

	squared := make([]float64, len(values))
	floats.MulTo(squared, values, values)
	b.spectrum = Spectrum{Min: floats.Min(squared), Max: floats.Max(squared)}

	b.logger.Info("Eigenspectrum range",
		log.SpectrumMinKey, b.spectrum.Min,
		log.SpectrumMaxKey, b.spectrum.Max,
		log.LogSpectrumMinKey, b.spectrum.LogMin(),
		log.LogSpectrumMaxKey, b.spectrum.LogMax(),
		log.RankKey, rank,
	)

	if rank < len(values) {
		cond := math.Inf(1)
		if smallest := values[len(values)-1]; smallest > 0 {
			cond = values[0] / smallest
		}
		w := errors.NewIllConditionedWarning(b.name+"."+op, c, rank, cond)
		b.logger.Warn("Ill-conditioned system",
			log.OperationKey, log.OperationSolve,
			log.SystemSizeKey, c,
			log.RankKey, rank,
			"condition", cond,
			log.ErrorTypeKey, "IllConditionedWarning",
		)
		errors.Warn(w)
	}

	b.alphaBeta = x
	b.state.SetFitted(c)
	return nil
}

// Objective returns the score-matching objective of the fitted model on the
// test set: the mean over test points of ½‖∇f‖² plus the Hessian trace.
// The sum is reduced across workers, so results may differ in the last bits
// between worker counts.
func (b *Base) Objective() (float64, error) {
	if err := b.state.RequireFitted(b.name, "Objective"); err != nil {
		return 0, err
	}

	start := time.Now()
	m := b.NumRHS()
	total := parallel.SumReduce(b.workers, m, func(start, end int) float64 {
		partial := 0.0
		for i := start; i < end; i++ {
			g := b.variant.GradAt(i)
			partial += 0.5 * floats.Dot(g, g)
			partial += floats.Sum(b.variant.HessianDiagAt(i))
		}
		return partial
	})
	b.logQuery(log.OperationObjective, start)
	return total / float64(m), nil
}

// LogPDF returns the unnormalized log density at every test point.
func (b *Base) LogPDF() (*mat.VecDense, error) {
	if err := b.state.RequireFitted(b.name, "LogPDF"); err != nil {
		return nil, err
	}

	start := time.Now()
	m := b.NumRHS()
	result := mat.NewVecDense(m, nil)
	out := result.RawVector().Data
	parallel.ParallelizeWithThreshold(b.workers, m, serialQueryPoints, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = b.variant.LogPDFAt(i)
		}
	})
	b.logQuery(log.OperationLogPDF, start)
	return result, nil
}

// Grad returns an M×D matrix whose row i is the gradient at test point i.
// This is the transpose of the D×M column-per-point layout.
func (b *Base) Grad() (*mat.Dense, error) {
	if err := b.state.RequireFitted(b.name, "Grad"); err != nil {
		return nil, err
	}
	return b.perPointRows(log.OperationGrad, b.variant.GradAt), nil
}

// HessianDiag returns an M×D matrix whose row i is the Hessian diagonal at
// test point i.
func (b *Base) HessianDiag() (*mat.Dense, error) {
	if err := b.state.RequireFitted(b.name, "HessianDiag"); err != nil {
		return nil, err
	}
	return b.perPointRows(log.OperationHessianDiag, b.variant.HessianDiagAt), nil
}

// serialQueryPoints is the test-set size up to which queries run on the
// calling goroutine.
const serialQueryPoints = 4

// perPointRows fills one row per test point; each worker writes only its
// own rows.
func (b *Base) perPointRows(operation string, at func(i int) []float64) *mat.Dense {
	start := time.Now()
	m, d := b.NumRHS(), b.NumDimensions()
	result := mat.NewDense(m, d, nil)
	parallel.ParallelizeWithThreshold(b.workers, m, serialQueryPoints, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			copy(result.RawRowView(i), at(i))
		}
	})
	b.logQuery(operation, start)
	return result
}

func (b *Base) logQuery(operation string, start time.Time) {
	b.logger.Debug("Query evaluated",
		log.OperationKey, operation,
		log.TestPointsKey, b.NumRHS(),
		log.SystemSizeKey, b.state.SystemSize(),
		log.WorkersKey, b.Workers(),
		log.DurationMsKey, float64(time.Since(start).Microseconds())/1000,
	)
}
