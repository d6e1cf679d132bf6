package kexpfam

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/kexpfam/pkg/errors"
	"github.com/YuminosukeSato/kexpfam/pkg/log"
)

// recordingKernel is a kernel.Adapter that records what Base does to it.
type recordingKernel struct {
	lhs, rhs    *mat.Dense
	precomputes int
	failNext    error
}

func (k *recordingKernel) SetLHS(X *mat.Dense) { k.lhs = X }
func (k *recordingKernel) SetRHS(Y *mat.Dense) { k.rhs = Y }
func (k *recordingKernel) Precompute() error {
	k.precomputes++
	if err := k.failNext; err != nil {
		k.failNext = nil
		return err
	}
	return nil
}

// quadraticVariant models f(y) = -½ α ‖y‖² with a 1×1 system A = [1], b = [c].
type quadraticVariant struct {
	base *Base

	c            float64
	buildErr     error
	buildPanics  bool
	sawTrainData bool
}

func (q *quadraticVariant) BuildSystem() (*mat.Dense, *mat.VecDense, error) {
	q.sawTrainData = q.base.IsTestEqualsTrainData()
	if q.buildPanics {
		panic("index out of range")
	}
	if q.buildErr != nil {
		return nil, nil, q.buildErr
	}
	return mat.NewDense(1, 1, []float64{1}), mat.NewVecDense(1, []float64{q.c}), nil
}

func (q *quadraticVariant) alpha() float64 { return q.base.Coefficients().AtVec(0) }

func (q *quadraticVariant) LogPDFAt(i int) float64 {
	y, _ := q.base.RHSPoint(i)
	s := 0.0
	for _, v := range y {
		s += v * v
	}
	return -0.5 * q.alpha() * s
}

func (q *quadraticVariant) GradAt(i int) []float64 {
	y, _ := q.base.RHSPoint(i)
	g := make([]float64, len(y))
	for d, v := range y {
		g[d] = -q.alpha() * v
	}
	return g
}

func (q *quadraticVariant) HessianDiagAt(i int) []float64 {
	h := make([]float64, q.base.NumDimensions())
	for d := range h {
		h[d] = -q.alpha()
	}
	return h
}

func randomDense(rng *rand.Rand, n, d int) *mat.Dense {
	data := make([]float64, n*d)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(n, d, data)
}

func newQuadraticBase(t *testing.T, X *mat.Dense, opts ...Option) (*Base, *quadraticVariant, *recordingKernel, *log.TestLogger) {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	k := &recordingKernel{}
	q := &quadraticVariant{c: 2}
	b, err := NewBase(X, k, 0.1, q, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	q.base = b
	return b, q, k, logger
}

func TestNewBase_SetsUpKernelAndLogsProblemSize(t *testing.T) {
	X := randomDense(rand.New(rand.NewSource(1)), 7, 3)
	b, _, k, logger := newQuadraticBase(t, X)

	assert.Same(t, X, k.lhs)
	assert.Same(t, X, k.rhs)
	assert.Equal(t, 1, k.precomputes)

	assert.Equal(t, 3, b.NumDimensions())
	assert.Equal(t, 7, b.NumLHS())
	assert.Equal(t, 7, b.NumRHS())
	assert.Equal(t, 0.1, b.Lambda())
	assert.False(t, b.IsFitted())

	entries := logger.EntriesWithMessage("Problem size")
	require.Len(t, entries, 1)
	assert.Equal(t, 7.0, entries[0][log.PointsKey])
	assert.Equal(t, 3.0, entries[0][log.DimensionsKey])
	assert.Equal(t, "Base", entries[0][log.ModelNameKey])
}

func TestNewBase_Validation(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	q := &quadraticVariant{}
	k := &recordingKernel{}

	_, err := NewBase(&mat.Dense{}, k, 0.1, q)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	_, err = NewBase(nil, k, 0.1, q)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	_, err = NewBase(X, nil, 0.1, q)
	assert.True(t, errors.Is(err, errors.ErrNilKernel))

	_, err = NewBase(X, k, 0.1, nil)
	var vErr *errors.ValueError
	assert.True(t, errors.As(err, &vErr))

	for _, lambda := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err = NewBase(X, k, lambda, q)
		var valErr *errors.ValidationError
		assert.True(t, errors.As(err, &valErr), "lambda=%v", lambda)
	}

	boom := errors.New("precompute failed")
	_, err = NewBase(X, &recordingKernel{failNext: boom}, 0.1, q)
	assert.True(t, errors.Is(err, boom))
}

func TestBase_PointViews(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
	})
	b, _, _, _ := newQuadraticBase(t, X)

	for i := 0; i < 3; i++ {
		p, err := b.LHSPoint(i)
		require.NoError(t, err)
		assert.Equal(t, mat.Row(nil, i, X), p)
	}

	// A view, not a copy: writes are visible both ways.
	p, err := b.LHSPoint(1)
	require.NoError(t, err)
	p[0] = 42
	assert.Equal(t, 42.0, X.At(1, 0))
	X.Set(1, 1, -7)
	assert.Equal(t, -7.0, p[1])

	// Test set defaults to the training set, so rhs views alias it too.
	q, err := b.RHSPoint(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{42, -7}, q)

	for _, i := range []int{-1, 3, 100} {
		_, err := b.LHSPoint(i)
		var idxErr *errors.IndexError
		require.True(t, errors.As(err, &idxErr), "i=%d", i)
		assert.Equal(t, 3, idxErr.Len)
		assert.Equal(t, i, idxErr.Index)
	}

	require.NoError(t, b.SetTestPoint([]float64{0, 0}))
	_, err = b.RHSPoint(1)
	var idxErr *errors.IndexError
	assert.True(t, errors.As(err, &idxErr))
}

func TestBase_IsTestEqualsTrainData(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	b, _, k, _ := newQuadraticBase(t, X)

	assert.True(t, b.IsTestEqualsTrainData())

	// Equal values in different storage are not the training data.
	clone := mat.DenseCopyOf(X)
	require.NoError(t, b.SetTestData(clone))
	assert.False(t, b.IsTestEqualsTrainData())
	assert.Same(t, clone, k.rhs)

	require.NoError(t, b.ResetTestData())
	assert.True(t, b.IsTestEqualsTrainData())
	assert.Same(t, X, k.rhs)

	// Same storage, different shape.
	sub := X.Slice(0, 2, 0, 2).(*mat.Dense)
	require.NoError(t, b.SetTestData(sub))
	assert.False(t, b.IsTestEqualsTrainData())

	// A second header over the same storage and shape counts as identical.
	alias := mat.NewDense(3, 2, X.RawMatrix().Data)
	require.NoError(t, b.SetTestData(alias))
	assert.True(t, b.IsTestEqualsTrainData())
}

func TestBase_SetTestData(t *testing.T) {
	X := randomDense(rand.New(rand.NewSource(2)), 5, 3)
	b, _, k, _ := newQuadraticBase(t, X)
	before := k.precomputes

	Y := randomDense(rand.New(rand.NewSource(3)), 9, 3)
	require.NoError(t, b.SetTestData(Y))
	assert.Equal(t, 9, b.NumRHS())
	assert.Equal(t, before+1, k.precomputes)
	assert.Same(t, Y, k.rhs)
	assert.Same(t, X, k.lhs)

	err := b.SetTestData(mat.NewDense(4, 2, nil))
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)
	// The rejected set must not reach the kernel.
	assert.Same(t, Y, k.rhs)
	assert.Equal(t, 9, b.NumRHS())

	assert.True(t, errors.Is(b.SetTestData(nil), errors.ErrEmptyData))

	x := []float64{1, 2, 3}
	require.NoError(t, b.SetTestPoint(x))
	assert.Equal(t, 1, b.NumRHS())
	p, err := b.RHSPoint(0)
	require.NoError(t, err)
	assert.Same(t, &x[0], &p[0])

	assert.True(t, errors.As(b.SetTestPoint([]float64{1}), &dimErr))
}

func TestBase_SolveAndStore_Identity(t *testing.T) {
	X := randomDense(rand.New(rand.NewSource(4)), 4, 2)
	b, _, _, logger := newQuadraticBase(t, X)

	const n = 5
	A := mat.NewDiagDense(n, []float64{1, 1, 1, 1, 1})
	y := mat.NewVecDense(n, []float64{1, 1, 1, 1, 1})

	require.NoError(t, b.SolveAndStore(A, y))
	require.True(t, b.IsFitted())

	coef := b.Coefficients()
	require.Equal(t, n, coef.Len())
	for i := 0; i < n; i++ {
		assert.InDelta(t, 1.0, coef.AtVec(i), 1e-12)
	}

	s := b.Spectrum()
	assert.InDelta(t, 1.0, s.Min, 1e-12)
	assert.InDelta(t, 1.0, s.Max, 1e-12)
	assert.InDelta(t, 0.0, s.LogMin(), 1e-12)
	assert.InDelta(t, 0.0, s.LogMax(), 1e-12)

	entries := logger.EntriesWithMessage("Eigenspectrum range")
	require.Len(t, entries, 1)
	assert.InDelta(t, 1.0, entries[0][log.SpectrumMinKey], 1e-12)
	assert.InDelta(t, 1.0, entries[0][log.SpectrumMaxKey], 1e-12)
	assert.Equal(t, float64(n), entries[0][log.RankKey])
}

func TestBase_SolveAndStore_SingularIsNotAnError(t *testing.T) {
	X := randomDense(rand.New(rand.NewSource(5)), 4, 2)
	b, _, _, logger := newQuadraticBase(t, X)

	var warnings []error
	t.Cleanup(errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) }))

	A := mat.NewDense(2, 2, []float64{
		1, 1,
		1, 1,
	})
	y := mat.NewVecDense(2, []float64{2, 2})
	require.NoError(t, b.SolveAndStore(A, y))

	// Minimum-norm solution of x0 + x1 = 2.
	assert.InDelta(t, 1.0, b.Coefficients().AtVec(0), 1e-12)
	assert.InDelta(t, 1.0, b.Coefficients().AtVec(1), 1e-12)
	assert.InDelta(t, 0.0, b.Spectrum().Min, 1e-20)
	assert.InDelta(t, 4.0, b.Spectrum().Max, 1e-12)

	require.Len(t, warnings, 1)
	var icw *errors.IllConditionedWarning
	require.True(t, errors.As(warnings[0], &icw))
	assert.Equal(t, 1, icw.Rank)
	assert.Equal(t, 2, icw.Size)

	// 設定されたロガーにもWARNとして出力される
	logged := logger.EntriesWithMessage("Ill-conditioned system")
	require.Len(t, logged, 1)
	assert.Equal(t, "WARN", logged[0]["level"])
	assert.Equal(t, "Base", logged[0][log.ModelNameKey])
	assert.Equal(t, 1.0, logged[0][log.RankKey])
	assert.Equal(t, 2.0, logged[0][log.SystemSizeKey])
	logger.Clear()

	// The zero matrix has rank 0: coefficients are zero.
	require.NoError(t, b.SolveAndStore(mat.NewDense(3, 3, nil), mat.NewVecDense(3, []float64{1, 2, 3})))
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, b.Coefficients().AtVec(i))
	}
	assert.True(t, math.IsInf(b.Spectrum().LogMin(), -1))

	spectrum := logger.EntriesWithMessage("Eigenspectrum range")
	require.Len(t, spectrum, 1)
	assert.Equal(t, "-Inf", spectrum[0][log.LogSpectrumMinKey])
	assert.Equal(t, 0.0, spectrum[0][log.RankKey])
	assert.Len(t, logger.EntriesWithMessage("Ill-conditioned system"), 1)
}

func TestBase_SolveAndStore_LeastSquares(t *testing.T) {
	X := randomDense(rand.New(rand.NewSource(6)), 4, 2)
	b, _, _, _ := newQuadraticBase(t, X)

	// Overdetermined: fit a line through (0,1), (1,3), (2,5).
	A := mat.NewDense(3, 2, []float64{
		1, 0,
		1, 1,
		1, 2,
	})
	y := mat.NewVecDense(3, []float64{1, 3, 5})
	require.NoError(t, b.SolveAndStore(A, y))
	assert.Equal(t, 2, b.Coefficients().Len())
	assert.InDelta(t, 1.0, b.Coefficients().AtVec(0), 1e-10)
	assert.InDelta(t, 2.0, b.Coefficients().AtVec(1), 1e-10)
}

func TestBase_SolveAndStore_Errors(t *testing.T) {
	X := randomDense(rand.New(rand.NewSource(7)), 4, 2)
	b, _, _, _ := newQuadraticBase(t, X)

	err := b.SolveAndStore(mat.NewDense(2, 2, []float64{1, 0, 0, 1}), mat.NewVecDense(3, nil))
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 2, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Got)

	err = b.SolveAndStore(mat.NewDense(2, 2, []float64{1, math.NaN(), 0, 1}), mat.NewVecDense(2, nil))
	var nie *errors.NumericalInstabilityError
	assert.True(t, errors.As(err, &nie))

	err = b.SolveAndStore(mat.NewDense(1, 1, []float64{1}), mat.NewVecDense(1, []float64{math.Inf(1)}))
	assert.True(t, errors.As(err, &nie))

	var vErr *errors.ValueError
	assert.True(t, errors.As(b.SolveAndStore(nil, nil), &vErr))
	assert.False(t, b.IsFitted())
}

func TestBase_QueriesRequireFit(t *testing.T) {
	X := randomDense(rand.New(rand.NewSource(8)), 4, 2)
	b, _, _, _ := newQuadraticBase(t, X)

	var nf *errors.NotFittedError

	_, err := b.Objective()
	assert.True(t, errors.As(err, &nf))
	_, err = b.LogPDF()
	assert.True(t, errors.As(err, &nf))
	_, err = b.Grad()
	assert.True(t, errors.As(err, &nf))
	_, err = b.HessianDiag()
	assert.True(t, errors.As(err, &nf))
	assert.Equal(t, "HessianDiag", nf.Method)
}

func TestBase_FitAndQueryShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	X := randomDense(rng, 10, 3)
	b, q, _, logger := newQuadraticBase(t, X)

	require.NoError(t, b.Fit())
	assert.True(t, q.sawTrainData)
	assert.InDelta(t, q.c, b.Coefficients().AtVec(0), 1e-12)
	assert.True(t, logger.ContainsMessage("Building system"))
	require.Len(t, logger.EntriesWithMessage("Solving system"), 1)
	assert.Equal(t, 1.0, logger.EntriesWithMessage("Solving system")[0][log.SystemSizeKey])

	Y := randomDense(rng, 6, 3)
	require.NoError(t, b.SetTestData(Y))

	logp, err := b.LogPDF()
	require.NoError(t, err)
	assert.Equal(t, b.NumRHS(), logp.Len())

	grad, err := b.Grad()
	require.NoError(t, err)
	r, c := grad.Dims()
	assert.Equal(t, b.NumRHS(), r)
	assert.Equal(t, b.NumDimensions(), c)

	hess, err := b.HessianDiag()
	require.NoError(t, err)
	r, c = hess.Dims()
	assert.Equal(t, b.NumRHS(), r)
	assert.Equal(t, b.NumDimensions(), c)

	for i := 0; i < 6; i++ {
		y := mat.Row(nil, i, Y)
		assert.InDelta(t, -0.5*q.c*mat.Dot(mat.NewVecDense(3, y), mat.NewVecDense(3, y)), logp.AtVec(i), 1e-12)
		for d := 0; d < 3; d++ {
			assert.InDelta(t, -q.c*y[d], grad.At(i, d), 1e-12)
			assert.InDelta(t, -q.c, hess.At(i, d), 1e-12)
		}
	}

	// ½‖αy‖² - αD averaged over the test points.
	want := 0.0
	for i := 0; i < 6; i++ {
		for d := 0; d < 3; d++ {
			want += 0.5 * q.c * q.c * Y.At(i, d) * Y.At(i, d)
		}
		want -= q.c * 3
	}
	want /= 6
	obj, err := b.Objective()
	require.NoError(t, err)
	assert.InDelta(t, want, obj, 1e-12)
}

func TestBase_FitRestoresTestData(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	X := randomDense(rng, 8, 2)
	b, q, k, _ := newQuadraticBase(t, X)

	Y := randomDense(rng, 3, 2)
	require.NoError(t, b.SetTestData(Y))

	require.NoError(t, b.Fit())
	assert.True(t, q.sawTrainData, "system must be built on the training data")
	assert.False(t, b.IsTestEqualsTrainData())
	assert.Equal(t, 3, b.NumRHS())
	assert.Same(t, Y, k.rhs)
}

func TestBase_FitFailures(t *testing.T) {
	X := randomDense(rand.New(rand.NewSource(11)), 5, 2)
	b, q, _, _ := newQuadraticBase(t, X)

	boom := errors.New("boom")
	q.buildErr = boom
	err := b.Fit()
	assert.True(t, errors.Is(err, boom))
	assert.False(t, b.IsFitted())
	assert.Nil(t, b.Coefficients())

	q.buildErr = nil
	q.buildPanics = true
	err = b.Fit()
	var panicErr *errors.PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "Base.Fit", panicErr.Operation)

	q.buildPanics = false
	require.NoError(t, b.Fit())
	assert.True(t, b.IsFitted())
}

func TestBase_ObjectiveIndependentOfWorkers(t *testing.T) {
	X := randomDense(rand.New(rand.NewSource(12)), 1000, 4)

	single, _, _, _ := newQuadraticBase(t, X, WithWorkers(1))
	many, _, _, _ := newQuadraticBase(t, X, WithWorkers(8))
	require.NoError(t, single.Fit())
	require.NoError(t, many.Fit())

	a, err := single.Objective()
	require.NoError(t, err)
	c, err := many.Objective()
	require.NoError(t, err)
	assert.InEpsilon(t, a, c, 1e-12)
}

func TestBase_QueriesLogDiagnostics(t *testing.T) {
	X := randomDense(rand.New(rand.NewSource(12)), 10, 2)
	b, _, _, logger := newQuadraticBase(t, X, WithWorkers(3))
	require.NoError(t, b.Fit())
	assert.Equal(t, 3, b.Workers())

	fitted := logger.EntriesWithMessage("Fitted")
	require.Len(t, fitted, 1)
	assert.Equal(t, 10.0, fitted[0][log.PointsKey])
	assert.Equal(t, 1.0, fitted[0][log.SystemSizeKey])

	_, err := b.LogPDF()
	require.NoError(t, err)
	_, err = b.Grad()
	require.NoError(t, err)
	_, err = b.HessianDiag()
	require.NoError(t, err)
	_, err = b.Objective()
	require.NoError(t, err)

	entries := logger.EntriesWithMessage("Query evaluated")
	require.Len(t, entries, 4)
	var ops []interface{}
	for _, e := range entries {
		ops = append(ops, e[log.OperationKey])
		assert.Equal(t, 3.0, e[log.WorkersKey])
		assert.Equal(t, 10.0, e[log.TestPointsKey])
		assert.Contains(t, e, log.DurationMsKey)
	}
	assert.Equal(t, []interface{}{log.OperationLogPDF, log.OperationGrad, log.OperationHessianDiag, log.OperationObjective}, ops)
}
