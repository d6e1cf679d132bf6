package stattest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/kexpfam/pkg/errors"
)

func sequence(rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = float64(i)
	}
	return mat.NewDense(rows, cols, data)
}

func collect(t *testing.T, f DataFetcher) []mat.Matrix {
	t.Helper()
	var blocks []mat.Matrix
	f.Start()
	for {
		b, ok := f.Next()
		if !ok {
			return blocks
		}
		blocks = append(blocks, b)
	}
}

func TestNewDataFetcher_Dense(t *testing.T) {
	X := sequence(7, 2)
	f := NewDataFetcher(X)

	assert.Same(t, X, f.Samples())
	assert.Equal(t, 7, f.NumSamples())

	// Default block is the whole set.
	blocks := collect(t, f)
	require.Len(t, blocks, 1)
	assert.True(t, mat.Equal(X, blocks[0]))

	require.NoError(t, f.SetBlockSize(3))
	blocks = collect(t, f)
	require.Len(t, blocks, 3)
	for i, want := range []int{3, 3, 1} {
		r, c := blocks[i].Dims()
		assert.Equal(t, want, r)
		assert.Equal(t, 2, c)
	}
	assert.Equal(t, X.At(6, 1), blocks[2].At(0, 1))

	// Dense blocks share storage with the samples.
	blocks[0].(*mat.Dense).Set(0, 0, 99)
	assert.Equal(t, 99.0, X.At(0, 0))
}

func TestNewDataFetcher_CopiesOtherMatrices(t *testing.T) {
	X := sequence(4, 3)
	f := NewDataFetcher(X.T())
	assert.Equal(t, 3, f.NumSamples())

	require.NoError(t, f.SetBlockSize(2))
	blocks := collect(t, f)
	require.Len(t, blocks, 2)
	assert.True(t, mat.Equal(blocks[0], mat.NewDense(2, 4, []float64{
		0, 3, 6, 9,
		1, 4, 7, 10,
	})))
	assert.Equal(t, 7.0, blocks[0].At(1, 2))
	assert.Equal(t, 11.0, blocks[1].At(0, 3))

	blocks[0].(*mat.Dense).Set(0, 0, 99)
	assert.Equal(t, 0.0, X.At(0, 0))
}

func TestDataFetcher_ResetAndStart(t *testing.T) {
	f := NewDataFetcher(sequence(5, 1))
	require.NoError(t, f.SetBlockSize(2))

	b, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, 0.0, b.At(0, 0))
	b, ok = f.Next()
	require.True(t, ok)
	assert.Equal(t, 2.0, b.At(0, 0))

	f.Start()
	b, ok = f.Next()
	require.True(t, ok)
	assert.Equal(t, 0.0, b.At(0, 0))

	f.Reset()
	assert.Len(t, collect(t, f), 1)

	err := f.SetBlockSize(6)
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestForEachBlock(t *testing.T) {
	X := sequence(10, 2)
	f := NewDataFetcher(X)
	require.NoError(t, f.SetBlockSize(4))

	var starts []int
	total := 0.0
	err := ForEachBlock(f, func(block mat.Matrix, startRow int) error {
		starts = append(starts, startRow)
		total += mat.Sum(block)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 8}, starts)
	assert.Equal(t, mat.Sum(X), total)

	boom := errors.New("stop")
	calls := 0
	err = ForEachBlock(f, func(mat.Matrix, int) error {
		calls++
		return boom
	})
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, calls)
}
