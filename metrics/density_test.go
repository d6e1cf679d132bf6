package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/kexpfam/pkg/errors"
)

func TestMSE(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   *mat.VecDense
		yPred   *mat.VecDense
		want    float64
		wantErr bool
	}{
		{
			name:  "perfect prediction",
			yTrue: mat.NewVecDense(5, []float64{1, 2, 3, 4, 5}),
			yPred: mat.NewVecDense(5, []float64{1, 2, 3, 4, 5}),
			want:  0,
		},
		{
			name:  "simple case",
			yTrue: mat.NewVecDense(4, []float64{1, 2, 3, 4}),
			yPred: mat.NewVecDense(4, []float64{1.5, 2.5, 2.5, 3.5}),
			want:  0.25,
		},
		{
			name:  "larger errors",
			yTrue: mat.NewVecDense(3, []float64{10, 20, 30}),
			yPred: mat.NewVecDense(3, []float64{12, 18, 33}),
			want:  17.0 / 3.0,
		},
		{
			name:    "dimension mismatch",
			yTrue:   mat.NewVecDense(3, []float64{1, 2, 3}),
			yPred:   mat.NewVecDense(2, []float64{1, 2}),
			wantErr: true,
		},
		{
			name:    "empty vectors",
			yTrue:   &mat.VecDense{},
			yPred:   &mat.VecDense{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MSE(tt.yTrue, tt.yPred)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-10)

			rmse, err := RMSE(tt.yTrue, tt.yPred)
			require.NoError(t, err)
			assert.InDelta(t, math.Sqrt(tt.want), rmse, 1e-10)
		})
	}
}

func TestExplainedVarianceScore_IgnoresConstantShift(t *testing.T) {
	yTrue := mat.NewVecDense(5, []float64{-4.5, -2, -0.5, 0, -0.5})
	shifted := mat.NewVecDense(5, nil)
	shifted.AddVec(yTrue, mat.NewVecDense(5, []float64{7, 7, 7, 7, 7}))

	score, err := ExplainedVarianceScore(yTrue, shifted)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-12)

	mse, err := MSE(yTrue, shifted)
	require.NoError(t, err)
	assert.InDelta(t, 49.0, mse, 1e-12)

	flat := mat.NewVecDense(5, []float64{1, 1, 1, 1, 1})
	score, err = ExplainedVarianceScore(yTrue, flat)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-12)

	_, err = ExplainedVarianceScore(flat, yTrue)
	assert.Error(t, err)
}

func TestFisherDivergence(t *testing.T) {
	trueScore := mat.NewDense(2, 2, []float64{
		1, 0,
		0, 1,
	})
	fitted := mat.NewDense(2, 2, []float64{
		0, 0,
		0, 3,
	})

	// ½ · (1 + 4) / 2
	got, err := FisherDivergence(trueScore, fitted)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, got, 1e-12)

	got, err = FisherDivergence(trueScore, trueScore)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	_, err = FisherDivergence(trueScore, mat.NewDense(2, 3, nil))
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 1, dimErr.Axis)

	_, err = FisherDivergence(trueScore, mat.NewDense(3, 2, nil))
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 0, dimErr.Axis)

	_, err = FisherDivergence(trueScore, mat.NewDense(2, 2, []float64{math.NaN(), 0, 0, 0}))
	var nie *errors.NumericalInstabilityError
	assert.True(t, errors.As(err, &nie))
}
