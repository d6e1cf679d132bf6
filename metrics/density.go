// Package metrics は推定した密度モデルを既知の参照密度と比較する指標を提供します。
// カーネル指数型分布族のモデルは正規化されていない対数密度なので、
// 加法定数に依存しない指標を中心に揃えています。
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/kexpfam/pkg/errors"
)

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	a, b, err := pair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)
	return floats.Dot(diff, diff) / float64(len(diff)), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// ExplainedVarianceScore は 1 - Var(yTrue - yPred) / Var(yTrue) を計算する。
// yPred に定数を足しても値は変わらないので、正規化定数が未知の対数密度の比較に使える。
func ExplainedVarianceScore(yTrue, yPred *mat.VecDense) (float64, error) {
	a, b, err := pair("ExplainedVarianceScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)

	_, varTrue := stat.PopMeanVariance(a, nil)
	if varTrue == 0 {
		return 0, errors.Newf("ExplainedVarianceScore: no variance in yTrue")
	}
	_, varDiff := stat.PopMeanVariance(diff, nil)
	return 1 - varDiff/varTrue, nil
}

// FisherDivergence は ½ mean_i ‖trueScore_i - fittedScore_i‖² を計算する。
// 各行が1点の対数密度の勾配（スコア）。スコアマッチングが最小化する量の標本推定。
func FisherDivergence(trueScore, fittedScore mat.Matrix) (float64, error) {
	r, c := trueScore.Dims()
	if r == 0 || c == 0 {
		return 0, errors.NewValueError("FisherDivergence", "empty matrix")
	}
	rp, cp := fittedScore.Dims()
	if rp != r {
		return 0, errors.NewDimensionError("FisherDivergence", r, rp, 0)
	}
	if cp != c {
		return 0, errors.NewDimensionError("FisherDivergence", c, cp, 1)
	}

	var diff mat.Dense
	diff.Sub(trueScore, fittedScore)
	if err := errors.CheckMatrix("FisherDivergence", &diff); err != nil {
		return 0, err
	}
	norm := mat.Norm(&diff, 2)
	return 0.5 * norm * norm / float64(r), nil
}

func pair(op string, yTrue, yPred *mat.VecDense) ([]float64, []float64, error) {
	if yTrue == nil || yPred == nil || yTrue.IsEmpty() {
		return nil, nil, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return nil, nil, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return mat.Col(nil, 0, yTrue), mat.Col(nil, 0, yPred), nil
}
