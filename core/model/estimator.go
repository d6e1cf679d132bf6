package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit() error
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
	InverseTransform(X mat.Matrix) (mat.Matrix, error)
}

// DensityEstimator is an unnormalized density model evaluated on a mutable
// test set. Training data is fixed at construction.
type DensityEstimator interface {
	Fitter

	// SetTestData replaces the points that queries are evaluated on.
	SetTestData(X *mat.Dense) error
	// ResetTestData evaluates queries on the training data again.
	ResetTestData() error

	// Objective returns the score-matching objective on the test set.
	Objective() (float64, error)
	// LogPDF returns the unnormalized log density at every test point.
	LogPDF() (*mat.VecDense, error)
	// Grad returns one gradient row per test point.
	Grad() (*mat.Dense, error)
	// HessianDiag returns one Hessian-diagonal row per test point.
	HessianDiag() (*mat.Dense, error)
}
