// Package kexpfam is a kernel exponential-family density estimation library
// for Go, with the data plumbing for kernel hypothesis tests.
//
// Densities are modelled as p(x) ∝ exp(f(x)) with f a combination of kernel
// functions centred on the training data. Coefficients are fitted by score
// matching, so the normalizing constant is never computed. Fitting reduces to
// one linear system, solved by SVD least squares so that rank-deficient
// systems still yield the minimum-norm solution.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/kexpfam/kexpfam"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    // One point per row
//	    X := mat.NewDense(6, 1, []float64{-1.2, -0.4, 0, 0.3, 0.9, 1.5})
//
//	    est, err := kexpfam.NewLiteGaussian(X, 1.0, 1e-3)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if err := est.Fit(); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    if err := est.SetTestPoint([]float64{0.1}); err != nil {
//	        log.Fatal(err)
//	    }
//	    logp, err := est.LogPDF()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println("log p(0.1) + const =", logp.AtVec(0))
//	}
//
// # Packages
//
//   - kexpfam: Base estimator and the Lite variant
//   - kernel: kernel adapters (Gaussian) with cached pairwise values and derivatives
//   - stattest: block-wise data fetchers, per-feature initialization, block MMD
//   - metrics: comparison of fitted models with reference densities
//   - preprocessing: StandardScaler
//   - config: YAML estimator and logging configuration
//   - core/model: fitted-state management and shared interfaces
//   - core/parallel: chunked parallel-for and sum reduction
//   - pkg/errors, pkg/log: typed errors, warnings and structured logging
//
// # Performance
//
// System assembly, kernel precomputation and every per-test-point query are
// split across all CPU cores by default. Use kexpfam.WithWorkers to bound the
// number of goroutines.
package kexpfam
