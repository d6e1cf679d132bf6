// Package kexpfam implements kernel exponential-family density estimators.
//
// An estimator models an unnormalized log density f over R^D as a linear
// combination of kernel features centred on the training points and fits the
// coefficients by score matching, which needs no normalizing constant. Base
// holds the machinery shared by all variants: training and test point sets,
// the kernel adapter, the SVD least-squares solve, and the parallel
// aggregation of per-point quantities. A variant supplies the linear system
// and the per-point log density, gradient and Hessian diagonal.
//
// Point sets hold one point per row (N×D), matching gonum conventions.
//
// Example:
//
//	est, err := kexpfam.NewLiteGaussian(X, 1.0, 0.01)
//	if err != nil {
//	    return err
//	}
//	if err := est.Fit(); err != nil {
//	    return err
//	}
//	if err := est.SetTestData(Xtest); err != nil {
//	    return err
//	}
//	logp, err := est.LogPDF()
package kexpfam
