// Package log defines standard attribute keys for estimator operations.
//
// Keys follow a hierarchical naming convention ("data.points",
// "system.size") so that log output can be filtered by category.
package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator variant.
	// Examples: "Lite", "Base"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which package emitted the record.
	// Examples: "kexpfam", "kernel", "stattest"
	ComponentKey = "ml.component"
)

// Standard operation values for OperationKey.
const (
	OperationFit           = "fit"
	OperationSolve         = "solve"
	OperationSetTestData   = "set_test_data"
	OperationObjective     = "objective"
	OperationLogPDF        = "log_pdf"
	OperationGrad          = "grad"
	OperationHessianDiag   = "hessian_diag"
	OperationPrecompute    = "precompute"
	OperationBuildSystem   = "build_system"
	OperationFetcherAssign = "fetcher_assign"
)

// Data shape
const (
	// PointsKey is the number of training (lhs) points.
	PointsKey = "data.points"

	// TestPointsKey is the number of test (rhs) points.
	TestPointsKey = "data.test_points"

	// DimensionsKey is the dimension of every point.
	DimensionsKey = "data.dimensions"

	// BlockSizeKey is the block size used by data fetchers.
	BlockSizeKey = "data.block_size"
)

// Linear system and conditioning diagnostics
const (
	// SystemSizeKey is the dimension of the linear system being solved.
	SystemSizeKey = "system.size"

	// RankKey is the numerical rank found by the SVD solver.
	RankKey = "system.rank"

	// SpectrumMinKey and SpectrumMaxKey are the smallest and largest squared
	// singular values of the system matrix.
	SpectrumMinKey = "spectrum.min"
	SpectrumMaxKey = "spectrum.max"

	// LogSpectrumMinKey and LogSpectrumMaxKey are their natural logarithms.
	LogSpectrumMinKey = "spectrum.log_min"
	LogSpectrumMaxKey = "spectrum.log_max"
)

// Hyperparameters and infrastructure
const (
	// RegularizationKey is the regularization strength lambda.
	RegularizationKey = "hyperparams.lambda"

	// BandwidthKey is the kernel bandwidth sigma.
	BandwidthKey = "hyperparams.sigma"

	// WorkersKey is the number of workers used by a parallel region.
	WorkersKey = "infra.workers"

	// DurationMsKey is the wall time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Error context
const (
	// ErrorTypeKey classifies an error or warning record.
	ErrorTypeKey = "error.type"

	// StacktraceKey holds the stack recorded by cockroachdb/errors.
	StacktraceKey = "error.stacktrace"
)
