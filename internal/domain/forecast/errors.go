package forecast

import "errors"

// Sentinel failure kinds raised by estimators. The orchestrator recovers from
// exactly these; anything else is treated as a programming error.
var (
	// ErrInsufficientHistory means the series is too short for the estimator.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrTrainingFailure means configuring or fitting a model failed.
	ErrTrainingFailure = errors.New("training failure")
	// ErrInferenceFailure means a fitted model could not produce a usable forecast.
	ErrInferenceFailure = errors.New("inference failure")
	// ErrEstimatorFailure means a heuristic estimator had nothing to work with.
	ErrEstimatorFailure = errors.New("estimator failure")
	// ErrInvalidModelConfig means a ModelConfig failed validation.
	ErrInvalidModelConfig = errors.New("invalid model config")
)
