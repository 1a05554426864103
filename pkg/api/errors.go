package api

import "errors"

var (
	// ErrModeling marks defects in the process model detected at runtime.
	// Instances hitting one are moved to failed and never retried
	ErrModeling = errors.New("modeling error")

	// ErrEvaluation marks expression evaluator failures. Instances hitting
	// one are moved to failed and never retried
	ErrEvaluation = errors.New("evaluation error")

	ErrUnmatchedJoin  = modeling("join tokens do not share a parent")
	ErrMissingActor   = modeling("ready task has no eligible actor or user")
	ErrBadCardinality = modeling(
		"multi-instance cardinality must be a positive integer",
	)
	ErrNoTransition   = modeling("exclusive gateway has no matching transition")
	ErrUnhandledError = modeling("error raised without a matching boundary")
	ErrChildEnded     = modeling("child process ended without completing")
)

type modelingError struct {
	msg string
}

func modeling(msg string) error {
	return &modelingError{msg: msg}
}

func (e *modelingError) Error() string {
	return e.msg
}

func (e *modelingError) Unwrap() error {
	return ErrModeling
}

// IsModelingError reports whether err is, or wraps, a modeling error
func IsModelingError(err error) bool {
	return errors.Is(err, ErrModeling)
}

// IsEvaluationError reports whether err is, or wraps, an evaluation error
func IsEvaluationError(err error) bool {
	return errors.Is(err, ErrEvaluation)
}

// IsStepFailure reports whether err must move the instance to failed rather
// than be retried
func IsStepFailure(err error) bool {
	return IsModelingError(err) || IsEvaluationError(err)
}
