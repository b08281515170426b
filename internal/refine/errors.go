package refine

import "fmt"

// Error codes.
const (
	CodeResourceUnavailable = "RESOURCE_UNAVAILABLE"
	CodeInvalidInput        = "INVALID_INPUT"
	CodePredictionFailure   = "PREDICTION_FAILURE"
)

// Error is a refinement failure with a stable code. Two errors match under
// errors.Is when their codes are equal.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrResourceUnavailable = &Error{Code: CodeResourceUnavailable, Message: "diagnostic resources are not loaded"}
	ErrInvalidInput        = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrPredictionFailure   = &Error{Code: CodePredictionFailure, Message: "classifier failed"}
)

func invalidInput(format string, args ...any) error {
	return &Error{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func predictionFailure(err error) error {
	return &Error{Code: CodePredictionFailure, Message: "classifier failed", Err: err}
}
