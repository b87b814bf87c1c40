package helpers

import (
	"errors"
	"fmt"
)

// HelperError represents a domain-specific error.
type HelperError struct {
	Code    string
	Message string
	Cause   error
}

func (e *HelperError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *HelperError) Unwrap() error {
	return e.Cause
}

// Error codes.
const (
	ErrCodeNotFound      = "HELPER_NOT_FOUND"
	ErrCodeExists        = "HELPER_EXISTS"
	ErrCodeInvalidParams = "INVALID_PARAMS"
	ErrCodeConfigError   = "CONFIG_ERROR"
	ErrCodeLaunchError   = "LAUNCH_ERROR"
)

// NewHelperError creates a new helper error.
func NewHelperError(code, message string, cause error) *HelperError {
	return &HelperError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCode returns the code of a *HelperError in err's chain, or "".
func ErrorCode(err error) string {
	var he *HelperError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}
