package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/streamproc/internal/helpers"
	"github.com/smazurov/streamproc/internal/procs"
	"github.com/smazurov/streamproc/internal/systemd"
)

// mapLaunchError maps supervisor errors to HTTP errors
func mapLaunchError(err error) error {
	switch {
	case errors.Is(err, procs.ErrEmptyCommand), errors.Is(err, procs.ErrTooManyArgs):
		return huma.Error400BadRequest(err.Error(), err)
	case errors.Is(err, procs.ErrExecFailed):
		return huma.Error422UnprocessableEntity(err.Error(), err)
	case errors.Is(err, procs.ErrResourceExhausted), errors.Is(err, procs.ErrClosed):
		return huma.Error503ServiceUnavailable(err.Error(), err)
	default:
		return huma.Error500InternalServerError("internal server error", err)
	}
}

// mapHelperError maps helper service errors to HTTP errors
func mapHelperError(err error) error {
	var helperErr *helpers.HelperError
	if !errors.As(err, &helperErr) {
		return huma.Error500InternalServerError("internal server error", err)
	}
	switch helperErr.Code {
	case helpers.ErrCodeNotFound:
		return huma.Error404NotFound(helperErr.Message, err)
	case helpers.ErrCodeExists:
		return huma.Error409Conflict(helperErr.Message, err)
	case helpers.ErrCodeInvalidParams:
		return huma.Error400BadRequest(helperErr.Message, err)
	case helpers.ErrCodeLaunchError:
		return mapLaunchError(helperErr.Cause)
	default:
		return huma.Error500InternalServerError(helperErr.Message, err)
	}
}

func mapSystemdError(err error) error {
	if errors.Is(err, systemd.ErrUnitNotAllowed) {
		return huma.Error404NotFound(err.Error(), err)
	}
	return huma.Error502BadGateway("systemd request failed", err)
}
