package cohere

import (
	"context"
	"errors"

	"github.com/bitop-dev/cohere/internal/chat"
	"github.com/bitop-dev/cohere/internal/conversation"
	"github.com/bitop-dev/cohere/internal/tools"
)

type (
	// Error is a transport or decode failure reported by the API client.
	Error           = chat.Error
	ValidationError = chat.ValidationError

	NoSuchToolError       = tools.NoSuchToolError
	InvalidToolInputError = tools.InvalidToolInputError
	ToolExecutionError    = tools.ToolExecutionError
)

// ErrMaxRoundTrips is returned when the model keeps requesting tools past
// Options.MaxToolRoundTrips.
var ErrMaxRoundTrips = conversation.ErrMaxRoundTrips

func IsRateLimited(err error) bool {
	var e *Error
	return errors.As(err, &e) && (e.Status == 429 || e.Code == "rate_limited")
}

func IsAuth(err error) bool {
	var e *Error
	return errors.As(err, &e) && (e.Status == 401 || e.Status == 403 || e.Code == "auth_error")
}

func IsTimeout(err error) bool {
	var e *Error
	if errors.As(err, &e) && e.Code == "timeout" {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func IsCanceled(err error) bool {
	var e *Error
	if errors.As(err, &e) && e.Code == "canceled" {
		return true
	}
	return errors.Is(err, context.Canceled)
}

func IsDecode(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == "decode_error"
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNoSuchTool(err error) bool       { return tools.IsNoSuchTool(err) }
func IsInvalidToolInput(err error) bool { return tools.IsInvalidToolInput(err) }
func IsToolExecution(err error) bool    { return tools.IsToolExecution(err) }

func IsMaxRoundTrips(err error) bool { return errors.Is(err, ErrMaxRoundTrips) }
