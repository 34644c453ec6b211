package fiberauth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler maps go-errors codes and fiber errors to JSON responses.
// Internal failures never leak their message.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status, body := errorResponse(err)
	return c.Status(status).JSON(body)
}

// NewErrorHandler is ErrorHandler that also logs 5xx responses, with the
// error metadata when there is any.
func NewErrorHandler(logger auth.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = auth.NopLogger()
	}
	return func(c *fiber.Ctx, err error) error {
		status, body := errorResponse(err)
		if status >= fiber.StatusInternalServerError {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) && len(richErr.Metadata) > 0 {
				logger.Error("%s %s failed: %v details=%s", c.Method(), c.Path(), err, print.MaybePrettyJSON(richErr.Metadata))
			} else {
				logger.Error("%s %s failed: %v", c.Method(), c.Path(), err)
			}
		}
		return c.Status(status).JSON(body)
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return fiber.StatusUnprocessableEntity, ErrorResponse{
			Error:   "VALIDATION_FAILED",
			Message: validationErr.Error(),
			Details: validationErr.Fields,
		}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, ErrorResponse{
			Error:   "HTTP_ERROR",
			Message: fiberErr.Message,
		}
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		status := richErr.Code
		if status < 400 || status > 599 {
			status = fiber.StatusInternalServerError
		}
		if status >= 500 {
			return status, ErrorResponse{
				Error:   textCode(richErr, "INTERNAL"),
				Message: "internal error",
			}
		}
		return status, ErrorResponse{
			Error:   textCode(richErr, "ERROR"),
			Message: richErr.Message,
		}
	}

	return fiber.StatusInternalServerError, ErrorResponse{
		Error:   "INTERNAL",
		Message: "internal error",
	}
}

func textCode(err *goerrors.Error, fallback string) string {
	if err.TextCode != "" {
		return err.TextCode
	}
	return fallback
}
