package serverutils

import (
	"errors"

	"clinic-chat-be/internal/pkg/logger"
	"clinic-chat-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

// publicError replaces the message of an internal failure while keeping the cause for logs.
type publicError struct {
	status  int
	message string
	cause   error
}

func (e *publicError) Error() string { return e.message + ": " + e.cause.Error() }
func (e *publicError) Unwrap() error { return e.cause }

// SendFailure keeps domain errors as they are and turns anything else into the
// retry hint shown to a sender whose message was not stored.
func SendFailure(err error) error {
	if err == nil || isClientError(err) {
		return err
	}
	return &publicError{status: fiber.StatusInternalServerError, message: "message not delivered, please retry", cause: err}
}

func isClientError(err error) bool {
	var fiberErr *fiber.Error
	var validationErr *ValidationError
	return errors.Is(err, service.ErrNotFound) ||
		errors.Is(err, service.ErrInvalidState) ||
		errors.Is(err, service.ErrInvalidInput) ||
		errors.As(err, &validationErr) ||
		errors.As(err, &fiberErr)
}

// StatusFor maps an error returned by a handler to the response status and message.
func StatusFor(err error) (int, string) {
	var public *publicError
	var fiberErr *fiber.Error
	var validationErr *ValidationError

	switch {
	case errors.As(err, &public):
		return public.status, public.message
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidState):
		return fiber.StatusConflict, err.Error()
	case errors.Is(err, service.ErrInvalidInput), errors.As(err, &validationErr):
		return fiber.StatusBadRequest, err.Error()
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		code, message := StatusFor(err)
		if code >= fiber.StatusInternalServerError {
			log.Error("HTTP", "Request failed", map[string]interface{}{
				"method": c.Method(),
				"path":   c.Path(),
				"error":  err.Error(),
			})
		}
		return c.Status(code).JSON(ErrorResponse(code, message))
	}
}
