package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"GigSafe/internal/services"
)

var validate = validator.New()

// statusFor maps a service error to its HTTP status. The second result marks
// errors the client may retry unchanged.
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest, false
	case errors.Is(err, services.ErrUnauthorized):
		return fiber.StatusForbidden, false
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound, false
	case errors.Is(err, services.ErrInvalidState):
		return fiber.StatusBadRequest, false
	case errors.Is(err, services.ErrAlreadyRequested),
		errors.Is(err, services.ErrAlreadySelected),
		errors.Is(err, services.ErrAlreadyResolved),
		errors.Is(err, services.ErrNoActiveDispute):
		return fiber.StatusConflict, false
	case errors.Is(err, services.ErrInsufficientBalance):
		return fiber.StatusUnprocessableEntity, false
	case errors.Is(err, services.ErrTransactionConflict):
		return fiber.StatusServiceUnavailable, true
	case errors.Is(err, services.ErrProvider):
		return fiber.StatusBadGateway, true
	default:
		return fiber.StatusInternalServerError, false
	}
}

func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status, retryable := statusFor(err)
	fields := []zap.Field{
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Error(err),
	}

	message := err.Error()
	switch {
	case status == fiber.StatusInternalServerError:
		log.Error("request failed", fields...)
		message = "Internal server error"
	case status == fiber.StatusUnprocessableEntity:
		// Pending balance drift needs an operator.
		log.Error("ledger invariant violated", fields...)
	case retryable:
		log.Warn("request failed, retryable", fields...)
	default:
		log.Debug("request rejected", fields...)
	}

	body := fiber.Map{"error": message}
	if retryable {
		body["retryable"] = true
	}
	return c.Status(status).JSON(body)
}

// parseBody decodes the request body into req and validates its tags.
func parseBody(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return errors.New("Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return errors.New(validationMessage(err))
	}
	return nil
}

// paramID copies the :id route param out of fiber's reusable request buffer
// so services may keep it.
func paramID(c *fiber.Ctx) string {
	return utils.CopyString(c.Params("id"))
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
