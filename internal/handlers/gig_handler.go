package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"GigSafe/internal/middleware"
	"GigSafe/internal/models"
	"GigSafe/internal/services"
)

type CreateGigRequest struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=5000"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
}

type ApplyToGigRequest struct {
	ProposedRate float64 `json:"proposed_rate" validate:"gte=0"`
	CoverNote    string  `json:"cover_note" validate:"max=2000"`
}

type UpdateApplicationStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted rejected withdrawn"`
}

type GigHandler struct {
	completion *services.CompletionService
	log        *zap.Logger
}

func NewGigHandler(completion *services.CompletionService, log *zap.Logger) *GigHandler {
	return &GigHandler{completion: completion, log: orNop(log)}
}

// CreateGig posts a new gig for the authenticated employer
func (h *GigHandler) CreateGig(c *fiber.Ctx) error {
	req := new(CreateGigRequest)
	if err := parseBody(c, req); err != nil {
		return badRequest(c, err)
	}

	gig, err := h.completion.CreateGig(c.UserContext(), middleware.UserID(c), req.Title, req.Description, req.Amount)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Gig created successfully",
		"gig":     gig,
	})
}

// ApplyToGig submits the authenticated worker's application
func (h *GigHandler) ApplyToGig(c *fiber.Ctx) error {
	req := new(ApplyToGigRequest)
	if err := parseBody(c, req); err != nil {
		return badRequest(c, err)
	}

	app, err := h.completion.ApplyToGig(c.UserContext(), paramID(c), middleware.UserID(c), req.ProposedRate, req.CoverNote)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":     "Application submitted successfully",
		"application": app,
	})
}

// UpdateApplicationStatus accepts, rejects or withdraws an application
func (h *GigHandler) UpdateApplicationStatus(c *fiber.Ctx) error {
	req := new(UpdateApplicationStatusRequest)
	if err := parseBody(c, req); err != nil {
		return badRequest(c, err)
	}

	app, err := h.completion.UpdateApplicationStatus(c.UserContext(), paramID(c), middleware.UserID(c), models.ApplicationStatus(req.Status))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"message":     "Application " + string(app.Status),
		"application": app,
	})
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
