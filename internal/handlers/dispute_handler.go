package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"GigSafe/internal/middleware"
	"GigSafe/internal/services"
)

type DisputeCompletionRequest struct {
	Reason      string `json:"reason" form:"reason" validate:"required"`
	EvidenceURL string `json:"evidence_url" form:"evidence_url" validate:"omitempty,url"`
}

type ResolveDisputeRequest struct {
	InFavorOf string `json:"in_favor_of" validate:"required,oneof=worker employer"`
	Notes     string `json:"notes" validate:"max=2000"`
}

type DisputeHandler struct {
	completion *services.CompletionService
	mediator   *services.DisputeMediator
	evidence   EvidenceStore
	log        *zap.Logger
}

func NewDisputeHandler(completion *services.CompletionService, mediator *services.DisputeMediator, evidence EvidenceStore, log *zap.Logger) *DisputeHandler {
	return &DisputeHandler{completion: completion, mediator: mediator, evidence: evidence, log: orNop(log)}
}

// DisputeCompletion lets the employer dispute a completion request. The body
// is JSON or a multipart form carrying an optional "evidence" file.
func (h *DisputeHandler) DisputeCompletion(c *fiber.Ctx) error {
	req := new(DisputeCompletionRequest)
	if err := parseBody(c, req); err != nil {
		return badRequest(c, err)
	}

	evidenceURL := req.EvidenceURL
	var uploadedID string
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		if file, err := c.FormFile("evidence"); err == nil {
			result, err := uploadEvidence(c, h.evidence, file)
			if err != nil {
				return badRequest(c, err)
			}
			evidenceURL, uploadedID = result.SecureURL, result.PublicID
		}
	}

	app, err := h.completion.DisputeCompletion(c.UserContext(), paramID(c), middleware.UserID(c), req.Reason, evidenceURL)
	if err != nil {
		if uploadedID != "" {
			if derr := h.evidence.DeleteFile(c.UserContext(), uploadedID); derr != nil {
				h.log.Warn("orphaned evidence file", zap.String("public_id", uploadedID), zap.Error(derr))
			}
		}
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"message":     "Completion disputed. Auto-release has been cancelled and an admin will review the dispute.",
		"application": app,
	})
}

// GetAllDisputes lists applications with an open dispute
func (h *DisputeHandler) GetAllDisputes(c *fiber.Ctx) error {
	disputes, err := h.mediator.GetAllDisputedApplications(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"disputes": disputes,
		"count":    len(disputes),
	})
}

// ResolveDispute settles a dispute for the worker or the employer
func (h *DisputeHandler) ResolveDispute(c *fiber.Ctx) error {
	req := new(ResolveDisputeRequest)
	if err := parseBody(c, req); err != nil {
		return badRequest(c, err)
	}

	var (
		res *services.DisputeResolution
		err error
	)
	adminID := middleware.UserID(c)
	if req.InFavorOf == "worker" {
		res, err = h.mediator.ResolveDisputeInFavorOfWorker(c.UserContext(), paramID(c), adminID, req.Notes)
	} else {
		res, err = h.mediator.ResolveDisputeInFavorOfEmployer(c.UserContext(), paramID(c), adminID, req.Notes)
	}
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"message":    res.Message,
		"resolution": res,
	})
}
