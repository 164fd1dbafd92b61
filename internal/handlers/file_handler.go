package handlers

import (
	"context"
	"fmt"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"GigSafe/internal/services"
)

const maxEvidenceSize = int64(10 * 1024 * 1024) // 10MB

// EvidenceStore keeps dispute evidence files. *services.CloudinaryService
// satisfies it.
type EvidenceStore interface {
	UploadFile(ctx context.Context, file *multipart.FileHeader, folder string) (*services.UploadResult, error)
	DeleteFile(ctx context.Context, publicID string) error
}

type FileHandler struct {
	evidence EvidenceStore
	log      *zap.Logger
}

func NewFileHandler(evidence EvidenceStore, log *zap.Logger) *FileHandler {
	return &FileHandler{evidence: evidence, log: orNop(log)}
}

// UploadEvidence stores one evidence file and returns its URL for a later
// dispute
func (h *FileHandler) UploadEvidence(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file provided",
		})
	}

	result, err := uploadEvidence(c, h.evidence, file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "File uploaded successfully",
		"file": fiber.Map{
			"url":           result.SecureURL,
			"public_id":     result.PublicID,
			"format":        result.Format,
			"resource_type": result.ResourceType,
			"size_bytes":    result.Bytes,
		},
	})
}

func uploadEvidence(c *fiber.Ctx, store EvidenceStore, file *multipart.FileHeader) (*services.UploadResult, error) {
	if store == nil {
		return nil, fmt.Errorf("file uploads are not configured")
	}
	if file.Size > maxEvidenceSize {
		return nil, fmt.Errorf("File too large. Maximum size is %dMB", maxEvidenceSize/(1024*1024))
	}
	result, err := store.UploadFile(c.UserContext(), file, services.EvidenceFolder)
	if err != nil {
		return nil, fmt.Errorf("Failed to upload file: %v", err)
	}
	return result, nil
}
