package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/onboard-agent/backend/internal/rag"
	"github.com/onboard-agent/backend/internal/vector/milvus"
	"github.com/onboard-agent/backend/pkg/logger"
)

// DocumentHandler manages the indexed corpus: pre-chunked segments go in,
// documents and their cached artifacts come out. Chunking and fetching
// happen upstream; this surface only embeds and indexes.
type DocumentHandler struct {
	index *milvus.Client
	gen   rag.Generator
	cache *rag.TieredCache
}

func NewDocumentHandler(index *milvus.Client, gen rag.Generator, cache *rag.TieredCache) *DocumentHandler {
	return &DocumentHandler{index: index, gen: gen, cache: cache}
}

type indexDocumentRequest struct {
	DocumentID string   `json:"document_id"`
	Department string   `json:"department"`
	DocType    string   `json:"doc_type"`
	Source     string   `json:"source"`
	Segments   []string `json:"segments"`
}

func (h *DocumentHandler) IndexDocument(c *fiber.Ctx) error {
	var req indexDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.DocumentID == "" || len(req.Segments) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "document_id and segments are required",
		})
	}
	if req.Department == "" {
		req.Department = "general"
	}

	vectors, err := h.gen.Embed(c.Context(), req.Segments)
	if err != nil {
		logger.Error("Failed to embed segments",
			zap.String("document_id", req.DocumentID),
			zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to embed segments",
		})
	}
	if len(vectors) != len(req.Segments) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Embedding service returned a partial result",
		})
	}

	now := time.Now().UTC()
	records := make([]milvus.SegmentRecord, len(req.Segments))
	for i, content := range req.Segments {
		records[i] = milvus.SegmentRecord{
			ChunkID:    uuid.New().String(),
			Embedding:  vectors[i],
			Content:    content,
			DocumentID: req.DocumentID,
			Department: req.Department,
			DocType:    req.DocType,
			Source:     req.Source,
			IndexedAt:  now,
		}
	}

	if err := h.index.Insert(c.Context(), records); err != nil {
		logger.Error("Failed to index segments",
			zap.String("document_id", req.DocumentID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to index segments",
		})
	}

	h.cache.SetDocumentMetadata(c.Context(), req.DocumentID, map[string]string{
		"department": req.Department,
		"doc_type":   req.DocType,
		"source":     req.Source,
		"indexed_at": now.Format(time.RFC3339),
	})
	// Stale result sets must not outlive a corpus change.
	h.cache.InvalidateSearch(c.Context(), "")

	logger.Info("Document indexed",
		zap.String("document_id", req.DocumentID),
		zap.Int("segments", len(records)))

	return c.JSON(fiber.Map{
		"document_id": req.DocumentID,
		"segments":    len(records),
	})
}

func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	documentID := c.Params("id")
	if documentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Document id is required",
		})
	}

	if meta, ok := h.cache.GetDocumentMetadata(c.Context(), documentID); ok {
		return c.JSON(fiber.Map{
			"document_id": documentID,
			"metadata":    meta,
		})
	}

	segments, err := h.index.Scan(c.Context(), map[string][]string{"document_id": {documentID}}, 1)
	if err != nil {
		logger.Error("Failed to look up document",
			zap.String("document_id", documentID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to look up document",
		})
	}
	if len(segments) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}

	meta := segments[0].Metadata
	h.cache.SetDocumentMetadata(c.Context(), documentID, meta)

	return c.JSON(fiber.Map{
		"document_id": documentID,
		"metadata":    meta,
	})
}

func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	documentID := c.Params("id")
	if documentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Document id is required",
		})
	}

	if err := h.index.Delete(c.Context(), map[string]string{"document_id": documentID}); err != nil {
		logger.Error("Failed to delete document",
			zap.String("document_id", documentID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	h.cache.InvalidateDocument(c.Context(), documentID)
	h.cache.InvalidateSearch(c.Context(), "")

	logger.Info("Document deleted", zap.String("document_id", documentID))

	return c.JSON(fiber.Map{
		"document_id": documentID,
		"status":      "deleted",
	})
}
