package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-gmao/backend/internal/llm"
	"github.com/atlas-gmao/backend/internal/vector/milvus"
	"github.com/atlas-gmao/backend/pkg/logger"
)

// DocumentHandler indexes pre-extracted manual text. Upload and PDF
// extraction happen upstream; this endpoint receives chunked text.
type DocumentHandler struct {
	vectorDB  *milvus.Client
	llmClient *llm.Client
}

func NewDocumentHandler(vectorDB *milvus.Client, llmClient *llm.Client) *DocumentHandler {
	return &DocumentHandler{vectorDB: vectorDB, llmClient: llmClient}
}

func (h *DocumentHandler) IndexChunks(c *fiber.Ctx) error {
	var req struct {
		EquipmentID string `json:"equipment_id"`
		DocTitle    string `json:"doc_title"`
		Chunks      []struct {
			Text          string `json:"text"`
			PageReference string `json:"page_reference"`
		} `json:"chunks"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.EquipmentID == "" || len(req.Chunks) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "equipment_id and chunks are required",
		})
	}

	texts := make([]string, len(req.Chunks))
	for i, chunk := range req.Chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := h.llmClient.GenerateBatchEmbeddings(c.Context(), texts)
	if err != nil {
		logger.Error("Failed to embed chunks", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to generate embeddings",
		})
	}
	if len(embeddings) != len(req.Chunks) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": fmt.Sprintf("embedding count mismatch: %d != %d", len(embeddings), len(req.Chunks)),
		})
	}

	docChunks := make([]milvus.DocumentChunk, len(req.Chunks))
	now := time.Now()
	for i, chunk := range req.Chunks {
		docChunks[i] = milvus.DocumentChunk{
			ID:            uuid.New().String(),
			Embedding:     embeddings[i],
			Text:          chunk.Text,
			EquipmentID:   req.EquipmentID,
			DocTitle:      req.DocTitle,
			PageReference: chunk.PageReference,
			ChunkIndex:    i,
			Timestamp:     now,
		}
	}

	if err := h.vectorDB.Insert(c.Context(), docChunks); err != nil {
		logger.Error("Failed to index chunks", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to index chunks",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"indexed": len(docChunks),
	})
}
