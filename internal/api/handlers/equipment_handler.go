package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-gmao/backend/internal/kg/neo4j"
	"github.com/atlas-gmao/backend/internal/storage/models"
	"github.com/atlas-gmao/backend/internal/storage/sqlite"
	"github.com/atlas-gmao/backend/pkg/logger"
)

// EquipmentHandler maintains equipment records, aliases, schematics and
// the dependency graph entries the retrieval pipeline reads.
type EquipmentHandler struct {
	db       *sqlite.Client
	kgClient *neo4j.Client
}

func NewEquipmentHandler(db *sqlite.Client, kgClient *neo4j.Client) *EquipmentHandler {
	return &EquipmentHandler{db: db, kgClient: kgClient}
}

func (h *EquipmentHandler) CreateEquipment(c *fiber.Ctx) error {
	var req struct {
		ID       string   `json:"id"`
		Name     string   `json:"name"`
		Category string   `json:"category"`
		Level    string   `json:"level"`
		ParentID string   `json:"parent_id"`
		Aliases  []string `json:"aliases"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name is required",
		})
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Level == "" {
		req.Level = models.LevelEquipment
	}

	err := h.db.InsertEquipment(&models.Equipment{
		ID:       req.ID,
		Name:     req.Name,
		Category: req.Category,
		Level:    req.Level,
		ParentID: req.ParentID,
	})
	if err != nil {
		logger.Error("Failed to insert equipment", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create equipment",
		})
	}

	for _, a := range req.Aliases {
		if err := h.db.InsertAlias(req.ID, a); err != nil {
			logger.Warn("Failed to insert alias",
				zap.String("equipment_id", req.ID),
				zap.String("alias", a),
				zap.Error(err),
			)
		}
	}

	// Mirror into the graph so hierarchy traversal sees the new node.
	if h.kgClient != nil {
		if err := h.kgClient.CreateEquipmentNode(c.Context(), req.ID, req.Name, req.Level, req.ParentID); err != nil {
			logger.Warn("Failed to sync equipment to graph", zap.Error(err))
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id": req.ID,
	})
}

func (h *EquipmentHandler) CreateDependency(c *fiber.Ctx) error {
	var req struct {
		SourceID         string `json:"source_id"`
		TargetID         string `json:"target_id"`
		RelationshipType string `json:"relationship_type"`
		Criticality      string `json:"criticality"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.SourceID == "" || req.TargetID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "source_id and target_id are required",
		})
	}
	if h.kgClient == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Dependency graph not configured",
		})
	}

	if err := h.kgClient.CreateDependency(c.Context(), req.SourceID, req.TargetID, req.RelationshipType, req.Criticality); err != nil {
		logger.Error("Failed to create dependency", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create dependency",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": "created",
	})
}

func (h *EquipmentHandler) CreateSchematic(c *fiber.Ctx) error {
	var req struct {
		EquipmentID        string                       `json:"equipment_id"`
		Type               string                       `json:"type"`
		Description        string                       `json:"description"`
		Components         []models.SchematicComponent  `json:"components"`
		Connections        []models.SchematicConnection `json:"connections"`
		DiagnosticSequence []string                     `json:"diagnostic_sequence"`
		PageReference      string                       `json:"page_reference"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.EquipmentID == "" || req.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "equipment_id and type are required",
		})
	}

	schematic := &models.Schematic{
		ID:                 uuid.New().String(),
		EquipmentID:        req.EquipmentID,
		Type:               req.Type,
		Description:        req.Description,
		Components:         req.Components,
		Connections:        req.Connections,
		DiagnosticSequence: req.DiagnosticSequence,
		PageReference:      req.PageReference,
	}

	if err := h.db.InsertSchematic(schematic); err != nil {
		logger.Error("Failed to insert schematic", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create schematic",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id": schematic.ID,
	})
}
