package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/atlas-gmao/backend/internal/storage/models"
	"github.com/atlas-gmao/backend/internal/textnorm"
	"github.com/atlas-gmao/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS equipment (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT,
		level TEXT NOT NULL DEFAULT 'equipment',
		parent_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_equipment_parent ON equipment(parent_id);
	CREATE INDEX IF NOT EXISTS idx_equipment_level ON equipment(level);

	CREATE TABLE IF NOT EXISTS equipment_aliases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		equipment_id TEXT NOT NULL,
		alias_text TEXT NOT NULL,
		alias_normalized TEXT NOT NULL,
		FOREIGN KEY (equipment_id) REFERENCES equipment(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_aliases_equipment ON equipment_aliases(equipment_id);
	CREATE INDEX IF NOT EXISTS idx_aliases_normalized ON equipment_aliases(alias_normalized);

	CREATE TABLE IF NOT EXISTS schematics (
		id TEXT PRIMARY KEY,
		equipment_id TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT,
		components TEXT,
		connections TEXT,
		diagnostic_sequence TEXT,
		page_reference TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (equipment_id) REFERENCES equipment(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_schematics_equipment ON schematics(equipment_id);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		equipment_id TEXT,
		query_text TEXT NOT NULL,
		rewritten_text TEXT,
		intent TEXT,
		urgency TEXT,
		response TEXT,
		confidence REAL,
		results_count INTEGER,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_user ON query_history(user_id);
	CREATE INDEX IF NOT EXISTS idx_query_equipment ON query_history(equipment_id);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);

	CREATE TABLE IF NOT EXISTS query_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		source_type TEXT NOT NULL,
		equipment TEXT,
		page_ref TEXT,
		similarity REAL,
		FOREIGN KEY (query_id) REFERENCES query_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sources_query ON query_sources(query_id);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		helpful INTEGER NOT NULL,
		issue_category TEXT,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (query_id) REFERENCES query_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_query ON feedback(query_id);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Database schema initialized")
	return nil
}

func (c *Client) GetEquipment(id string) (*models.Equipment, error) {
	row := c.db.QueryRow(`
		SELECT id, name, COALESCE(category, ''), level, COALESCE(parent_id, ''), created_at, updated_at
		FROM equipment WHERE id = ?`, id)

	var e models.Equipment
	var createdAt, updatedAt int64
	err := row.Scan(&e.ID, &e.Name, &e.Category, &e.Level, &e.ParentID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("equipment not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get equipment: %w", err)
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}

func (c *Client) InsertEquipment(e *models.Equipment) error {
	now := time.Now().Unix()
	_, err := c.db.Exec(`
		INSERT INTO equipment (id, name, category, level, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			level = excluded.level,
			parent_id = excluded.parent_id,
			updated_at = excluded.updated_at`,
		e.ID, e.Name, e.Category, e.Level, e.ParentID, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert equipment: %w", err)
	}
	return nil
}

// ListChildNames returns the names of direct children of an equipment
// node, for the analyzer's equipment context.
func (c *Client) ListChildNames(parentID string) ([]string, error) {
	rows, err := c.db.Query(`SELECT name FROM equipment WHERE parent_id = ? ORDER BY name`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan child name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// InsertAlias stores an alias with its precomputed normalized form.
func (c *Client) InsertAlias(equipmentID, aliasText string) error {
	_, err := c.db.Exec(`
		INSERT INTO equipment_aliases (equipment_id, alias_text, alias_normalized)
		VALUES (?, ?, ?)`,
		equipmentID, aliasText, textnorm.Normalize(aliasText))
	if err != nil {
		return fmt.Errorf("failed to insert alias: %w", err)
	}
	return nil
}

// ListAliases returns the full alias table joined with canonical names.
func (c *Client) ListAliases(ctx context.Context) ([]models.EquipmentAlias, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT a.id, a.equipment_id, e.name, a.alias_text, a.alias_normalized
		FROM equipment_aliases a
		JOIN equipment e ON e.id = a.equipment_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	defer rows.Close()

	var aliases []models.EquipmentAlias
	for rows.Next() {
		var a models.EquipmentAlias
		if err := rows.Scan(&a.ID, &a.EquipmentID, &a.CanonicalName, &a.AliasText, &a.AliasNormalized); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// ListAliasTexts returns alias surface forms for one equipment.
func (c *Client) ListAliasTexts(equipmentID string) ([]string, error) {
	rows, err := c.db.Query(`SELECT alias_text FROM equipment_aliases WHERE equipment_id = ?`, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alias texts: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan alias text: %w", err)
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

func (c *Client) InsertSchematic(s *models.Schematic) error {
	components, err := json.Marshal(s.Components)
	if err != nil {
		return fmt.Errorf("failed to marshal components: %w", err)
	}
	connections, err := json.Marshal(s.Connections)
	if err != nil {
		return fmt.Errorf("failed to marshal connections: %w", err)
	}
	diagnostic, err := json.Marshal(s.DiagnosticSequence)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostic sequence: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT INTO schematics (id, equipment_id, type, description, components, connections, diagnostic_sequence, page_reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.EquipmentID, s.Type, s.Description,
		string(components), string(connections), string(diagnostic),
		s.PageReference, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert schematic: %w", err)
	}
	return nil
}

func (c *Client) ListSchematics(ctx context.Context, equipmentID string) ([]models.Schematic, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, equipment_id, type, COALESCE(description, ''), COALESCE(components, '[]'),
		       COALESCE(connections, '[]'), COALESCE(diagnostic_sequence, '[]'),
		       COALESCE(page_reference, ''), created_at
		FROM schematics WHERE equipment_id = ?`, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schematics: %w", err)
	}
	defer rows.Close()

	var schematics []models.Schematic
	for rows.Next() {
		var s models.Schematic
		var components, connections, diagnostic string
		var createdAt int64
		if err := rows.Scan(&s.ID, &s.EquipmentID, &s.Type, &s.Description,
			&components, &connections, &diagnostic, &s.PageReference, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan schematic: %w", err)
		}
		if err := json.Unmarshal([]byte(components), &s.Components); err != nil {
			return nil, fmt.Errorf("failed to unmarshal components: %w", err)
		}
		if err := json.Unmarshal([]byte(connections), &s.Connections); err != nil {
			return nil, fmt.Errorf("failed to unmarshal connections: %w", err)
		}
		if err := json.Unmarshal([]byte(diagnostic), &s.DiagnosticSequence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diagnostic sequence: %w", err)
		}
		s.CreatedAt = time.Unix(createdAt, 0)
		schematics = append(schematics, s)
	}
	return schematics, rows.Err()
}

func (c *Client) InsertQueryRecord(r *models.QueryRecord) error {
	_, err := c.db.Exec(`
		INSERT INTO query_history (id, user_id, equipment_id, query_text, rewritten_text, intent, urgency, response, confidence, results_count, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.EquipmentID, r.QueryText, r.RewrittenText,
		r.Intent, r.Urgency, r.Response, r.Confidence, r.ResultsCount,
		r.LatencyMS, r.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}
	return nil
}

func (c *Client) InsertQuerySource(s *models.QuerySource) error {
	_, err := c.db.Exec(`
		INSERT INTO query_sources (query_id, source_type, equipment, page_ref, similarity)
		VALUES (?, ?, ?, ?, ?)`,
		s.QueryID, s.SourceType, s.Equipment, s.PageRef, s.Similarity)
	if err != nil {
		return fmt.Errorf("failed to insert query source: %w", err)
	}
	return nil
}

func (c *Client) InsertFeedback(f *models.Feedback) error {
	helpful := 0
	if f.Helpful {
		helpful = 1
	}
	_, err := c.db.Exec(`
		INSERT INTO feedback (query_id, helpful, issue_category, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.QueryID, helpful, f.IssueCategory, f.Comment, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

func (c *Client) GetQueryHistory(userID string, limit int) ([]models.QueryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.db.Query(`
		SELECT id, COALESCE(user_id, ''), COALESCE(equipment_id, ''), query_text,
		       COALESCE(rewritten_text, ''), COALESCE(intent, ''), COALESCE(urgency, ''),
		       COALESCE(response, ''), COALESCE(confidence, 0), COALESCE(results_count, 0),
		       COALESCE(latency_ms, 0), created_at
		FROM query_history WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.UserID, &r.EquipmentID, &r.QueryText,
			&r.RewrittenText, &r.Intent, &r.Urgency, &r.Response,
			&r.Confidence, &r.ResultsCount, &r.LatencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan query record: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}
	return records, rows.Err()
}
