package models

import "time"

// Hierarchy levels, from root to leaf.
const (
	LevelSite      = "site"
	LevelLine      = "line"
	LevelSubsystem = "subsystem"
	LevelEquipment = "equipment"
	LevelComponent = "component"
)

type Equipment struct {
	ID        string
	Name      string
	Category  string
	Level     string
	ParentID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EquipmentAlias struct {
	ID              int
	EquipmentID     string
	CanonicalName   string
	AliasText       string
	AliasNormalized string
}

type SchematicComponent struct {
	Ref   string `json:"ref"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type SchematicConnection struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

type Schematic struct {
	ID                 string
	EquipmentID        string
	Type               string
	Description        string
	Components         []SchematicComponent
	Connections        []SchematicConnection
	DiagnosticSequence []string
	PageReference      string
	CreatedAt          time.Time
}

type QueryRecord struct {
	ID            string
	UserID        string
	EquipmentID   string
	QueryText     string
	RewrittenText string
	Intent        string
	Urgency       string
	Response      string
	Confidence    float64
	ResultsCount  int
	LatencyMS     int
	CreatedAt     time.Time
}

type QuerySource struct {
	ID          int
	QueryID     string
	SourceType  string
	Equipment   string
	PageRef     string
	Similarity  float64
}

type Feedback struct {
	ID            int
	QueryID       string
	Helpful       bool
	IssueCategory string
	Comment       string
	CreatedAt     time.Time
}
