package analysis

// Intent is the task category a question belongs to.
type Intent string

const (
	IntentTroubleshooting Intent = "troubleshooting"
	IntentMaintenance     Intent = "maintenance"
	IntentInstallation    Intent = "installation"
	IntentParts           Intent = "parts"
	IntentSpecs           Intent = "specs"
	IntentProcedure       Intent = "procedure"
	IntentGeneral         Intent = "general"
)

// Urgency classifies how soon the asker needs to act.
type Urgency string

const (
	UrgencyEmergency   Urgency = "emergency"
	UrgencyPlanning    Urgency = "planning"
	UrgencyInformation Urgency = "information"
)

// Scope is the hierarchy granularity the question targets.
type Scope string

const (
	ScopeComponent Scope = "component"
	ScopeEquipment Scope = "equipment"
	ScopeSubsystem Scope = "subsystem"
	ScopeLine      Scope = "line"
	ScopeSite      Scope = "site"
	ScopeUnknown   Scope = "unknown"
)

// Format is the target shape of the final answer.
type Format string

const (
	FormatSteps       Format = "steps"
	FormatList        Format = "list"
	FormatTable       Format = "table"
	FormatExplanation Format = "explanation"
	FormatDiagnostic  Format = "diagnostic"
)

type Entities struct {
	Equipment  []string `json:"equipment_mentioned"`
	Components []string `json:"components_mentioned"`
	ErrorCodes []string `json:"error_codes"`
	Symptoms   []string `json:"symptoms"`
}

type SearchStrategy struct {
	Documents    bool `json:"documents"`
	Schematics   bool `json:"schematics"`
	Dependencies bool `json:"dependencies"`
}

type ResponseStrategy struct {
	Format        Format `json:"format"`
	SafetyWarning bool   `json:"safety_warning"`
	PartsList     bool   `json:"parts_list"`
}

// QueryAnalysis is the classification of one user query. Created per
// request, immutable once produced, never persisted.
type QueryAnalysis struct {
	Intent           Intent           `json:"intent"`
	Urgency          Urgency          `json:"urgency"`
	Scope            Scope            `json:"scope"`
	Entities         Entities         `json:"entities"`
	SearchStrategy   SearchStrategy   `json:"search_strategy"`
	ResponseStrategy ResponseStrategy `json:"response_strategy"`
	Confidence       float64          `json:"confidence"`
	Reasoning        string           `json:"reasoning"`
}

// EquipmentContext is the static equipment knowledge handed to the
// analyzer alongside the raw query.
type EquipmentContext struct {
	Name     string
	Level    string
	Category string
	Children []string
	Aliases  []string
}

// FormatForIntent is the fixed intent → answer shape lookup.
func FormatForIntent(intent Intent) Format {
	switch intent {
	case IntentTroubleshooting:
		return FormatDiagnostic
	case IntentProcedure, IntentInstallation, IntentMaintenance:
		return FormatSteps
	case IntentParts:
		return FormatTable
	case IntentSpecs:
		return FormatList
	default:
		return FormatExplanation
	}
}

// DefaultAnalysis is the hard fallback used when deep analysis cannot be
// parsed or the completion service fails.
func DefaultAnalysis() *QueryAnalysis {
	return &QueryAnalysis{
		Intent:  IntentGeneral,
		Urgency: UrgencyInformation,
		Scope:   ScopeEquipment,
		Entities: Entities{
			Equipment:  []string{},
			Components: []string{},
			ErrorCodes: []string{},
			Symptoms:   []string{},
		},
		SearchStrategy: SearchStrategy{Documents: true},
		ResponseStrategy: ResponseStrategy{
			Format: FormatExplanation,
		},
		Confidence: 0.5,
		Reasoning:  "fallback analysis",
	}
}
