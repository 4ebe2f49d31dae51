package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/atlas-gmao/backend/pkg/logger"
)

const deepSystemPrompt = `You classify industrial-equipment support questions.
Return ONLY a JSON object with this exact shape, no prose, no markdown:
{
  "intent": "troubleshooting|maintenance|installation|parts|specs|procedure|general",
  "urgency": "emergency|planning|information",
  "scope": "component|equipment|subsystem|line|site|unknown",
  "entities": {
    "equipment_mentioned": [],
    "components_mentioned": [],
    "error_codes": [],
    "symptoms": []
  },
  "search_strategy": {"documents": true, "schematics": false, "dependencies": false},
  "response_strategy": {"format": "steps|list|table|explanation|diagnostic", "safety_warning": false, "parts_list": false},
  "confidence": 0.0,
  "reasoning": ""
}
Questions may be in French, Arabic, Moroccan darija (in Arabic or Latin script) or English.`

// analyzeDeep delegates classification to the completion service. Any
// service error or unparseable response degrades to DefaultAnalysis;
// deep analysis is best-effort by contract.
func (a *Analyzer) analyzeDeep(ctx context.Context, query string, equipment EquipmentContext) *QueryAnalysis {
	userPrompt := fmt.Sprintf(`Equipment: %s (level: %s, category: %s)
Sub-equipment: %s
Known aliases: %s

Question: %s`,
		equipment.Name, equipment.Level, equipment.Category,
		strings.Join(equipment.Children, ", "),
		strings.Join(equipment.Aliases, ", "),
		query,
	)

	raw, err := a.completer.CompleteJSON(ctx, deepSystemPrompt, userPrompt)
	if err != nil {
		logger.Warn("Deep analysis request failed, using fallback", zap.Error(err))
		return DefaultAnalysis()
	}

	qa, err := parseAnalysis(raw)
	if err != nil {
		logger.Warn("Deep analysis response unparseable, using fallback",
			zap.Error(err),
			zap.String("response", truncate(raw, 200)),
		)
		return DefaultAnalysis()
	}

	return qa
}

// parseAnalysis validates the untyped external response against the
// QueryAnalysis shape. Nothing beyond what is validated here is trusted.
func parseAnalysis(raw string) (*QueryAnalysis, error) {
	cleaned := stripCodeFence(raw)

	var qa QueryAnalysis
	if err := json.Unmarshal([]byte(cleaned), &qa); err != nil {
		return nil, fmt.Errorf("invalid analysis JSON: %w", err)
	}

	if !validIntent(qa.Intent) {
		return nil, fmt.Errorf("invalid intent %q", qa.Intent)
	}
	switch qa.Urgency {
	case UrgencyEmergency, UrgencyPlanning, UrgencyInformation:
	default:
		return nil, fmt.Errorf("invalid urgency %q", qa.Urgency)
	}
	switch qa.Scope {
	case ScopeComponent, ScopeEquipment, ScopeSubsystem, ScopeLine, ScopeSite, ScopeUnknown:
	default:
		return nil, fmt.Errorf("invalid scope %q", qa.Scope)
	}
	switch qa.ResponseStrategy.Format {
	case FormatSteps, FormatList, FormatTable, FormatExplanation, FormatDiagnostic:
	default:
		return nil, fmt.Errorf("invalid response format %q", qa.ResponseStrategy.Format)
	}
	if qa.Confidence < 0 || qa.Confidence > 1 {
		return nil, fmt.Errorf("confidence %f out of range", qa.Confidence)
	}

	if qa.Entities.Equipment == nil {
		qa.Entities.Equipment = []string{}
	}
	if qa.Entities.Components == nil {
		qa.Entities.Components = []string{}
	}
	if qa.Entities.ErrorCodes == nil {
		qa.Entities.ErrorCodes = []string{}
	}
	if qa.Entities.Symptoms == nil {
		qa.Entities.Symptoms = []string{}
	}
	qa.SearchStrategy.Documents = true

	return &qa, nil
}

func validIntent(intent Intent) bool {
	switch intent {
	case IntentTroubleshooting, IntentMaintenance, IntentInstallation,
		IntentParts, IntentSpecs, IntentProcedure, IntentGeneral:
		return true
	}
	return false
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
