// Package prompt composes the system instructions handed to the
// completion service. Pure string assembly, no I/O.
package prompt

import (
	"fmt"
	"strings"

	"github.com/atlas-gmao/backend/internal/analysis"
	"github.com/atlas-gmao/backend/internal/retrieval"
)

// EquipmentInfo is the identity header of the assembled prompt.
type EquipmentInfo struct {
	Name     string
	Category string
	Level    string
}

// Input carries everything the assembler needs. Equipment.Name and
// Analysis are required; the rest is optional.
type Input struct {
	Equipment        EquipmentInfo
	Analysis         *analysis.QueryAnalysis
	Results          []retrieval.Result
	HierarchySummary string
}

const contextDelimiter = "====="

var intentInstructions = map[analysis.Intent]string{
	analysis.IntentTroubleshooting: `Diagnostic methodology:
1. List the possible causes ordered by probability, most likely first.
2. For each cause, give the check to perform, in sequence.
3. For each confirmed cause, give the corrective action.
4. Note the impact on connected equipment (upstream and downstream).`,
	analysis.IntentMaintenance: `Maintenance methodology:
1. State the maintenance interval and the conditions that trigger it.
2. List required tools, consumables and spare parts before the steps.
3. Give the operations in execution order with expected durations.
4. End with the verification points confirming the work is done.`,
	analysis.IntentInstallation: `Installation methodology:
1. List prerequisites: space, supplies, fixings, required qualifications.
2. Give the mounting and connection steps in order.
3. Describe the commissioning sequence and initial settings.
4. End with the acceptance checks before handover.`,
	analysis.IntentParts: `Parts methodology:
1. Identify each part with its exact reference from the documentation.
2. Give compatible alternatives only when the documentation lists them.
3. Mention quantity per equipment and recommended stock level if known.
4. Never invent part references; say when a reference is not in the context.`,
	analysis.IntentSpecs: `Specifications methodology:
1. Give the requested characteristics with units.
2. Distinguish nominal values from limit values.
3. Cite the document section or plate the value comes from when available.`,
	analysis.IntentProcedure: `Procedure methodology:
1. State the goal and the expected end state.
2. Give numbered steps, one action per step.
3. Flag the steps that require a second person or a supervisor.`,
	analysis.IntentGeneral: `Answer directly and factually. Prefer information from the provided
context over general knowledge, and say which one you used.`,
}

var formatTemplates = map[analysis.Format]string{
	analysis.FormatDiagnostic: `Structure the answer exactly as:
"Causes probables" — numbered list, most probable first.
"Vérifications" — one check per cause, in the same order.
"Actions correctives" — the fix for each confirmed cause.
"Impact système" — consequences for connected equipment.`,
	analysis.FormatSteps: `Structure the answer exactly as:
"Préparation" — prerequisites and tools.
"Étapes" — numbered actions, one per line.
"Contrôle final" — how to verify the result.`,
	analysis.FormatList: `Answer as a flat bulleted list, one fact per line, with units. No
introduction paragraph.`,
	analysis.FormatTable: `Answer as a markdown table. For parts: columns Référence, Désignation,
Quantité, Remarques. Add a line below the table for anything that does
not fit the columns.`,
	analysis.FormatExplanation: `Answer in short paragraphs: first the direct answer, then the
explanation, then any caveats.`,
}

const safetyBlock = `Safety obligations — include in the answer:
- Required PPE for the described work.
- Electrical, mechanical, thermal or chemical hazards involved.
- Lockout/tagout: remind to isolate and tag energy sources before work.`

const partsListBlock = `Parts obligation: end the answer with a "Pièces nécessaires" section
listing every part referenced in the answer, with references from the
context when available.`

const languagePolicy = `Language policy: answer in French by default. If the question is in
another language — including Moroccan darija in Arabic or Latin script —
answer in that language and register.`

const noContextNotice = `No technical context was found for this equipment. Say so explicitly
at the start of the answer, then answer from general knowledge, clearly
marked as such.`

const emergencyPreamble = `EMERGENCY: Start the answer with the immediate action to take, before
any structure or explanation. Securing people and equipment comes first.`

// Assemble builds the system prompt for the completion service.
// Missing equipment name or analysis is a precondition violation.
func Assemble(in Input) (string, error) {
	if strings.TrimSpace(in.Equipment.Name) == "" {
		return "", fmt.Errorf("assemble: missing equipment name")
	}
	if in.Analysis == nil {
		return "", fmt.Errorf("assemble: missing query analysis")
	}

	var b strings.Builder

	b.WriteString("You are a technical support assistant for industrial equipment.\n\n")

	if in.Analysis.Urgency == analysis.UrgencyEmergency {
		b.WriteString(emergencyPreamble)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Equipment: %s", in.Equipment.Name)
	if in.Equipment.Category != "" {
		fmt.Fprintf(&b, " (category: %s)", in.Equipment.Category)
	}
	if in.Equipment.Level != "" {
		fmt.Fprintf(&b, " [level: %s]", in.Equipment.Level)
	}
	b.WriteString("\n")

	if in.HierarchySummary != "" {
		b.WriteString(in.HierarchySummary)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	instruction, ok := intentInstructions[in.Analysis.Intent]
	if !ok {
		instruction = intentInstructions[analysis.IntentGeneral]
	}
	b.WriteString(instruction)
	b.WriteString("\n\n")

	template, ok := formatTemplates[in.Analysis.ResponseStrategy.Format]
	if !ok {
		template = formatTemplates[analysis.FormatExplanation]
	}
	b.WriteString(template)
	b.WriteString("\n\n")

	if in.Analysis.ResponseStrategy.SafetyWarning {
		b.WriteString(safetyBlock)
		b.WriteString("\n\n")
	}
	if in.Analysis.ResponseStrategy.PartsList {
		b.WriteString(partsListBlock)
		b.WriteString("\n\n")
	}

	b.WriteString(languagePolicy)
	b.WriteString("\n\n")

	if len(in.Results) == 0 {
		b.WriteString(noContextNotice)
		b.WriteString("\n")
	} else {
		b.WriteString("Technical context (use only this for factual claims):\n")
		b.WriteString(contextDelimiter)
		b.WriteString("\n")
		b.WriteString(RenderContext(in.Results))
		b.WriteString(contextDelimiter)
		b.WriteString("\n")
	}

	return b.String(), nil
}

// RenderContext flattens the merged results into one context string,
// one numbered block per result with its origin and locator.
func RenderContext(results []retrieval.Result) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] (%s, %s", i+1, r.SourceType, r.OriginEquipment)
		if r.PageReference != "" {
			fmt.Fprintf(&b, ", %s", r.PageReference)
		}
		fmt.Fprintf(&b, ", score %.2f)\n%s\n\n", r.Similarity, strings.TrimSpace(r.Content))
	}
	return b.String()
}
