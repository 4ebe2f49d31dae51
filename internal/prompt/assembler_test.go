package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-gmao/backend/internal/analysis"
	"github.com/atlas-gmao/backend/internal/retrieval"
)

func diagnosticAnalysis() *analysis.QueryAnalysis {
	qa := analysis.DefaultAnalysis()
	qa.Intent = analysis.IntentTroubleshooting
	qa.ResponseStrategy.Format = analysis.FormatDiagnostic
	qa.ResponseStrategy.SafetyWarning = true
	return qa
}

func sampleResults() []retrieval.Result {
	return []retrieval.Result{
		{
			Content:         "Contrôler le contacteur KM1 avant toute intervention.",
			SourceType:      retrieval.SourceManualText,
			OriginEquipment: "Compresseur GA-75",
			PageReference:   "p. 42",
			Similarity:      0.91,
		},
		{
			Content:         "Schematic (electrical): circuit de puissance",
			SourceType:      retrieval.SourceSchematic,
			OriginEquipment: "Compresseur GA-75",
			Similarity:      0.7,
		},
	}
}

func TestAssemblePreconditions(t *testing.T) {
	_, err := Assemble(Input{Analysis: analysis.DefaultAnalysis()})
	assert.Error(t, err)

	_, err = Assemble(Input{Equipment: EquipmentInfo{Name: "Compresseur GA-75"}})
	assert.Error(t, err)
}

func TestAssembleDiagnostic(t *testing.T) {
	prompt, err := Assemble(Input{
		Equipment: EquipmentInfo{Name: "Compresseur GA-75", Category: "compresseur", Level: "equipment"},
		Analysis:  diagnosticAnalysis(),
		Results:   sampleResults(),
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Compresseur GA-75")
	assert.Contains(t, prompt, "category: compresseur")
	assert.Contains(t, prompt, "Diagnostic methodology")
	assert.Contains(t, prompt, "Causes probables")
	assert.Contains(t, prompt, "Safety obligations")
	assert.Contains(t, prompt, "Language policy")
	assert.Contains(t, prompt, "Contrôler le contacteur KM1")
	assert.NotContains(t, prompt, "No technical context was found")
	assert.NotContains(t, prompt, "Pièces nécessaires")
}

func TestAssembleEmergencyPreambleComesFirst(t *testing.T) {
	qa := diagnosticAnalysis()
	qa.Urgency = analysis.UrgencyEmergency

	prompt, err := Assemble(Input{
		Equipment: EquipmentInfo{Name: "Compresseur GA-75"},
		Analysis:  qa,
		Results:   sampleResults(),
	})
	require.NoError(t, err)

	preambleIdx := strings.Index(prompt, "EMERGENCY")
	equipmentIdx := strings.Index(prompt, "Equipment: Compresseur GA-75")
	require.True(t, preambleIdx >= 0 && equipmentIdx >= 0)
	assert.Less(t, preambleIdx, equipmentIdx)
}

func TestAssembleNoContextNotice(t *testing.T) {
	prompt, err := Assemble(Input{
		Equipment: EquipmentInfo{Name: "Compresseur GA-75"},
		Analysis:  analysis.DefaultAnalysis(),
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "No technical context was found")
	assert.NotContains(t, prompt, contextDelimiter)
}

func TestAssemblePartsBlock(t *testing.T) {
	qa := analysis.DefaultAnalysis()
	qa.Intent = analysis.IntentParts
	qa.ResponseStrategy.Format = analysis.FormatTable
	qa.ResponseStrategy.PartsList = true

	prompt, err := Assemble(Input{
		Equipment: EquipmentInfo{Name: "Compresseur GA-75"},
		Analysis:  qa,
		Results:   sampleResults(),
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Parts methodology")
	assert.Contains(t, prompt, "Référence, Désignation")
	assert.Contains(t, prompt, "Pièces nécessaires")
	assert.NotContains(t, prompt, "Safety obligations")
}

func TestAssembleUnknownFormatFallsBack(t *testing.T) {
	qa := analysis.DefaultAnalysis()
	qa.ResponseStrategy.Format = analysis.Format("poem")

	prompt, err := Assemble(Input{
		Equipment: EquipmentInfo{Name: "Compresseur GA-75"},
		Analysis:  qa,
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "short paragraphs")
}

func TestAssembleHierarchySummary(t *testing.T) {
	prompt, err := Assemble(Input{
		Equipment:        EquipmentInfo{Name: "Ligne 2"},
		Analysis:         analysis.DefaultAnalysis(),
		HierarchySummary: "Equipment under Ligne 2:\n  equipment: Compresseur GA-75\n",
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Equipment under Ligne 2")
}

func TestRenderContext(t *testing.T) {
	rendered := RenderContext(sampleResults())

	assert.Contains(t, rendered, "[1] (manual_text, Compresseur GA-75, p. 42, score 0.91)")
	assert.Contains(t, rendered, "[2] (schematic, Compresseur GA-75, score 0.70)")
	assert.Contains(t, rendered, "Contrôler le contacteur KM1 avant toute intervention.")

	assert.Empty(t, RenderContext(nil))
}
