package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeEmptyQuery(t *testing.T) {
	a := NewAnalyzer(ModeHeuristic, nil)

	_, err := a.Analyze(context.Background(), "   ", EquipmentContext{})
	assert.Error(t, err)
}

func TestAnalyzeTroubleshootingFrench(t *testing.T) {
	a := NewAnalyzer(ModeHeuristic, nil)

	qa, err := a.Analyze(context.Background(), "le moteur ne démarre pas", EquipmentContext{Name: "Convoyeur C3"})
	require.NoError(t, err)

	assert.Equal(t, IntentTroubleshooting, qa.Intent)
	assert.Equal(t, UrgencyEmergency, qa.Urgency)
	assert.Equal(t, ScopeComponent, qa.Scope)
	assert.Contains(t, qa.Entities.Components, "moteur")
	assert.NotEmpty(t, qa.Entities.Symptoms)

	assert.True(t, qa.SearchStrategy.Documents)
	assert.True(t, qa.SearchStrategy.Schematics)
	assert.True(t, qa.SearchStrategy.Dependencies)

	assert.Equal(t, FormatDiagnostic, qa.ResponseStrategy.Format)
	assert.True(t, qa.ResponseStrategy.SafetyWarning)
	assert.False(t, qa.ResponseStrategy.PartsList)
}

func TestAnalyzeTroubleshootingDarija(t *testing.T) {
	a := NewAnalyzer(ModeHeuristic, nil)

	qa, err := a.Analyze(context.Background(), "la pompe makhdamch mn lbare7", EquipmentContext{Name: "Pompe P-200"})
	require.NoError(t, err)

	assert.Equal(t, IntentTroubleshooting, qa.Intent)
	assert.Contains(t, qa.Entities.Components, "pompe")
	assert.True(t, qa.SearchStrategy.Dependencies)
}

func TestAnalyzeMaintenanceArabic(t *testing.T) {
	a := NewAnalyzer(ModeHeuristic, nil)

	qa, err := a.Analyze(context.Background(), "واش خاصنا صيانة للمضخة؟", EquipmentContext{Name: "Pompe P-200"})
	require.NoError(t, err)

	assert.Equal(t, IntentMaintenance, qa.Intent)
	assert.Equal(t, UrgencyPlanning, qa.Urgency)
	assert.Contains(t, qa.Entities.Components, "pompe")
	assert.Equal(t, FormatSteps, qa.ResponseStrategy.Format)
	assert.True(t, qa.ResponseStrategy.SafetyWarning)
	assert.True(t, qa.ResponseStrategy.PartsList)
	assert.False(t, qa.SearchStrategy.Dependencies)
}

func TestAnalyzeParts(t *testing.T) {
	a := NewAnalyzer(ModeHeuristic, nil)

	qa, err := a.Analyze(context.Background(), "quelle est la référence du filtre à huile", EquipmentContext{Name: "Compresseur GA-75"})
	require.NoError(t, err)

	assert.Equal(t, IntentParts, qa.Intent)
	assert.Equal(t, UrgencyInformation, qa.Urgency)
	assert.Contains(t, qa.Entities.Components, "filtre")
	assert.Equal(t, FormatTable, qa.ResponseStrategy.Format)
	assert.True(t, qa.ResponseStrategy.PartsList)
	assert.False(t, qa.ResponseStrategy.SafetyWarning)
	assert.True(t, qa.SearchStrategy.Schematics)
	assert.False(t, qa.SearchStrategy.Dependencies)
}

func TestAnalyzeGeneralFallback(t *testing.T) {
	a := NewAnalyzer(ModeHeuristic, nil)

	qa, err := a.Analyze(context.Background(), "bonjour", EquipmentContext{})
	require.NoError(t, err)

	assert.Equal(t, IntentGeneral, qa.Intent)
	assert.Equal(t, UrgencyInformation, qa.Urgency)
	assert.Equal(t, ScopeUnknown, qa.Scope)
	assert.Equal(t, FormatExplanation, qa.ResponseStrategy.Format)
	assert.InDelta(t, 0.4, qa.Confidence, 0.001)
	assert.True(t, qa.SearchStrategy.Documents)
}

func TestAnalyzeErrorCodes(t *testing.T) {
	a := NewAnalyzer(ModeHeuristic, nil)

	qa, err := a.Analyze(context.Background(), "le variateur affiche alarme F-723 puis f-723", EquipmentContext{Name: "Variateur V1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"F-723"}, qa.Entities.ErrorCodes)
	// Error codes force schematic search regardless of intent.
	assert.True(t, qa.SearchStrategy.Schematics)
}

func TestAnalyzeScopeLine(t *testing.T) {
	a := NewAnalyzer(ModeHeuristic, nil)

	qa, err := a.Analyze(context.Background(), "caractéristiques de la ligne d'embouteillage", EquipmentContext{Name: "Ligne 2"})
	require.NoError(t, err)

	assert.Equal(t, IntentSpecs, qa.Intent)
	assert.Equal(t, ScopeLine, qa.Scope)
	assert.Equal(t, FormatList, qa.ResponseStrategy.Format)
}

func TestAnalyzeEquipmentMentions(t *testing.T) {
	a := NewAnalyzer(ModeHeuristic, nil)

	eq := EquipmentContext{
		Name:     "Compresseur GA-75",
		Aliases:  []string{"grand compresseur"},
		Children: []string{"Sécheur D-20"},
	}
	qa, err := a.Analyze(context.Background(), "le grand compresseur et le sécheur d-20 sont en panne", eq)
	require.NoError(t, err)

	assert.Contains(t, qa.Entities.Equipment, "Compresseur GA-75")
	assert.Contains(t, qa.Entities.Equipment, "Sécheur D-20")
	assert.Len(t, qa.Entities.Equipment, 2)
}

func TestAnalyzeConfidenceGrowsWithHits(t *testing.T) {
	a := NewAnalyzer(ModeHeuristic, nil)

	one, err := a.Analyze(context.Background(), "il y a une fuite", EquipmentContext{})
	require.NoError(t, err)
	two, err := a.Analyze(context.Background(), "il y a une fuite et une panne", EquipmentContext{})
	require.NoError(t, err)

	assert.InDelta(t, 0.65, one.Confidence, 0.001)
	assert.Greater(t, two.Confidence, one.Confidence)
	assert.LessOrEqual(t, two.Confidence, 0.95)
}

func TestMatchPhraseWordBoundary(t *testing.T) {
	// ASCII phrases must not match inside longer words.
	assert.False(t, matchPhrase("le refroidissement marche", "do"))
	assert.True(t, matchPhrase("la panne du moteur", "panne"))
	// Non-ASCII phrases use containment so prefixed Arabic forms match.
	assert.True(t, matchPhrase("واش خاصنا الصيانه", "صيانه"))
}

func TestFormatForIntent(t *testing.T) {
	assert.Equal(t, FormatDiagnostic, FormatForIntent(IntentTroubleshooting))
	assert.Equal(t, FormatSteps, FormatForIntent(IntentProcedure))
	assert.Equal(t, FormatSteps, FormatForIntent(IntentInstallation))
	assert.Equal(t, FormatSteps, FormatForIntent(IntentMaintenance))
	assert.Equal(t, FormatTable, FormatForIntent(IntentParts))
	assert.Equal(t, FormatList, FormatForIntent(IntentSpecs))
	assert.Equal(t, FormatExplanation, FormatForIntent(IntentGeneral))
}
