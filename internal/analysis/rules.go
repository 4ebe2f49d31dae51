package analysis

import (
	"github.com/atlas-gmao/backend/internal/textnorm"
)

// The heuristic analyzer is a generic loop over the declarative tables
// below. Trigger phrases are written in their natural form per language
// partition (fr = French, ar = Arabic script, ary = Moroccan darija
// transliterations, en = English) and normalized once at package init so
// they compare against normalized query text.

type triggerRule struct {
	Language string
	Triggers []string
}

var intentRules = map[Intent][]triggerRule{
	IntentTroubleshooting: {
		{Language: "fr", Triggers: []string{
			"ne démarre pas", "ne fonctionne pas", "en panne", "panne",
			"problème", "défaut", "alarme", "erreur", "fuite", "bruit",
			"surchauffe", "vibration", "disjoncte", "bloqué", "grillé",
		}},
		{Language: "ar", Triggers: []string{
			"عطل", "مشكل", "خلل", "ما خدامش", "واقف", "محبوس", "طاحت",
		}},
		{Language: "ary", Triggers: []string{
			"makhdamch", "khasra", "maykhdamch", "wa9ef", "7absat",
		}},
		{Language: "en", Triggers: []string{
			"not working", "breakdown", "fault", "failure", "broken",
			"tripped", "leaking", "overheating", "won't start",
		}},
	},
	IntentMaintenance: {
		{Language: "fr", Triggers: []string{
			"entretien", "maintenance", "graissage", "lubrification",
			"vidange", "nettoyage", "révision", "préventif", "resserrage",
		}},
		{Language: "ar", Triggers: []string{"صيانة", "تشحيم", "تنظيف"}},
		{Language: "ary", Triggers: []string{"siyana", "syana"}},
		{Language: "en", Triggers: []string{
			"servicing", "lubrication", "grease", "preventive", "overhaul",
		}},
	},
	IntentInstallation: {
		{Language: "fr", Triggers: []string{
			"installer", "installation", "montage", "mise en service",
			"raccordement", "branchement", "câblage",
		}},
		{Language: "ar", Triggers: []string{"تركيب", "ركب"}},
		{Language: "ary", Triggers: []string{"rkeb", "mounta"}},
		{Language: "en", Triggers: []string{
			"install", "mounting", "commissioning", "wiring", "hookup",
		}},
	},
	IntentParts: {
		{Language: "fr", Triggers: []string{
			"référence", "pièce de rechange", "pièce détachée", "pièce",
			"commander", "fournisseur", "numéro de pièce",
		}},
		{Language: "ar", Triggers: []string{"قطعة", "قطع الغيار"}},
		{Language: "ary", Triggers: []string{"pyasa", "lpiece"}},
		{Language: "en", Triggers: []string{
			"spare part", "part number", "order", "supplier", "replacement part",
		}},
	},
	IntentSpecs: {
		{Language: "fr", Triggers: []string{
			"caractéristiques", "spécifications", "puissance", "tension",
			"débit", "capacité", "dimensions", "poids", "vitesse nominale",
		}},
		{Language: "ar", Triggers: []string{"مواصفات", "خصائص"}},
		{Language: "en", Triggers: []string{
			"specifications", "specs", "rating", "voltage", "capacity", "rpm",
		}},
	},
	IntentProcedure: {
		{Language: "fr", Triggers: []string{
			"comment", "procédure", "étapes", "mode opératoire", "marche à suivre",
		}},
		{Language: "ar", Triggers: []string{"كيف", "كيفاش", "طريقة"}},
		{Language: "ary", Triggers: []string{"kifach", "kifash"}},
		{Language: "en", Triggers: []string{
			"how to", "how do i", "steps", "procedure", "walkthrough",
		}},
	},
}

// intentPriority breaks scoring ties; more specific intents first.
var intentPriority = []Intent{
	IntentTroubleshooting,
	IntentParts,
	IntentInstallation,
	IntentMaintenance,
	IntentSpecs,
	IntentProcedure,
}

// Failure and breakdown vocabulary raises the urgency flag.
var emergencyTriggers = []triggerRule{
	{Language: "fr", Triggers: []string{
		"urgent", "urgence", "ne démarre pas", "en panne", "panne",
		"arrêt total", "arrêtée", "danger", "fumée", "feu", "étincelles",
		"bloqué", "production arrêtée", "immédiat",
	}},
	{Language: "ar", Triggers: []string{"عاجل", "واقف", "خطر", "عطل"}},
	{Language: "ary", Triggers: []string{"wa9ef", "khasra", "daba daba"}},
	{Language: "en", Triggers: []string{
		"emergency", "urgent", "shutdown", "stopped", "down", "fire",
		"smoke", "asap", "won't start",
	}},
}

var planningTriggers = []triggerRule{
	{Language: "fr", Triggers: []string{
		"planifier", "planning", "calendrier", "prochaine", "prévisionnel",
		"quand faut il",
	}},
	{Language: "en", Triggers: []string{"schedule", "plan", "upcoming", "next service"}},
}

var scopeRules = map[Scope][]triggerRule{
	ScopeSite: {
		{Language: "fr", Triggers: []string{"usine", "site", "tout l atelier"}},
		{Language: "ar", Triggers: []string{"المعمل"}},
		{Language: "en", Triggers: []string{"plant", "factory", "whole site"}},
	},
	ScopeLine: {
		{Language: "fr", Triggers: []string{"ligne", "chaîne de production"}},
		{Language: "ar", Triggers: []string{"خط الانتاج"}},
		{Language: "en", Triggers: []string{"production line", "the line"}},
	},
	ScopeSubsystem: {
		{Language: "fr", Triggers: []string{"sous-système", "sous système", "groupe"}},
		{Language: "en", Triggers: []string{"subsystem", "sub-system"}},
	},
}

// componentVocabulary maps a canonical part noun onto its multilingual
// surface forms. Matches land in Entities.Components under the canonical
// name.
var componentVocabulary = map[string][]string{
	"moteur":      {"moteur", "motor", "محرك", "motur"},
	"pompe":       {"pompe", "pump", "مضخة", "pompa"},
	"filtre":      {"filtre", "filter", "فلتر", "filtro"},
	"courroie":    {"courroie", "belt", "سير", "courroi"},
	"roulement":   {"roulement", "bearing", "رولمان"},
	"capteur":     {"capteur", "sensor", "حساس"},
	"vanne":       {"vanne", "valve", "صمام", "فالف"},
	"compresseur": {"compresseur", "compressor", "كمبريصور", "كومبريسور"},
	"vérin":       {"vérin", "cylinder", "verin"},
	"joint":       {"joint", "seal", "جوان"},
	"fusible":     {"fusible", "fuse", "فيزيبل"},
	"contacteur":  {"contacteur", "contactor", "كونطاكتور"},
	"variateur":   {"variateur", "drive", "vfd"},
	"réducteur":   {"réducteur", "gearbox", "reducteur"},
	"ventilateur": {"ventilateur", "fan", "مروحة"},
	"embrayage":   {"embrayage", "clutch"},
}

// IntentSearchKeywords augment the raw query before embedding, biasing
// the vector search toward intent-relevant passages. At most two per
// intent.
var IntentSearchKeywords = map[Intent][]string{
	IntentTroubleshooting: {"dépannage", "diagnostic"},
	IntentMaintenance:     {"entretien", "préventif"},
	IntentInstallation:    {"montage", "mise en service"},
	IntentParts:           {"référence", "pièce de rechange"},
	IntentSpecs:           {"caractéristiques", "techniques"},
	IntentProcedure:       {"procédure", "étapes"},
}

func init() {
	for intent, rules := range intentRules {
		intentRules[intent] = normalizeRules(rules)
	}
	emergencyTriggers = normalizeRules(emergencyTriggers)
	planningTriggers = normalizeRules(planningTriggers)
	for scope, rules := range scopeRules {
		scopeRules[scope] = normalizeRules(rules)
	}
	for canonical, variants := range componentVocabulary {
		normalized := make([]string, 0, len(variants))
		for _, v := range variants {
			normalized = append(normalized, textnorm.Normalize(v))
		}
		componentVocabulary[canonical] = normalized
	}
}

func normalizeRules(rules []triggerRule) []triggerRule {
	out := make([]triggerRule, len(rules))
	for i, r := range rules {
		triggers := make([]string, 0, len(r.Triggers))
		for _, t := range r.Triggers {
			triggers = append(triggers, textnorm.Normalize(t))
		}
		out[i] = triggerRule{Language: r.Language, Triggers: triggers}
	}
	return out
}
