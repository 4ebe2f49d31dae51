// Package analysis classifies a support query (intent, urgency, scope),
// extracts equipment entities, and derives the search and response
// strategies that drive retrieval and prompt assembly.
package analysis

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/atlas-gmao/backend/internal/textnorm"
	"github.com/atlas-gmao/backend/pkg/logger"
)

const (
	ModeHeuristic = "heuristic"
	ModeDeep      = "deep"
)

// errorCodePattern: 1-3 letters, optional separator, 1-4 digits.
var errorCodePattern = regexp.MustCompile(`\b[A-Za-z]{1,3}[-_]?[0-9]{1,4}\b`)

// Completer is the slice of the LLM client needed by deep mode.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type Analyzer struct {
	mode      string
	completer Completer
}

// NewAnalyzer builds an analyzer for the configured mode. completer may
// be nil for heuristic deployments.
func NewAnalyzer(mode string, completer Completer) *Analyzer {
	if mode != ModeDeep {
		mode = ModeHeuristic
	}
	return &Analyzer{mode: mode, completer: completer}
}

// Analyze classifies query against the supplied equipment context. Deep
// mode degrades to the default analysis on any service or parse failure;
// it never propagates an error upward.
func (a *Analyzer) Analyze(ctx context.Context, query string, equipment EquipmentContext) (*QueryAnalysis, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("analyze: empty query")
	}

	if a.mode == ModeDeep && a.completer != nil {
		return a.analyzeDeep(ctx, query, equipment), nil
	}

	return a.analyzeHeuristic(query, equipment), nil
}

func (a *Analyzer) analyzeHeuristic(query string, equipment EquipmentContext) *QueryAnalysis {
	normQuery := textnorm.Normalize(query)

	intent, hits := classifyIntent(normQuery)
	components := matchComponents(normQuery)
	errorCodes := extractErrorCodes(query)
	urgency := classifyUrgency(normQuery, intent)
	scope := classifyScope(normQuery, equipment, components)
	symptoms := extractSymptoms(query, normQuery, intent)

	confidence := 0.4
	if hits > 0 {
		confidence = 0.5 + 0.15*float64(hits)
		if confidence > 0.95 {
			confidence = 0.95
		}
	}

	qa := &QueryAnalysis{
		Intent:  intent,
		Urgency: urgency,
		Scope:   scope,
		Entities: Entities{
			Equipment:  equipmentMentions(normQuery, equipment),
			Components: components,
			ErrorCodes: errorCodes,
			Symptoms:   symptoms,
		},
		SearchStrategy: SearchStrategy{
			Documents:    true,
			Schematics:   wantSchematics(intent, errorCodes),
			Dependencies: intent == IntentTroubleshooting,
		},
		ResponseStrategy: ResponseStrategy{
			Format:        FormatForIntent(intent),
			SafetyWarning: wantSafetyWarning(intent, urgency),
			PartsList:     intent == IntentParts || intent == IntentMaintenance,
		},
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("heuristic: %d trigger(s) for intent %s", hits, intent),
	}

	logger.Debug("Query analyzed",
		zap.String("intent", string(qa.Intent)),
		zap.String("urgency", string(qa.Urgency)),
		zap.String("scope", string(qa.Scope)),
		zap.Float64("confidence", qa.Confidence),
	)

	return qa
}

// classifyIntent scores every intent's trigger table against the
// normalized query. Ties resolve by intentPriority; no hit means general.
func classifyIntent(normQuery string) (Intent, int) {
	scores := make(map[Intent]int)
	for intent, rules := range intentRules {
		for _, rule := range rules {
			for _, trigger := range rule.Triggers {
				if matchPhrase(normQuery, trigger) {
					scores[intent]++
				}
			}
		}
	}

	best := IntentGeneral
	bestScore := 0
	for _, intent := range intentPriority {
		if scores[intent] > bestScore {
			best = intent
			bestScore = scores[intent]
		}
	}
	return best, bestScore
}

func classifyUrgency(normQuery string, intent Intent) Urgency {
	if matchAnyRule(normQuery, emergencyTriggers) {
		return UrgencyEmergency
	}
	if intent == IntentMaintenance || intent == IntentInstallation {
		return UrgencyPlanning
	}
	if matchAnyRule(normQuery, planningTriggers) {
		return UrgencyPlanning
	}
	return UrgencyInformation
}

func classifyScope(normQuery string, equipment EquipmentContext, components []string) Scope {
	for _, scope := range []Scope{ScopeSite, ScopeLine, ScopeSubsystem} {
		if matchAnyRule(normQuery, scopeRules[scope]) {
			return scope
		}
	}
	if len(components) > 0 {
		return ScopeComponent
	}
	if equipment.Name != "" {
		return ScopeEquipment
	}
	return ScopeUnknown
}

func matchComponents(normQuery string) []string {
	var matched []string
	for canonical, variants := range componentVocabulary {
		for _, variant := range variants {
			if matchPhrase(normQuery, variant) {
				matched = append(matched, canonical)
				break
			}
		}
	}
	sort.Strings(matched)
	return matched
}

func equipmentMentions(normQuery string, equipment EquipmentContext) []string {
	var mentioned []string
	seen := make(map[string]bool)

	add := func(display, candidate string) {
		norm := textnorm.Normalize(candidate)
		if norm == "" || !strings.Contains(normQuery, norm) {
			return
		}
		if !seen[display] {
			seen[display] = true
			mentioned = append(mentioned, display)
		}
	}

	add(equipment.Name, equipment.Name)
	for _, a := range equipment.Aliases {
		add(equipment.Name, a)
	}
	for _, child := range equipment.Children {
		add(child, child)
	}
	return mentioned
}

func extractErrorCodes(query string) []string {
	raw := errorCodePattern.FindAllString(query, -1)
	var codes []string
	seen := make(map[string]bool)
	for _, c := range raw {
		code := strings.ToUpper(c)
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes
}

// extractSymptoms pulls short failure phrases around troubleshooting
// triggers. Latin-script queries go through the prose tokenizer; other
// scripts fall back to whitespace splitting.
func extractSymptoms(query, normQuery string, intent Intent) []string {
	if intent != IntentTroubleshooting {
		return nil
	}

	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	normTokens := make([]string, len(tokens))
	for i, t := range tokens {
		normTokens[i] = textnorm.Normalize(t)
	}

	var symptoms []string
	seen := make(map[string]bool)
	for _, rule := range intentRules[IntentTroubleshooting] {
		for _, trigger := range rule.Triggers {
			start, end := findPhrase(normTokens, trigger)
			if start < 0 {
				continue
			}
			lo := start - 2
			if lo < 0 {
				lo = 0
			}
			hi := end + 2
			if hi > len(tokens) {
				hi = len(tokens)
			}
			phrase := strings.Join(tokens[lo:hi], " ")
			if !seen[phrase] {
				seen[phrase] = true
				symptoms = append(symptoms, phrase)
			}
		}
	}
	return symptoms
}

func tokenize(query string) []string {
	if isMostlyLatin(query) {
		doc, err := prose.NewDocument(query,
			prose.WithTagging(false),
			prose.WithExtraction(false),
		)
		if err == nil {
			var tokens []string
			for _, tok := range doc.Tokens() {
				tokens = append(tokens, tok.Text)
			}
			if len(tokens) > 0 {
				return tokens
			}
		}
	}
	return strings.Fields(query)
}

func isMostlyLatin(s string) bool {
	latin, other := 0, 0
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= 0x00C0 && r <= 0x024F:
			latin++
		case r > 0x024F:
			other++
		}
	}
	return latin >= other
}

// findPhrase locates the token span of a normalized multi-word phrase
// inside normTokens; returns (-1, -1) when absent.
func findPhrase(normTokens []string, phrase string) (int, int) {
	parts := strings.Fields(phrase)
	if len(parts) == 0 {
		return -1, -1
	}
	for i := 0; i+len(parts) <= len(normTokens); i++ {
		match := true
		for j, p := range parts {
			if normTokens[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return i, i + len(parts)
		}
	}
	return -1, -1
}

func wantSchematics(intent Intent, errorCodes []string) bool {
	if len(errorCodes) > 0 {
		return true
	}
	switch intent {
	case IntentTroubleshooting, IntentInstallation, IntentParts:
		return true
	}
	return false
}

func wantSafetyWarning(intent Intent, urgency Urgency) bool {
	if urgency == UrgencyEmergency {
		return true
	}
	switch intent {
	case IntentTroubleshooting, IntentInstallation, IntentMaintenance:
		return true
	}
	return false
}

func matchAnyRule(normQuery string, rules []triggerRule) bool {
	for _, rule := range rules {
		for _, trigger := range rule.Triggers {
			if matchPhrase(normQuery, trigger) {
				return true
			}
		}
	}
	return false
}

// matchPhrase tests for phrase in normQuery. ASCII phrases match on word
// boundaries; non-ASCII phrases use plain containment so Arabic articles
// and agglutinated prefixes still match.
func matchPhrase(normQuery, phrase string) bool {
	if phrase == "" {
		return false
	}
	if isASCII(phrase) {
		return strings.Contains(" "+normQuery+" ", " "+phrase+" ")
	}
	return strings.Contains(normQuery, phrase)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
