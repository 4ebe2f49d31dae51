// Package alias maps colloquial and multilingual equipment nicknames
// found in a query onto canonical equipment records.
package alias

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/atlas-gmao/backend/internal/storage/models"
	"github.com/atlas-gmao/backend/internal/textnorm"
	"github.com/atlas-gmao/backend/pkg/logger"
)

// DefaultBigramThreshold is the minimum bigram similarity for a fuzzy
// alias match. Empirical; override via config.
const DefaultBigramThreshold = 0.6

// Store lists the alias table. Owned by external storage.
type Store interface {
	ListAliases(ctx context.Context) ([]models.EquipmentAlias, error)
}

// Resolved is one alias match against a canonical equipment record.
type Resolved struct {
	EquipmentID   string  `json:"equipment_id"`
	CanonicalName string  `json:"canonical_name"`
	MatchedAlias  string  `json:"matched_alias_text"`
	Confidence    float64 `json:"confidence"`
}

type Resolver struct {
	store     Store
	threshold float64
}

func NewResolver(store Store, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = DefaultBigramThreshold
	}
	return &Resolver{store: store, threshold: threshold}
}

// Resolve returns alias matches for query, deduplicated by equipment id
// (highest confidence wins) and sorted by confidence descending. Alias
// resolution is best-effort enrichment: an empty or unavailable alias
// table yields an empty list, never an error.
func (r *Resolver) Resolve(ctx context.Context, query string) []Resolved {
	aliases, err := r.store.ListAliases(ctx)
	if err != nil {
		logger.Warn("Alias table unavailable", zap.Error(err))
		return nil
	}
	if len(aliases) == 0 {
		return nil
	}

	normQuery := textnorm.Normalize(query)
	if normQuery == "" {
		return nil
	}

	best := make(map[string]Resolved)
	for _, a := range aliases {
		normAlias := a.AliasNormalized
		if normAlias == "" {
			normAlias = textnorm.Normalize(a.AliasText)
		}
		if normAlias == "" {
			continue
		}

		var confidence float64
		switch {
		case strings.Contains(normQuery, normAlias):
			confidence = 1.0
		default:
			sim := textnorm.BigramSimilarity(normQuery, normAlias)
			if sim < r.threshold {
				continue
			}
			confidence = sim
		}

		if prev, ok := best[a.EquipmentID]; !ok || confidence > prev.Confidence {
			best[a.EquipmentID] = Resolved{
				EquipmentID:   a.EquipmentID,
				CanonicalName: a.CanonicalName,
				MatchedAlias:  a.AliasText,
				Confidence:    confidence,
			}
		}
	}

	resolved := make([]Resolved, 0, len(best))
	for _, m := range best {
		resolved = append(resolved, m)
	}
	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].Confidence > resolved[j].Confidence
	})

	logger.Debug("Aliases resolved",
		zap.Int("candidates", len(aliases)),
		zap.Int("matched", len(resolved)),
	)

	return resolved
}

// RewriteQuery replaces every exact alias occurrence with the canonical
// equipment name and returns the rewritten query together with the
// matches. The rewritten form feeds embedding generation so nicknames do
// not degrade vector recall.
func (r *Resolver) RewriteQuery(ctx context.Context, query string) (string, []Resolved) {
	resolved := r.Resolve(ctx, query)

	rewritten := query
	for _, m := range resolved {
		if m.Confidence < 1.0 {
			continue
		}
		if m.MatchedAlias == "" || m.CanonicalName == "" {
			continue
		}
		rewritten = replaceFold(rewritten, m.MatchedAlias, m.CanonicalName)
	}

	return rewritten, resolved
}

// replaceFold replaces occurrences of old in s, comparing case-insensitively.
func replaceFold(s, old, new string) string {
	lower := strings.ToLower(s)
	lowerOld := strings.ToLower(old)
	if lowerOld == "" {
		return s
	}

	var b strings.Builder
	for {
		i := strings.Index(lower, lowerOld)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(new)
		s = s[i+len(old):]
		lower = lower[i+len(lowerOld):]
	}
}
