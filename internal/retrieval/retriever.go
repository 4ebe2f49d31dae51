// Package retrieval fans a query out across the knowledge sources
// (manual text, schematics, dependency graph, hierarchy), then merges,
// deduplicates and ranks what came back.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/atlas-gmao/backend/internal/analysis"
	"github.com/atlas-gmao/backend/internal/kg/depgraph"
	"github.com/atlas-gmao/backend/internal/storage/models"
	"github.com/atlas-gmao/backend/internal/textnorm"
	"github.com/atlas-gmao/backend/internal/vector/milvus"
	"github.com/atlas-gmao/backend/pkg/config"
	"github.com/atlas-gmao/backend/pkg/logger"
)

// Source types of retrieved content.
const (
	SourceManualText        = "manual_text"
	SourceSchematic         = "schematic"
	SourceDependencySummary = "dependency_summary"
	SourceHierarchySummary  = "hierarchy_summary"
)

// Result is one retrieved unit of knowledge. Similarity is a relevance
// score; heuristic sources use fixed bands so it is not bounded to [0,1].
type Result struct {
	Content         string            `json:"content"`
	SourceType      string            `json:"source_type"`
	OriginEquipment string            `json:"origin_equipment_name"`
	PageReference   string            `json:"page_reference,omitempty"`
	Similarity      float64           `json:"similarity"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Target identifies the equipment a query is about.
type Target struct {
	ID   string
	Name string
}

// Embedder turns text into a query vector. External service.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// DocumentSearcher is the vector-search collaborator over manual chunks.
type DocumentSearcher interface {
	SearchChunks(ctx context.Context, equipmentID string, queryEmbedding []float32, floor float64, topK int) ([]milvus.SearchHit, error)
}

// SchematicStore lists schematic records for an equipment.
type SchematicStore interface {
	ListSchematics(ctx context.Context, equipmentID string) ([]models.Schematic, error)
}

// HierarchyBuilder resolves descendant equipment for non-leaf scopes.
type HierarchyBuilder interface {
	BuildHierarchy(ctx context.Context, equipmentID, equipmentName string) *depgraph.HierarchyContext
}

type Retriever struct {
	embedder   Embedder
	documents  DocumentSearcher
	schematics SchematicStore
	hierarchy  HierarchyBuilder
	cfg        config.RetrievalConfig
}

func NewRetriever(embedder Embedder, documents DocumentSearcher, schematics SchematicStore, hierarchy HierarchyBuilder, cfg config.RetrievalConfig) *Retriever {
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 15
	}
	if cfg.DocSimilarityFloor == 0 {
		cfg.DocSimilarityFloor = 0.25
	}
	if cfg.DocCandidates == 0 {
		cfg.DocCandidates = 10
	}
	if cfg.UpstreamFloor == 0 {
		cfg.UpstreamFloor = 0.4
	}
	if cfg.UpstreamDiscount == 0 {
		cfg.UpstreamDiscount = 0.8
	}
	if cfg.UpstreamFanout == 0 {
		cfg.UpstreamFanout = 2
	}
	if cfg.SchematicMatchScore == 0 {
		cfg.SchematicMatchScore = 0.9
	}
	if cfg.SchematicBaseScore == 0 {
		cfg.SchematicBaseScore = 0.7
	}
	if cfg.DependencyScore == 0 {
		cfg.DependencyScore = 0.85
	}
	if cfg.HierarchyScore == 0 {
		cfg.HierarchyScore = 0.8
	}
	return &Retriever{
		embedder:   embedder,
		documents:  documents,
		schematics: schematics,
		hierarchy:  hierarchy,
		cfg:        cfg,
	}
}

// Retrieve runs the enabled sources concurrently, isolates per-source
// failures, and returns a ranked, deduplicated list capped at maxResults
// (0 means the configured default). It only errors when the primary
// document-text path failed and no other source produced anything.
func (r *Retriever) Retrieve(ctx context.Context, target Target, query string, qa *analysis.QueryAnalysis, depCtx *depgraph.DependencyContext, maxResults int) ([]Result, error) {
	if target.ID == "" {
		return nil, fmt.Errorf("retrieve: missing equipment id")
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("retrieve: empty query")
	}
	if qa == nil {
		return nil, fmt.Errorf("retrieve: missing query analysis")
	}
	if maxResults <= 0 {
		maxResults = r.cfg.MaxResults
	}

	augmented := AugmentQuery(query, qa)

	// One embedding serves both the primary and the upstream document
	// searches. If it fails, only the vector-backed sources are lost.
	queryVector, embErr := r.embedder.GenerateEmbedding(ctx, augmented)
	if embErr != nil {
		logger.Warn("Embedding generation failed, document search skipped", zap.Error(embErr))
	}

	var (
		wg          sync.WaitGroup
		docResults  []Result
		docErr      error
		schResults  []Result
		depResults  []Result
		hierResults []Result
	)

	if queryVector != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docResults, docErr = r.searchDocuments(ctx, target, queryVector)
			if docErr != nil {
				logger.Warn("Document search failed", zap.Error(docErr))
			}
		}()
	}

	if qa.SearchStrategy.Schematics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			schResults = r.searchSchematics(ctx, target, qa)
		}()
	}

	if qa.SearchStrategy.Dependencies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			depResults = r.searchDependencies(ctx, target, qa, depCtx, queryVector)
		}()
	}

	if qa.Scope == analysis.ScopeSite || qa.Scope == analysis.ScopeLine || qa.Scope == analysis.ScopeSubsystem {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hierResults = r.searchHierarchy(ctx, target)
		}()
	}

	wg.Wait()

	merged := mergeResults(maxResults, docResults, schResults, depResults, hierResults)

	primaryErr := embErr
	if primaryErr == nil {
		primaryErr = docErr
	}
	if primaryErr != nil && len(merged) == 0 {
		return nil, fmt.Errorf("retrieval failed: %w", primaryErr)
	}

	logger.Info("Retrieval completed",
		zap.String("equipment_id", target.ID),
		zap.Int("documents", len(docResults)),
		zap.Int("schematics", len(schResults)),
		zap.Int("dependencies", len(depResults)),
		zap.Int("hierarchy", len(hierResults)),
		zap.Int("merged", len(merged)),
	)

	return merged, nil
}

// AugmentQuery appends intent keywords plus extracted component names and
// error codes so the embedding leans toward intent-relevant passages.
func AugmentQuery(query string, qa *analysis.QueryAnalysis) string {
	parts := []string{query}

	keywords := analysis.IntentSearchKeywords[qa.Intent]
	if len(keywords) > 2 {
		keywords = keywords[:2]
	}
	parts = append(parts, keywords...)
	parts = append(parts, qa.Entities.Components...)
	parts = append(parts, qa.Entities.ErrorCodes...)

	return strings.Join(parts, " ")
}

func (r *Retriever) searchDocuments(ctx context.Context, target Target, queryVector []float32) ([]Result, error) {
	hits, err := r.documents.SearchChunks(ctx, target.ID, queryVector, r.cfg.DocSimilarityFloor, r.cfg.DocCandidates)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			Content:         h.Text,
			SourceType:      SourceManualText,
			OriginEquipment: target.Name,
			PageReference:   h.PageReference,
			Similarity:      float64(h.Score),
			Metadata: map[string]string{
				"chunk_id":  h.ChunkID,
				"doc_title": h.DocTitle,
			},
		})
	}
	return results, nil
}

func (r *Retriever) searchSchematics(ctx context.Context, target Target, qa *analysis.QueryAnalysis) []Result {
	schematics, err := r.schematics.ListSchematics(ctx, target.ID)
	if err != nil {
		logger.Warn("Schematic search failed", zap.Error(err))
		return nil
	}

	mentions := make([]string, 0, len(qa.Entities.Components)+len(qa.Entities.ErrorCodes))
	for _, c := range qa.Entities.Components {
		mentions = append(mentions, textnorm.Normalize(c))
	}
	for _, c := range qa.Entities.ErrorCodes {
		mentions = append(mentions, textnorm.Normalize(c))
	}

	var results []Result
	for _, s := range schematics {
		score := r.cfg.SchematicBaseScore
		if schematicOverlaps(s, mentions) {
			score = r.cfg.SchematicMatchScore
		} else if qa.Intent != analysis.IntentTroubleshooting {
			// Non-matching schematics are only generically useful
			// when diagnosing.
			continue
		}

		results = append(results, Result{
			Content:         FlattenSchematic(s),
			SourceType:      SourceSchematic,
			OriginEquipment: target.Name,
			PageReference:   s.PageReference,
			Similarity:      score,
			Metadata: map[string]string{
				"schematic_id":   s.ID,
				"schematic_type": s.Type,
			},
		})
	}
	return results
}

// schematicOverlaps reports whether any component reference of s
// lexically overlaps a mentioned component or error code.
func schematicOverlaps(s models.Schematic, mentions []string) bool {
	if len(mentions) == 0 {
		return false
	}
	for _, comp := range s.Components {
		for _, field := range []string{comp.Ref, comp.Type, comp.Value} {
			norm := textnorm.Normalize(field)
			if norm == "" {
				continue
			}
			for _, m := range mentions {
				if m == "" {
					continue
				}
				if strings.Contains(norm, m) || strings.Contains(m, norm) {
					return true
				}
			}
		}
	}
	return false
}

// FlattenSchematic renders a schematic record as a text block for prompt
// context: type, description, components, connections, diagnostic steps.
func FlattenSchematic(s models.Schematic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Schematic (%s): %s\n", s.Type, s.Description)

	if len(s.Components) > 0 {
		b.WriteString("Components:\n")
		for _, c := range s.Components {
			fmt.Fprintf(&b, "  - %s %s %s\n", c.Ref, c.Type, c.Value)
		}
	}
	if len(s.Connections) > 0 {
		b.WriteString("Connections:\n")
		for _, c := range s.Connections {
			fmt.Fprintf(&b, "  - %s -> %s (%s)\n", c.From, c.To, c.Type)
		}
	}
	if len(s.DiagnosticSequence) > 0 {
		b.WriteString("Diagnostic sequence:\n")
		for i, step := range s.DiagnosticSequence {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
	}
	return b.String()
}

func (r *Retriever) searchDependencies(ctx context.Context, target Target, qa *analysis.QueryAnalysis, depCtx *depgraph.DependencyContext, queryVector []float32) []Result {
	var results []Result

	if !depCtx.Empty() {
		results = append(results, Result{
			Content:         depCtx.Summary(),
			SourceType:      SourceDependencySummary,
			OriginEquipment: target.Name,
			Similarity:      r.cfg.DependencyScore,
		})
	}

	// Upstream documentation is relevant for diagnosis but must rank
	// below same-equipment documentation.
	if qa.Intent != analysis.IntentTroubleshooting || depCtx.Empty() || queryVector == nil {
		return results
	}

	upstream := depCtx.Upstream
	if len(upstream) > r.cfg.UpstreamFanout {
		upstream = upstream[:r.cfg.UpstreamFanout]
	}

	for _, up := range upstream {
		hits, err := r.documents.SearchChunks(ctx, up.ID, queryVector, r.cfg.UpstreamFloor, r.cfg.DocCandidates)
		if err != nil {
			logger.Warn("Upstream document search failed",
				zap.String("upstream_id", up.ID),
				zap.Error(err),
			)
			continue
		}
		for _, h := range hits {
			results = append(results, Result{
				Content:         h.Text,
				SourceType:      SourceManualText,
				OriginEquipment: up.Name,
				PageReference:   h.PageReference,
				Similarity:      float64(h.Score) * r.cfg.UpstreamDiscount,
				Metadata: map[string]string{
					"chunk_id":  h.ChunkID,
					"doc_title": h.DocTitle,
					"upstream":  "true",
				},
			})
		}
	}
	return results
}

func (r *Retriever) searchHierarchy(ctx context.Context, target Target) []Result {
	if r.hierarchy == nil {
		return nil
	}
	hc := r.hierarchy.BuildHierarchy(ctx, target.ID, target.Name)
	if hc.Empty() {
		return nil
	}
	return []Result{{
		Content:         hc.Summary(),
		SourceType:      SourceHierarchySummary,
		OriginEquipment: target.Name,
		Similarity:      r.cfg.HierarchyScore,
	}}
}

// mergeResults concatenates, deduplicates by (content, source_type),
// sorts by similarity descending and truncates to max.
func mergeResults(max int, lists ...[]Result) []Result {
	var merged []Result
	seen := make(map[string]bool)

	for _, list := range lists {
		for _, res := range list {
			key := res.SourceType + "\x00" + res.Content
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, res)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})

	if len(merged) > max {
		merged = merged[:max]
	}
	return merged
}
