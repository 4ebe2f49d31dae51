package retrieval

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-gmao/backend/internal/analysis"
	"github.com/atlas-gmao/backend/internal/kg/depgraph"
	"github.com/atlas-gmao/backend/internal/kg/neo4j"
	"github.com/atlas-gmao/backend/internal/storage/models"
	"github.com/atlas-gmao/backend/internal/vector/milvus"
	"github.com/atlas-gmao/backend/pkg/config"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

type searchCall struct {
	equipmentID string
	floor       float64
}

type fakeDocs struct {
	mu    sync.Mutex
	hits  map[string][]milvus.SearchHit
	err   error
	calls []searchCall
}

func (f *fakeDocs) SearchChunks(ctx context.Context, equipmentID string, queryEmbedding []float32, floor float64, topK int) ([]milvus.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, searchCall{equipmentID: equipmentID, floor: floor})
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[equipmentID], nil
}

func (f *fakeDocs) callsFor(equipmentID string) []searchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []searchCall
	for _, c := range f.calls {
		if c.equipmentID == equipmentID {
			out = append(out, c)
		}
	}
	return out
}

type fakeSchematics struct {
	schematics []models.Schematic
	err        error
}

func (f *fakeSchematics) ListSchematics(ctx context.Context, equipmentID string) ([]models.Schematic, error) {
	return f.schematics, f.err
}

type fakeHierarchy struct {
	ctx *depgraph.HierarchyContext
}

func (f *fakeHierarchy) BuildHierarchy(ctx context.Context, equipmentID, equipmentName string) *depgraph.HierarchyContext {
	if f.ctx == nil {
		return &depgraph.HierarchyContext{EquipmentName: equipmentName}
	}
	return f.ctx
}

func baseAnalysis(intent analysis.Intent) *analysis.QueryAnalysis {
	qa := analysis.DefaultAnalysis()
	qa.Intent = intent
	qa.ResponseStrategy.Format = analysis.FormatForIntent(intent)
	return qa
}

func newTestRetriever(embedder Embedder, docs DocumentSearcher, sch SchematicStore, hier HierarchyBuilder) *Retriever {
	return NewRetriever(embedder, docs, sch, hier, config.RetrievalConfig{})
}

func TestRetrievePreconditions(t *testing.T) {
	r := newTestRetriever(&fakeEmbedder{vec: []float32{0.1}}, &fakeDocs{}, &fakeSchematics{}, nil)
	qa := baseAnalysis(analysis.IntentGeneral)

	_, err := r.Retrieve(context.Background(), Target{Name: "X"}, "query", qa, nil, 0)
	assert.Error(t, err)

	_, err = r.Retrieve(context.Background(), Target{ID: "E1", Name: "X"}, "  ", qa, nil, 0)
	assert.Error(t, err)

	_, err = r.Retrieve(context.Background(), Target{ID: "E1", Name: "X"}, "query", nil, nil, 0)
	assert.Error(t, err)
}

func TestRetrieveRanksAndCaps(t *testing.T) {
	hits := make([]milvus.SearchHit, 0, 20)
	for i := 0; i < 20; i++ {
		hits = append(hits, milvus.SearchHit{
			ChunkID: "c",
			Text:    string(rune('a' + i)),
			Score:   float32(i) / 20,
		})
	}
	docs := &fakeDocs{hits: map[string][]milvus.SearchHit{"E1": hits}}
	r := newTestRetriever(&fakeEmbedder{vec: []float32{0.1}}, docs, &fakeSchematics{}, nil)

	results, err := r.Retrieve(context.Background(), Target{ID: "E1", Name: "Compresseur GA-75"}, "question", baseAnalysis(analysis.IntentGeneral), nil, 0)
	require.NoError(t, err)

	assert.Len(t, results, 15)
	assert.True(t, sort.SliceIsSorted(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	}))
	for _, res := range results {
		assert.Equal(t, SourceManualText, res.SourceType)
		assert.Equal(t, "Compresseur GA-75", res.OriginEquipment)
	}
}

func TestRetrieveDeduplicates(t *testing.T) {
	docs := &fakeDocs{hits: map[string][]milvus.SearchHit{"E1": {
		{ChunkID: "c1", Text: "vidanger le compresseur", Score: 0.9},
		{ChunkID: "c2", Text: "vidanger le compresseur", Score: 0.7},
		{ChunkID: "c3", Text: "contrôler la courroie", Score: 0.6},
	}}}
	r := newTestRetriever(&fakeEmbedder{vec: []float32{0.1}}, docs, &fakeSchematics{}, nil)

	results, err := r.Retrieve(context.Background(), Target{ID: "E1", Name: "C"}, "question", baseAnalysis(analysis.IntentGeneral), nil, 0)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "vidanger le compresseur", results[0].Content)
	assert.Equal(t, 0.9, results[0].Similarity)
}

func TestRetrieveEmbeddingFailureDegradesGracefully(t *testing.T) {
	qa := baseAnalysis(analysis.IntentTroubleshooting)
	qa.SearchStrategy.Schematics = true
	qa.SearchStrategy.Dependencies = true

	docs := &fakeDocs{}
	sch := &fakeSchematics{schematics: []models.Schematic{{
		ID: "S1", Type: "electrical", Description: "circuit de puissance",
	}}}
	depCtx := &depgraph.DependencyContext{
		EquipmentName: "Compresseur GA-75",
		Upstream:      []neo4j.DependencyEdge{{ID: "U1", Name: "Poste électrique"}},
	}
	r := newTestRetriever(&fakeEmbedder{err: errors.New("embedding service down")}, docs, sch, nil)

	results, err := r.Retrieve(context.Background(), Target{ID: "E1", Name: "Compresseur GA-75"}, "le moteur ne démarre pas", qa, depCtx, 0)
	require.NoError(t, err)

	// Schematic and dependency sources still answer; nothing hit the
	// vector store.
	assert.NotEmpty(t, results)
	assert.Empty(t, docs.calls)
	types := make(map[string]bool)
	for _, res := range results {
		types[res.SourceType] = true
	}
	assert.True(t, types[SourceSchematic])
	assert.True(t, types[SourceDependencySummary])
	assert.False(t, types[SourceManualText])
}

func TestRetrieveFailsWhenNothingAnswers(t *testing.T) {
	r := newTestRetriever(&fakeEmbedder{err: errors.New("embedding service down")}, &fakeDocs{}, &fakeSchematics{}, nil)

	_, err := r.Retrieve(context.Background(), Target{ID: "E1", Name: "C"}, "question", baseAnalysis(analysis.IntentGeneral), nil, 0)
	assert.Error(t, err)
}

func TestRetrieveDocSearchFailureWithOtherSources(t *testing.T) {
	qa := baseAnalysis(analysis.IntentTroubleshooting)
	qa.SearchStrategy.Schematics = true

	docs := &fakeDocs{err: errors.New("milvus unavailable")}
	sch := &fakeSchematics{schematics: []models.Schematic{{
		ID: "S1", Type: "electrical", Description: "circuit de puissance",
	}}}
	r := newTestRetriever(&fakeEmbedder{vec: []float32{0.1}}, docs, sch, nil)

	results, err := r.Retrieve(context.Background(), Target{ID: "E1", Name: "C"}, "question", qa, nil, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestRetrieveDependencySummaryScore(t *testing.T) {
	qa := baseAnalysis(analysis.IntentGeneral)
	qa.SearchStrategy.Dependencies = true

	depCtx := &depgraph.DependencyContext{
		EquipmentName: "Compresseur GA-75",
		Downstream:    []neo4j.DependencyEdge{{ID: "D1", Name: "Sécheur D-20"}},
	}
	r := newTestRetriever(&fakeEmbedder{vec: []float32{0.1}}, &fakeDocs{}, &fakeSchematics{}, nil)

	results, err := r.Retrieve(context.Background(), Target{ID: "E1", Name: "Compresseur GA-75"}, "question", qa, depCtx, 0)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, SourceDependencySummary, results[0].SourceType)
	assert.Equal(t, 0.85, results[0].Similarity)
}

func TestRetrieveUpstreamDocuments(t *testing.T) {
	qa := baseAnalysis(analysis.IntentTroubleshooting)
	qa.SearchStrategy.Dependencies = true

	depCtx := &depgraph.DependencyContext{
		EquipmentName: "Compresseur GA-75",
		Upstream: []neo4j.DependencyEdge{
			{ID: "U1", Name: "Poste électrique"},
			{ID: "U2", Name: "Circuit d'eau"},
			{ID: "U3", Name: "Réseau d'air"},
		},
	}
	docs := &fakeDocs{hits: map[string][]milvus.SearchHit{
		"U1": {{ChunkID: "u1", Text: "protection du départ moteur", Score: 0.5}},
	}}
	r := newTestRetriever(&fakeEmbedder{vec: []float32{0.1}}, docs, &fakeSchematics{}, nil)

	results, err := r.Retrieve(context.Background(), Target{ID: "E1", Name: "Compresseur GA-75"}, "le moteur ne démarre pas", qa, depCtx, 0)
	require.NoError(t, err)

	// Fanout stops at two upstream neighbors.
	assert.Len(t, docs.callsFor("U1"), 1)
	assert.Len(t, docs.callsFor("U2"), 1)
	assert.Empty(t, docs.callsFor("U3"))

	// Upstream searches use their own floor; the primary keeps its own.
	assert.Equal(t, 0.4, docs.callsFor("U1")[0].floor)
	assert.Equal(t, 0.25, docs.callsFor("E1")[0].floor)

	var upstream *Result
	for i := range results {
		if results[i].OriginEquipment == "Poste électrique" {
			upstream = &results[i]
		}
	}
	require.NotNil(t, upstream)
	assert.Equal(t, SourceManualText, upstream.SourceType)
	assert.InDelta(t, 0.4, upstream.Similarity, 0.0001)
	assert.Equal(t, "true", upstream.Metadata["upstream"])
}

func TestRetrieveSchematicScoring(t *testing.T) {
	matching := models.Schematic{
		ID:   "S1",
		Type: "electrical",
		Components: []models.SchematicComponent{
			{Ref: "KM1", Type: "contacteur", Value: "25A"},
		},
	}
	other := models.Schematic{
		ID:   "S2",
		Type: "pneumatic",
		Components: []models.SchematicComponent{
			{Ref: "V3", Type: "vanne", Value: ""},
		},
	}

	qa := baseAnalysis(analysis.IntentTroubleshooting)
	qa.SearchStrategy.Schematics = true
	qa.Entities.Components = []string{"contacteur"}

	r := newTestRetriever(&fakeEmbedder{vec: []float32{0.1}}, &fakeDocs{}, &fakeSchematics{schematics: []models.Schematic{matching, other}}, nil)

	results, err := r.Retrieve(context.Background(), Target{ID: "E1", Name: "C"}, "le contacteur a grillé", qa, nil, 0)
	require.NoError(t, err)

	scores := make(map[string]float64)
	for _, res := range results {
		scores[res.Metadata["schematic_id"]] = res.Similarity
	}
	assert.Equal(t, 0.9, scores["S1"])
	// Non-matching schematics stay at the base band while diagnosing.
	assert.Equal(t, 0.7, scores["S2"])
}

func TestRetrieveSchematicSkippedOutsideDiagnosis(t *testing.T) {
	other := models.Schematic{
		ID:   "S2",
		Type: "pneumatic",
		Components: []models.SchematicComponent{
			{Ref: "V3", Type: "vanne", Value: ""},
		},
	}

	qa := baseAnalysis(analysis.IntentParts)
	qa.SearchStrategy.Schematics = true
	qa.Entities.Components = []string{"contacteur"}

	r := newTestRetriever(&fakeEmbedder{vec: []float32{0.1}}, &fakeDocs{}, &fakeSchematics{schematics: []models.Schematic{other}}, nil)

	results, err := r.Retrieve(context.Background(), Target{ID: "E1", Name: "C"}, "référence du contacteur", qa, nil, 0)
	require.NoError(t, err)

	for _, res := range results {
		assert.NotEqual(t, SourceSchematic, res.SourceType)
	}
}

func TestRetrieveHierarchyForWideScopes(t *testing.T) {
	qa := baseAnalysis(analysis.IntentGeneral)
	qa.Scope = analysis.ScopeLine

	hier := &fakeHierarchy{ctx: &depgraph.HierarchyContext{
		EquipmentName: "Ligne 2",
		ByLevel: map[string][]neo4j.HierarchyNode{
			"equipment": {{ID: "E1", Name: "Compresseur GA-75", Level: "equipment"}},
		},
	}}
	r := newTestRetriever(&fakeEmbedder{vec: []float32{0.1}}, &fakeDocs{}, &fakeSchematics{}, hier)

	results, err := r.Retrieve(context.Background(), Target{ID: "L2", Name: "Ligne 2"}, "état de la ligne", qa, nil, 0)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, SourceHierarchySummary, results[0].SourceType)
	assert.Equal(t, 0.8, results[0].Similarity)
	assert.Contains(t, results[0].Content, "Compresseur GA-75")
}

func TestAugmentQuery(t *testing.T) {
	qa := baseAnalysis(analysis.IntentTroubleshooting)
	qa.Entities.Components = []string{"moteur"}
	qa.Entities.ErrorCodes = []string{"E-42"}

	augmented := AugmentQuery("le moteur ne démarre pas", qa)

	assert.Contains(t, augmented, "le moteur ne démarre pas")
	assert.Contains(t, augmented, "diagnostic")
	assert.Contains(t, augmented, "E-42")
}
