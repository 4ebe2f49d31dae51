package depgraph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-gmao/backend/internal/analysis"
	"github.com/atlas-gmao/backend/internal/kg/neo4j"
)

type fakeGraph struct {
	upstream      []neo4j.DependencyEdge
	upstreamErr   error
	downstream    []neo4j.DependencyEdge
	downstreamErr error
	calls         int
}

func (f *fakeGraph) Upstream(ctx context.Context, equipmentID string) ([]neo4j.DependencyEdge, error) {
	f.calls++
	return f.upstream, f.upstreamErr
}

func (f *fakeGraph) Downstream(ctx context.Context, equipmentID string) ([]neo4j.DependencyEdge, error) {
	f.calls++
	return f.downstream, f.downstreamErr
}

type fakeHierarchy struct {
	nodes []neo4j.HierarchyNode
	err   error
}

func (f *fakeHierarchy) Descendants(ctx context.Context, equipmentID string) ([]neo4j.HierarchyNode, error) {
	return f.nodes, f.err
}

func troubleshootingAnalysis() *analysis.QueryAnalysis {
	qa := analysis.DefaultAnalysis()
	qa.Intent = analysis.IntentTroubleshooting
	qa.SearchStrategy.Dependencies = true
	return qa
}

func TestBuildSkipsWhenNotRequested(t *testing.T) {
	graph := &fakeGraph{upstream: []neo4j.DependencyEdge{{ID: "U1", Name: "Pompe P-200"}}}
	b := NewBuilder(graph, nil)

	qa := analysis.DefaultAnalysis() // general intent, dependencies off

	dc := b.Build(context.Background(), "E1", "Compresseur GA-75", qa)

	assert.True(t, dc.Empty())
	assert.Zero(t, graph.calls)
}

func TestBuildActivatesOnTroubleshooting(t *testing.T) {
	graph := &fakeGraph{
		upstream:   []neo4j.DependencyEdge{{ID: "U1", Name: "Pompe P-200", RelationshipType: RelFeeds, Criticality: CriticalityCritical}},
		downstream: []neo4j.DependencyEdge{{ID: "D1", Name: "Sécheur D-20", RelationshipType: RelFeeds, Criticality: CriticalityMedium}},
	}
	b := NewBuilder(graph, nil)

	qa := analysis.DefaultAnalysis()
	qa.Intent = analysis.IntentTroubleshooting

	dc := b.Build(context.Background(), "E1", "Compresseur GA-75", qa)

	require.False(t, dc.Empty())
	assert.Len(t, dc.Upstream, 1)
	assert.Len(t, dc.Downstream, 1)
	assert.Equal(t, 2, graph.calls)
}

func TestBuildActivatesOnDependenciesFlag(t *testing.T) {
	graph := &fakeGraph{downstream: []neo4j.DependencyEdge{{ID: "D1", Name: "Sécheur D-20"}}}
	b := NewBuilder(graph, nil)

	qa := analysis.DefaultAnalysis()
	qa.SearchStrategy.Dependencies = true

	dc := b.Build(context.Background(), "E1", "Compresseur GA-75", qa)

	assert.False(t, dc.Empty())
}

func TestBuildPartialOnOneSidedFailure(t *testing.T) {
	graph := &fakeGraph{
		upstreamErr: errors.New("neo4j unavailable"),
		downstream:  []neo4j.DependencyEdge{{ID: "D1", Name: "Sécheur D-20", RelationshipType: RelFeeds, Criticality: CriticalityHigh}},
	}
	b := NewBuilder(graph, nil)

	dc := b.Build(context.Background(), "E1", "Compresseur GA-75", troubleshootingAnalysis())

	assert.Empty(t, dc.Upstream)
	require.Len(t, dc.Downstream, 1)
	assert.False(t, dc.Empty())
}

func TestDependencySummaryOrdering(t *testing.T) {
	dc := &DependencyContext{
		EquipmentName: "Compresseur GA-75",
		Upstream:      []neo4j.DependencyEdge{{ID: "U1", Name: "Poste électrique", RelationshipType: RelPowers, Criticality: CriticalityCritical}},
		Downstream:    []neo4j.DependencyEdge{{ID: "D1", Name: "Sécheur D-20", RelationshipType: RelFeeds, Criticality: CriticalityMedium}},
	}

	summary := dc.Summary()

	upIdx := strings.Index(summary, "Poste électrique")
	markerIdx := strings.Index(summary, "[Compresseur GA-75]")
	downIdx := strings.Index(summary, "Sécheur D-20")
	require.True(t, upIdx >= 0 && markerIdx >= 0 && downIdx >= 0)
	assert.Less(t, upIdx, markerIdx)
	assert.Less(t, markerIdx, downIdx)
	assert.Contains(t, summary, "powers")
	assert.Contains(t, summary, "critical")
}

func TestDependencySummaryEmpty(t *testing.T) {
	dc := &DependencyContext{EquipmentName: "Compresseur GA-75"}
	assert.Empty(t, dc.Summary())

	var nilCtx *DependencyContext
	assert.True(t, nilCtx.Empty())
	assert.Empty(t, nilCtx.Summary())
}

func TestBuildHierarchyGroupsByLevel(t *testing.T) {
	h := &fakeHierarchy{nodes: []neo4j.HierarchyNode{
		{ID: "L1", Name: "Ligne 2", Level: "line"},
		{ID: "S1", Name: "Groupe froid", Level: "subsystem"},
		{ID: "E1", Name: "Compresseur GA-75", Level: "equipment"},
		{ID: "C1", Name: "Moteur M1", Level: "component"},
		{ID: "X1", Name: "Divers"},
	}}
	b := NewBuilder(nil, h)

	hc := b.BuildHierarchy(context.Background(), "SITE", "Usine Casablanca")

	require.False(t, hc.Empty())
	assert.Len(t, hc.ByLevel["line"], 1)
	// Nodes without a level land at the equipment tier.
	assert.Len(t, hc.ByLevel["equipment"], 2)

	summary := hc.Summary()
	lineIdx := strings.Index(summary, "line:")
	subIdx := strings.Index(summary, "subsystem:")
	eqIdx := strings.Index(summary, "equipment:")
	compIdx := strings.Index(summary, "component:")
	require.True(t, lineIdx >= 0 && subIdx >= 0 && eqIdx >= 0 && compIdx >= 0)
	assert.Less(t, lineIdx, subIdx)
	assert.Less(t, subIdx, eqIdx)
	assert.Less(t, eqIdx, compIdx)
}

func TestBuildHierarchyFailure(t *testing.T) {
	b := NewBuilder(nil, &fakeHierarchy{err: errors.New("neo4j unavailable")})

	hc := b.BuildHierarchy(context.Background(), "SITE", "Usine Casablanca")

	assert.True(t, hc.Empty())
	assert.Empty(t, hc.Summary())
}
