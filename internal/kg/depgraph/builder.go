// Package depgraph builds the directional dependency context and the
// hierarchy context for a query, on demand, from the graph store.
package depgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/atlas-gmao/backend/internal/analysis"
	"github.com/atlas-gmao/backend/internal/kg/neo4j"
	"github.com/atlas-gmao/backend/pkg/logger"
)

// Criticality tiers, highest first.
const (
	CriticalityCritical = "critical"
	CriticalityHigh     = "high"
	CriticalityMedium   = "medium"
	CriticalityLow      = "low"
)

// Relationship types carried on dependency edges.
const (
	RelFeeds       = "feeds"
	RelPowers      = "powers"
	RelControls    = "controls"
	RelCools       = "cools"
	RelLubricates  = "lubricates"
	RelAlternative = "alternative"
	RelParallel    = "parallel"
)

// GraphStore is the graph-query collaborator, owned by external storage.
type GraphStore interface {
	Upstream(ctx context.Context, equipmentID string) ([]neo4j.DependencyEdge, error)
	Downstream(ctx context.Context, equipmentID string) ([]neo4j.DependencyEdge, error)
}

// HierarchyStore lists descendant equipment of a node.
type HierarchyStore interface {
	Descendants(ctx context.Context, equipmentID string) ([]neo4j.HierarchyNode, error)
}

// DependencyContext holds the equipment relationships relevant to one
// query. Computed per request, never cached here.
type DependencyContext struct {
	EquipmentName string
	Upstream      []neo4j.DependencyEdge
	Downstream    []neo4j.DependencyEdge
}

// Empty reports whether no edges were found in either direction.
func (dc *DependencyContext) Empty() bool {
	return dc == nil || (len(dc.Upstream) == 0 && len(dc.Downstream) == 0)
}

// Summary renders the context as a single readable block: upstream list,
// arrow, current equipment marker, downstream list.
func (dc *DependencyContext) Summary() string {
	if dc.Empty() {
		return ""
	}

	var b strings.Builder
	b.WriteString("Dependency context:\n")

	if len(dc.Upstream) > 0 {
		b.WriteString("Upstream (feeds into this equipment):\n")
		for _, e := range dc.Upstream {
			fmt.Fprintf(&b, "  - %s (%s, criticality: %s)\n", e.Name, e.RelationshipType, e.Criticality)
		}
	}

	fmt.Fprintf(&b, "  → [%s]\n", dc.EquipmentName)

	if len(dc.Downstream) > 0 {
		b.WriteString("Downstream (depends on this equipment):\n")
		for _, e := range dc.Downstream {
			fmt.Fprintf(&b, "  - %s (%s, criticality: %s)\n", e.Name, e.RelationshipType, e.Criticality)
		}
	}

	return b.String()
}

// HierarchyContext groups descendant equipment by hierarchy level.
type HierarchyContext struct {
	EquipmentName string
	ByLevel       map[string][]neo4j.HierarchyNode
}

func (hc *HierarchyContext) Empty() bool {
	return hc == nil || len(hc.ByLevel) == 0
}

// Summary renders descendants grouped by level, lines before subsystems
// before equipment before components.
func (hc *HierarchyContext) Summary() string {
	if hc.Empty() {
		return ""
	}

	levelOrder := []string{"line", "subsystem", "equipment", "component"}

	var b strings.Builder
	fmt.Fprintf(&b, "Equipment under %s:\n", hc.EquipmentName)
	for _, level := range levelOrder {
		nodes := hc.ByLevel[level]
		if len(nodes) == 0 {
			continue
		}
		names := make([]string, 0, len(nodes))
		for _, n := range nodes {
			names = append(names, n.Name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "  %s: %s\n", level, strings.Join(names, ", "))
	}
	return b.String()
}

type Builder struct {
	graph     GraphStore
	hierarchy HierarchyStore
}

func NewBuilder(graph GraphStore, hierarchy HierarchyStore) *Builder {
	return &Builder{graph: graph, hierarchy: hierarchy}
}

// Build fetches upstream and downstream edges for the equipment. It only
// activates for troubleshooting intent or when the search strategy asks
// for dependencies; otherwise it returns an empty context without
// touching the graph. A failed direction yields partial results; Build
// never fails the request.
func (b *Builder) Build(ctx context.Context, equipmentID, equipmentName string, qa *analysis.QueryAnalysis) *DependencyContext {
	dc := &DependencyContext{EquipmentName: equipmentName}

	if qa == nil {
		return dc
	}
	if qa.Intent != analysis.IntentTroubleshooting && !qa.SearchStrategy.Dependencies {
		return dc
	}
	if b.graph == nil {
		return dc
	}

	upstream, err := b.graph.Upstream(ctx, equipmentID)
	if err != nil {
		logger.Warn("Upstream dependency query failed",
			zap.String("equipment_id", equipmentID),
			zap.Error(err),
		)
	} else {
		dc.Upstream = upstream
	}

	downstream, err := b.graph.Downstream(ctx, equipmentID)
	if err != nil {
		logger.Warn("Downstream dependency query failed",
			zap.String("equipment_id", equipmentID),
			zap.Error(err),
		)
	} else {
		dc.Downstream = downstream
	}

	return dc
}

// BuildHierarchy fetches and groups descendants of a non-leaf node.
// Failures yield an empty context; hierarchy is optional enrichment.
func (b *Builder) BuildHierarchy(ctx context.Context, equipmentID, equipmentName string) *HierarchyContext {
	hc := &HierarchyContext{EquipmentName: equipmentName}

	if b.hierarchy == nil {
		return hc
	}

	nodes, err := b.hierarchy.Descendants(ctx, equipmentID)
	if err != nil {
		logger.Warn("Hierarchy query failed",
			zap.String("equipment_id", equipmentID),
			zap.Error(err),
		)
		return hc
	}
	if len(nodes) == 0 {
		return hc
	}

	hc.ByLevel = make(map[string][]neo4j.HierarchyNode)
	for _, n := range nodes {
		level := n.Level
		if level == "" {
			level = "equipment"
		}
		hc.ByLevel[level] = append(hc.ByLevel[level], n)
	}

	return hc
}
