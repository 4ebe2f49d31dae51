// Package neo4j owns the equipment dependency graph and the physical
// hierarchy. Process-flow edges are (source)-[:FLOWS_TO]->(target) with a
// relationship type (feeds, powers, controls, cools, lubricates,
// alternative, parallel) and a criticality tier; hierarchy containment is
// (child)-[:PART_OF]->(parent).
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/atlas-gmao/backend/pkg/circuitbreaker"
	"github.com/atlas-gmao/backend/pkg/logger"
	"github.com/atlas-gmao/backend/pkg/retry"
)

// maxHierarchyDepth bounds descendant traversal so a malformed or cyclic
// hierarchy cannot make the query unbounded.
const maxHierarchyDepth = 4

type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

// DependencyEdge is one directional process-flow relationship.
type DependencyEdge struct {
	ID               string
	Name             string
	RelationshipType string
	Criticality      string
}

// HierarchyNode is one descendant in the equipment hierarchy.
type HierarchyNode struct {
	ID    string
	Name  string
	Level string
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

// Upstream returns the equipment whose process flow feeds equipmentID.
func (c *Client) Upstream(ctx context.Context, equipmentID string) ([]DependencyEdge, error) {
	query := `
		MATCH (u:Equipment)-[r:FLOWS_TO]->(e:Equipment {id: $id})
		RETURN u.id AS id, u.name AS name, r.type AS type, r.criticality AS criticality
		ORDER BY r.criticality, u.name
	`
	return c.queryEdges(ctx, query, equipmentID)
}

// Downstream returns the equipment that depends on equipmentID.
func (c *Client) Downstream(ctx context.Context, equipmentID string) ([]DependencyEdge, error) {
	query := `
		MATCH (e:Equipment {id: $id})-[r:FLOWS_TO]->(d:Equipment)
		RETURN d.id AS id, d.name AS name, r.type AS type, r.criticality AS criticality
		ORDER BY r.criticality, d.name
	`
	return c.queryEdges(ctx, query, equipmentID)
}

func (c *Client) queryEdges(ctx context.Context, query, equipmentID string) ([]DependencyEdge, error) {
	var edges []DependencyEdge

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, query, map[string]interface{}{
			"id": equipmentID,
		})
		if err != nil {
			return fmt.Errorf("failed to query dependency edges: %w", err)
		}

		for result.Next(ctx) {
			record := result.Record()
			edges = append(edges, DependencyEdge{
				ID:               stringValue(record, "id"),
				Name:             stringValue(record, "name"),
				RelationshipType: stringValue(record, "type"),
				Criticality:      stringValue(record, "criticality"),
			})
		}
		if err = result.Err(); err != nil {
			return fmt.Errorf("error iterating dependency edges: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	logger.Debug("Dependency edges fetched",
		zap.String("equipment_id", equipmentID),
		zap.Int("edges", len(edges)),
	)

	return edges, nil
}

// Descendants returns every node under equipmentID in the hierarchy, to
// maxHierarchyDepth levels.
func (c *Client) Descendants(ctx context.Context, equipmentID string) ([]HierarchyNode, error) {
	query := fmt.Sprintf(`
		MATCH (root:Equipment {id: $id})<-[:PART_OF*1..%d]-(desc:Equipment)
		RETURN DISTINCT desc.id AS id, desc.name AS name, desc.level AS level
		ORDER BY desc.level, desc.name
	`, maxHierarchyDepth)

	var nodes []HierarchyNode

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, query, map[string]interface{}{
			"id": equipmentID,
		})
		if err != nil {
			return fmt.Errorf("failed to query descendants: %w", err)
		}

		for result.Next(ctx) {
			record := result.Record()
			nodes = append(nodes, HierarchyNode{
				ID:    stringValue(record, "id"),
				Name:  stringValue(record, "name"),
				Level: stringValue(record, "level"),
			})
		}
		if err = result.Err(); err != nil {
			return fmt.Errorf("error iterating descendants: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	logger.Debug("Descendants fetched",
		zap.String("equipment_id", equipmentID),
		zap.Int("nodes", len(nodes)),
	)

	return nodes, nil
}

// CreateEquipmentNode upserts an equipment node; used when records are
// synchronized from the relational store.
func (c *Client) CreateEquipmentNode(ctx context.Context, id, name, level string, parentID string) error {
	return c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, `
			MERGE (e:Equipment {id: $id})
			SET e.name = $name, e.level = $level, e.updated_at = timestamp()
		`, map[string]interface{}{
			"id":    id,
			"name":  name,
			"level": level,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert equipment node: %w", err)
		}

		if parentID != "" {
			_, err = session.Run(ctx, `
				MATCH (e:Equipment {id: $id})
				MATCH (p:Equipment {id: $parent})
				MERGE (e)-[:PART_OF]->(p)
			`, map[string]interface{}{
				"id":     id,
				"parent": parentID,
			})
			if err != nil {
				return fmt.Errorf("failed to link parent: %w", err)
			}
		}
		return nil
	})
}

// CreateDependency upserts a process-flow edge between two equipment.
func (c *Client) CreateDependency(ctx context.Context, sourceID, targetID, relationshipType, criticality string) error {
	return c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, `
			MATCH (s:Equipment {id: $source})
			MATCH (t:Equipment {id: $target})
			MERGE (s)-[r:FLOWS_TO]->(t)
			SET r.type = $type, r.criticality = $criticality, r.updated_at = timestamp()
		`, map[string]interface{}{
			"source":      sourceID,
			"target":      targetID,
			"type":        relationshipType,
			"criticality": criticality,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert dependency: %w", err)
		}
		return nil
	})
}

func stringValue(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
