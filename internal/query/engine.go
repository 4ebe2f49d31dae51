// Package query runs the full pipeline for one support question: alias
// rewrite, analysis, dependency context, multi-source retrieval, prompt
// assembly and completion.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-gmao/backend/internal/alias"
	"github.com/atlas-gmao/backend/internal/analysis"
	"github.com/atlas-gmao/backend/internal/cache/redis"
	"github.com/atlas-gmao/backend/internal/kg/depgraph"
	"github.com/atlas-gmao/backend/internal/llm"
	"github.com/atlas-gmao/backend/internal/metrics"
	"github.com/atlas-gmao/backend/internal/prompt"
	"github.com/atlas-gmao/backend/internal/retrieval"
	"github.com/atlas-gmao/backend/internal/storage/models"
	"github.com/atlas-gmao/backend/internal/storage/sqlite"
	"github.com/atlas-gmao/backend/pkg/logger"
	"github.com/atlas-gmao/backend/pkg/utils"
)

var (
	ErrEmptyQuery  = errors.New("query text is required")
	ErrNoEquipment = errors.New("no equipment identified for query")
)

const answerTTL = time.Hour

type Engine struct {
	db         *sqlite.Client
	resolver   *alias.Resolver
	analyzer   *analysis.Analyzer
	depBuilder *depgraph.Builder
	retriever  *retrieval.Retriever
	llmClient  *llm.Client
	cache      *redis.Client
}

type Request struct {
	Query       string
	EquipmentID string
	UserID      string
	MaxResults  int
}

type Response struct {
	ID        string                  `json:"id"`
	Query     string                  `json:"query"`
	Rewritten string                  `json:"rewritten_query,omitempty"`
	Answer    string                  `json:"answer"`
	Analysis  *analysis.QueryAnalysis `json:"analysis"`
	Aliases   []alias.Resolved        `json:"resolved_aliases,omitempty"`
	Sources   []retrieval.Result      `json:"sources"`
	LatencyMS int                     `json:"latency_ms"`
}

func NewEngine(db *sqlite.Client, resolver *alias.Resolver, analyzer *analysis.Analyzer, depBuilder *depgraph.Builder, retriever *retrieval.Retriever, llmClient *llm.Client, cache *redis.Client) *Engine {
	return &Engine{
		db:         db,
		resolver:   resolver,
		analyzer:   analyzer,
		depBuilder: depBuilder,
		retriever:  retriever,
		llmClient:  llmClient,
		cache:      cache,
	}
}

func (e *Engine) ProcessQuery(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()
	queryID := uuid.New().String()

	if strings.TrimSpace(req.Query) == "" {
		metrics.QueryTotal.WithLabelValues("invalid").Inc()
		return nil, ErrEmptyQuery
	}

	logger.Info("Processing query",
		zap.String("query_id", queryID),
		zap.String("query", req.Query),
		zap.String("equipment_id", req.EquipmentID),
	)

	rewritten, resolved := e.resolver.RewriteQuery(ctx, req.Query)
	metrics.AliasMatches.Observe(float64(len(resolved)))

	equipmentID := req.EquipmentID
	if equipmentID == "" && len(resolved) > 0 {
		equipmentID = resolved[0].EquipmentID
	}
	if equipmentID == "" {
		metrics.QueryTotal.WithLabelValues("invalid").Inc()
		return nil, ErrNoEquipment
	}

	equipment, err := e.db.GetEquipment(equipmentID)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("unknown equipment %s: %w", equipmentID, err)
	}

	cacheKey := utils.HashString(equipmentID + "\x00" + req.Query)
	if e.cache != nil {
		var cached Response
		if ok, err := e.cache.GetAnswer(ctx, cacheKey, &cached); err == nil && ok {
			logger.Info("Answer served from cache", zap.String("query_id", queryID))
			metrics.QueryTotal.WithLabelValues("cached").Inc()
			cached.ID = queryID
			return &cached, nil
		}
	}

	equipCtx := e.buildEquipmentContext(equipment)

	qa, err := e.analyzer.Analyze(ctx, rewritten, equipCtx)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("query analysis failed: %w", err)
	}
	metrics.IntentTotal.WithLabelValues(string(qa.Intent), string(qa.Urgency)).Inc()
	metrics.ConfidenceScore.Observe(qa.Confidence)

	depCtx := e.depBuilder.Build(ctx, equipment.ID, equipment.Name, qa)

	results, err := e.retriever.Retrieve(ctx, retrieval.Target{ID: equipment.ID, Name: equipment.Name}, rewritten, qa, depCtx, req.MaxResults)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	observeSources(results)

	systemPrompt, err := prompt.Assemble(prompt.Input{
		Equipment: prompt.EquipmentInfo{
			Name:     equipment.Name,
			Category: equipment.Category,
			Level:    equipment.Level,
		},
		Analysis:         qa,
		Results:          results,
		HierarchySummary: hierarchySummary(results),
	})
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("prompt assembly failed: %w", err)
	}

	completion, err := e.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   req.Query,
	})
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	metrics.LLMTokensUsed.WithLabelValues("chat", "prompt").Add(float64(completion.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues("chat", "completion").Add(float64(completion.Usage.CompletionTokens))

	latency := int(time.Since(startTime).Milliseconds())

	response := &Response{
		ID:        queryID,
		Query:     req.Query,
		Rewritten: rewritten,
		Answer:    completion.Content,
		Analysis:  qa,
		Aliases:   resolved,
		Sources:   results,
		LatencyMS: latency,
	}

	e.recordQuery(queryID, req, equipment.ID, rewritten, qa, completion.Content, results, latency)

	if e.cache != nil {
		if err := e.cache.SetAnswer(ctx, cacheKey, response, answerTTL); err != nil {
			logger.Debug("Answer cache store failed", zap.Error(err))
		}
	}

	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.QueryDuration.WithLabelValues(string(qa.Intent)).Observe(time.Since(startTime).Seconds())

	logger.Info("Query processed",
		zap.String("query_id", queryID),
		zap.String("intent", string(qa.Intent)),
		zap.Int("results", len(results)),
		zap.Int("latency_ms", latency),
	)

	return response, nil
}

func (e *Engine) buildEquipmentContext(equipment *models.Equipment) analysis.EquipmentContext {
	equipCtx := analysis.EquipmentContext{
		Name:     equipment.Name,
		Level:    equipment.Level,
		Category: equipment.Category,
	}

	if children, err := e.db.ListChildNames(equipment.ID); err != nil {
		logger.Warn("Failed to list child equipment", zap.Error(err))
	} else {
		equipCtx.Children = children
	}

	if aliases, err := e.db.ListAliasTexts(equipment.ID); err != nil {
		logger.Warn("Failed to list equipment aliases", zap.Error(err))
	} else {
		equipCtx.Aliases = aliases
	}

	return equipCtx
}

// recordQuery persists the query and its sources; history is best-effort
// and never fails the request.
func (e *Engine) recordQuery(queryID string, req Request, equipmentID, rewritten string, qa *analysis.QueryAnalysis, answer string, results []retrieval.Result, latency int) {
	record := &models.QueryRecord{
		ID:            queryID,
		UserID:        req.UserID,
		EquipmentID:   equipmentID,
		QueryText:     req.Query,
		RewrittenText: rewritten,
		Intent:        string(qa.Intent),
		Urgency:       string(qa.Urgency),
		Response:      answer,
		Confidence:    qa.Confidence,
		ResultsCount:  len(results),
		LatencyMS:     latency,
		CreatedAt:     time.Now(),
	}
	if err := e.db.InsertQueryRecord(record); err != nil {
		logger.Warn("Failed to record query", zap.Error(err))
		return
	}

	for _, res := range results {
		source := &models.QuerySource{
			QueryID:    queryID,
			SourceType: res.SourceType,
			Equipment:  res.OriginEquipment,
			PageRef:    res.PageReference,
			Similarity: res.Similarity,
		}
		if err := e.db.InsertQuerySource(source); err != nil {
			logger.Warn("Failed to record query source", zap.Error(err))
		}
	}
}

// hierarchySummary lifts the hierarchy block out of the merged results
// so the assembler can place it in the prompt header.
func hierarchySummary(results []retrieval.Result) string {
	for _, r := range results {
		if r.SourceType == retrieval.SourceHierarchySummary {
			return r.Content
		}
	}
	return ""
}

func observeSources(results []retrieval.Result) {
	counts := make(map[string]int)
	for _, r := range results {
		counts[r.SourceType]++
	}
	for source, n := range counts {
		metrics.RetrievalResults.WithLabelValues(source).Observe(float64(n))
	}
}
