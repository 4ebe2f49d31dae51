// Package milvus owns the document-chunk vector collection. Chunks are
// scoped by equipment id; search uses inner-product similarity so scores
// are directly comparable against the retrieval floors.
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/atlas-gmao/backend/pkg/logger"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

type DocumentChunk struct {
	ID            string
	Embedding     []float32
	Text          string
	EquipmentID   string
	DocTitle      string
	PageReference string
	ChunkIndex    int
	Timestamp     time.Time
}

type SearchHit struct {
	ChunkID       string
	Text          string
	DocTitle      string
	PageReference string
	Score         float32
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CreateCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Equipment manual chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.vectorDim)},
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"},
			},
			{
				Name:       "equipment_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "doc_title",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "page_reference",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "timestamp",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, _ := entity.NewIndexIvfFlat(entity.IP, 1024)
	if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Insert(ctx context.Context, chunks []DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	texts := make([]string, len(chunks))
	equipmentIDs := make([]string, len(chunks))
	docTitles := make([]string, len(chunks))
	pageRefs := make([]string, len(chunks))
	chunkIndexes := make([]int64, len(chunks))
	timestamps := make([]int64, len(chunks))

	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ID
		embeddings[i] = chunk.Embedding
		texts[i] = chunk.Text
		equipmentIDs[i] = chunk.EquipmentID
		docTitles[i] = chunk.DocTitle
		pageRefs[i] = chunk.PageReference
		chunkIndexes[i] = int64(chunk.ChunkIndex)
		timestamps[i] = chunk.Timestamp.Unix()
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("equipment_id", equipmentIDs),
		entity.NewColumnVarChar("doc_title", docTitles),
		entity.NewColumnVarChar("page_reference", pageRefs),
		entity.NewColumnInt64("chunk_index", chunkIndexes),
		entity.NewColumnInt64("timestamp", timestamps),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks inserted into vector DB", zap.Int("count", len(chunks)))

	return nil
}

// SearchChunks runs a similarity search scoped to one equipment. Hits
// below floor are dropped client-side.
func (m *Client) SearchChunks(ctx context.Context, equipmentID string, queryEmbedding []float32, floor float64, topK int) ([]SearchHit, error) {
	expr := ""
	if equipmentID != "" {
		expr = fmt.Sprintf(`equipment_id == "%s"`, strings.ReplaceAll(equipmentID, `"`, ""))
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"chunk_id", "text", "doc_title", "page_reference"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.IP,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]SearchHit, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			score := sr.Scores[i]
			if float64(score) < floor {
				continue
			}

			chunkID, _ := sr.Fields.GetColumn("chunk_id").Get(i)
			text, _ := sr.Fields.GetColumn("text").Get(i)
			docTitle, _ := sr.Fields.GetColumn("doc_title").Get(i)
			pageRef, _ := sr.Fields.GetColumn("page_reference").Get(i)

			hits = append(hits, SearchHit{
				ChunkID:       asString(chunkID),
				Text:          asString(text),
				DocTitle:      asString(docTitle),
				PageReference: asString(pageRef),
				Score:         score,
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.String("equipment_id", equipmentID),
		zap.Int("topK", topK),
		zap.Float64("floor", floor),
		zap.Int("hits", len(hits)),
	)

	return hits, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
