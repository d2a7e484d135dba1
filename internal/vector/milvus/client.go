package milvus

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/onboard-agent/backend/internal/rag"
	"github.com/onboard-agent/backend/pkg/logger"
)

var metadataFields = []string{"document_id", "department", "doc_type", "source"}

var outputFields = append([]string{"chunk_id", "content", "indexed_at"}, metadataFields...)

// Client exposes the onboarding segment collection as a vector index:
// ANN search with metadata filters, a raw metadata scan that works
// without embeddings, delete by filter, and collection stats.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

type SegmentRecord struct {
	ChunkID    string
	Embedding  []float32
	Content    string
	DocumentID string
	Department string
	DocType    string
	Source     string
	IndexedAt  time.Time
}

func NewClient(endpoint, collectionName string, vectorDim int) (*Client, error) {
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

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnsureCollection(ctx context.Context) error {
	has, err := c.client.HasCollection(ctx, c.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: c.collectionName,
		Description:    "Onboarding documentation segments",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(c.vectorDim)},
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "department",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "doc_type",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "source",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:     "indexed_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := c.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := c.client.CreateIndex(ctx, c.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := c.client.LoadCollection(ctx, c.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", c.collectionName))
	return nil
}

func (c *Client) Insert(ctx context.Context, records []SegmentRecord) error {
	if len(records) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	contents := make([]string, len(records))
	documentIDs := make([]string, len(records))
	departments := make([]string, len(records))
	docTypes := make([]string, len(records))
	sources := make([]string, len(records))
	indexedAt := make([]int64, len(records))

	for i, rec := range records {
		chunkIDs[i] = rec.ChunkID
		embeddings[i] = rec.Embedding
		contents[i] = rec.Content
		documentIDs[i] = rec.DocumentID
		departments[i] = rec.Department
		docTypes[i] = rec.DocType
		sources[i] = rec.Source
		indexedAt[i] = rec.IndexedAt.Unix()
	}

	_, err := c.client.Insert(
		ctx,
		c.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", c.vectorDim, embeddings),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("document_id", documentIDs),
		entity.NewColumnVarChar("department", departments),
		entity.NewColumnVarChar("doc_type", docTypes),
		entity.NewColumnVarChar("source", sources),
		entity.NewColumnInt64("indexed_at", indexedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert segments: %w", err)
	}

	if err := c.client.Flush(ctx, c.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Segments inserted", zap.Int("count", len(records)))
	return nil
}

func (c *Client) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]rag.Segment, error) {
	expr := equalityExpr(filter)

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	results, err := c.client.Search(
		ctx,
		c.collectionName,
		[]string{},
		expr,
		outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		"embedding",
		entity.COSINE,
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	segments := make([]rag.Segment, 0)
	for _, sr := range results {
		for i := 0; i < sr.ResultCount; i++ {
			seg, err := segmentAt(sr.Fields, i)
			if err != nil {
				return nil, err
			}
			seg.Score = sr.Scores[i]
			segments = append(segments, seg)
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("k", k),
		zap.Int("results", len(segments)),
		zap.String("filter", expr),
	)

	return segments, nil
}

// Scan retrieves segments purely by metadata filter, newest indexed
// first. No embedding is computed, so the path survives an
// embedding-service outage.
func (c *Client) Scan(ctx context.Context, filter map[string][]string, limit int) ([]rag.Segment, error) {
	expr := membershipExpr(filter)

	rs, err := c.client.Query(
		ctx,
		c.collectionName,
		[]string{},
		expr,
		outputFields,
		client.WithLimit(int64(limit*4)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}

	count := 0
	if len(rs) > 0 {
		count = rs[0].Len()
	}

	type scanned struct {
		seg       rag.Segment
		indexedAt int64
	}
	rows := make([]scanned, 0, count)
	for i := 0; i < count; i++ {
		seg, err := segmentAt(rs, i)
		if err != nil {
			return nil, err
		}
		ts := int64(0)
		if col := rs.GetColumn("indexed_at"); col != nil {
			if v, err := col.GetAsInt64(i); err == nil {
				ts = v
			}
		}
		rows = append(rows, scanned{seg: seg, indexedAt: ts})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].indexedAt > rows[j].indexedAt })
	if len(rows) > limit {
		rows = rows[:limit]
	}

	segments := make([]rag.Segment, 0, len(rows))
	for _, row := range rows {
		segments = append(segments, row.seg)
	}

	logger.Debug("Metadata scan completed", zap.String("filter", expr), zap.Int("results", len(segments)))
	return segments, nil
}

func (c *Client) Delete(ctx context.Context, filter map[string]string) error {
	expr := equalityExpr(filter)
	if expr == "" {
		return fmt.Errorf("refusing to delete without a filter")
	}
	if err := c.client.Delete(ctx, c.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete segments: %w", err)
	}
	logger.Info("Segments deleted", zap.String("filter", expr))
	return nil
}

func (c *Client) Stats(ctx context.Context) (rag.IndexStats, error) {
	stats, err := c.client.GetCollectionStatistics(ctx, c.collectionName)
	if err != nil {
		return rag.IndexStats{}, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	rowCount, _ := strconv.ParseInt(stats["row_count"], 10, 64)
	return rag.IndexStats{Collection: c.collectionName, Segments: rowCount}, nil
}

func segmentAt(fields client.ResultSet, i int) (rag.Segment, error) {
	contentCol := fields.GetColumn("content")
	if contentCol == nil {
		return rag.Segment{}, fmt.Errorf("result set missing content column")
	}
	content, err := contentCol.GetAsString(i)
	if err != nil {
		return rag.Segment{}, fmt.Errorf("failed to read content: %w", err)
	}

	metadata := make(map[string]string, len(metadataFields))
	for _, name := range metadataFields {
		col := fields.GetColumn(name)
		if col == nil {
			continue
		}
		if v, err := col.GetAsString(i); err == nil && v != "" {
			metadata[name] = v
		}
	}

	return rag.Segment{Content: content, Metadata: metadata}, nil
}

func equalityExpr(filter map[string]string) string {
	if len(filter) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	terms := make([]string, 0, len(keys))
	for _, k := range keys {
		terms = append(terms, fmt.Sprintf(`%s == "%s"`, k, filter[k]))
	}
	return strings.Join(terms, " && ")
}

func membershipExpr(filter map[string][]string) string {
	if len(filter) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	terms := make([]string, 0, len(keys))
	for _, k := range keys {
		values := filter[k]
		quoted := make([]string, 0, len(values))
		for _, v := range values {
			quoted = append(quoted, fmt.Sprintf("%q", v))
		}
		terms = append(terms, fmt.Sprintf("%s in [%s]", k, strings.Join(quoted, ", ")))
	}
	return strings.Join(terms, " && ")
}
