package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/Lllllllleong/documentverification/internal/models"
)

const (
	defaultChunkSize    = 350
	defaultChunkOverlap = 50
	defaultEmbedBatch   = 50
	defaultSearchTopK   = 12

	chunkEmbeddingField = "embedding"
	chunkDistanceField  = "distance"
)

// Embedder turns texts into vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type IndexerConfig struct {
	Collection   string
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

// Indexer keeps a per-user similarity index of bank statement chunks in a
// Firestore collection with a vector field.
type Indexer struct {
	client   *firestore.Client
	embedder Embedder
	config   IndexerConfig
}

func NewIndexer(client *firestore.Client, embedder Embedder, config IndexerConfig) *Indexer {
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaultChunkSize
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = defaultChunkOverlap
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultEmbedBatch
	}
	return &Indexer{client: client, embedder: embedder, config: config}
}

// Index replaces the user's chunks with the chunks of the given statement
// and returns how many were written.
func (ix *Indexer) Index(ctx context.Context, userID string, statement []byte) (int, error) {
	const op = "Index"
	if err := validateUserID(op, userID); err != nil {
		return 0, err
	}
	logCtx := slog.With("userId", userID, "collection", ix.config.Collection)

	pages, err := ReadPages(statement)
	if err != nil {
		return 0, err
	}
	var chunks []string
	for _, page := range pages {
		chunks = append(chunks, ChunkText(page.Text, ix.config.ChunkSize, ix.config.ChunkOverlap)...)
	}

	removed, err := ix.deleteChunks(ctx, userID)
	if err != nil {
		logCtx.Error("Failed to remove previous chunks", "error", err)
		return 0, errs.Wrap(errs.KindStore, op, err, "failed to remove previous chunks")
	}
	logCtx.Info("Removed previous chunks.", "count", removed)

	createdAt := time.Now().UTC()
	for start := 0; start < len(chunks); start += ix.config.BatchSize {
		end := min(start+ix.config.BatchSize, len(chunks))
		vectors, err := ix.embedder.Embed(ctx, chunks[start:end])
		if err != nil {
			logCtx.Error("Embedding failed", "error", err, "batchStart", start)
			return 0, errs.Wrap(errs.KindModel, op, err, "failed to embed statement chunks")
		}
		if err := ix.writeBatch(ctx, userID, start, chunks[start:end], vectors, createdAt); err != nil {
			logCtx.Error("Failed to write chunk batch", "error", err, "batchStart", start)
			return 0, errs.Wrap(errs.KindStore, op, err, "failed to write statement chunks")
		}
	}
	logCtx.Info("Statement indexed.", "pages", len(pages), "chunks", len(chunks))
	return len(chunks), nil
}

func (ix *Indexer) writeBatch(ctx context.Context, userID string, offset int, texts []string, vectors [][]float32, createdAt time.Time) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(texts))
	}
	coll := ix.client.Collection(ix.config.Collection)
	bw := ix.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(texts))
	for i, text := range texts {
		chunkID := offset + i
		job, err := bw.Set(coll.Doc(fmt.Sprintf("%s_%05d", userID, chunkID)), map[string]any{
			"userId":            userID,
			"chunkId":           chunkID,
			"text":              text,
			"createdAt":         createdAt,
			chunkEmbeddingField: firestore.Vector32(vectors[i]),
		})
		if err != nil {
			bw.End()
			return err
		}
		jobs = append(jobs, job)
	}
	bw.End()
	return firstJobError(jobs)
}

func (ix *Indexer) deleteChunks(ctx context.Context, userID string) (int, error) {
	docs, err := ix.client.Collection(ix.config.Collection).
		Where("userId", "==", userID).
		Select().
		Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	bw := ix.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, d := range docs {
		job, err := bw.Delete(d.Ref)
		if err != nil {
			bw.End()
			return 0, err
		}
		jobs = append(jobs, job)
	}
	bw.End()
	return len(docs), firstJobError(jobs)
}

func firstJobError(jobs []*firestore.BulkWriterJob) error {
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return err
		}
	}
	return nil
}

// Search returns the user's chunks closest to query by cosine distance.
func (ix *Indexer) Search(ctx context.Context, userID, query string, topK int) ([]models.StatementChunk, error) {
	const op = "Search"
	if err := validateUserID(op, userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, errs.E(errs.KindInput, op, "query is empty")
	}
	if topK <= 0 {
		topK = defaultSearchTopK
	}

	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		if err == nil {
			err = fmt.Errorf("got %d vectors for 1 query", len(vectors))
		}
		return nil, errs.Wrap(errs.KindModel, op, err, "failed to embed query")
	}

	docs, err := ix.client.Collection(ix.config.Collection).
		Where("userId", "==", userID).
		FindNearest(chunkEmbeddingField, firestore.Vector32(vectors[0]), topK, firestore.DistanceMeasureCosine,
			&firestore.FindNearestOptions{DistanceResultField: chunkDistanceField}).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, op, err, "nearest-neighbour query failed")
	}

	results := make([]models.StatementChunk, 0, len(docs))
	for _, d := range docs {
		var chunk models.StatementChunk
		if err := d.DataTo(&chunk); err != nil {
			return nil, errs.Wrap(errs.KindStore, op, err, "failed to decode chunk "+d.Ref.ID)
		}
		if dist, ok := d.Data()[chunkDistanceField].(float64); ok {
			chunk.Distance = dist
		}
		results = append(results, chunk)
	}
	return results, nil
}

// ChunkText splits text into chunks of at most size runes, each starting
// overlap runes before the end of the previous one. Chunks end on whitespace
// when there is some in the second half of the window.
func ChunkText(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			for cut := end; cut > start+size/2; cut-- {
				if unicode.IsSpace(runes[cut]) {
					end = cut
					break
				}
			}
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		start = max(end-overlap, start+1)
	}
	return chunks
}
