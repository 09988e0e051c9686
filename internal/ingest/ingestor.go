// Package ingest turns uploaded files into searchable chunk vectors.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/kalambet/docchat/internal/chunker"
	"github.com/kalambet/docchat/internal/extract"
	"github.com/kalambet/docchat/internal/retrieval"
	"github.com/kalambet/docchat/internal/storage"
)

// ErrIngestion classifies failures of the ingestion pipeline. The file's
// status reflects the outcome; already-indexed chunks of other files are
// never affected.
var ErrIngestion = errors.New("ingestion failed")

// FileStore defines the storage operations the Ingestor needs.
type FileStore interface {
	GetFile(id string) (storage.File, error)
	UpdateFileStatus(id, status string, chunkCount int) error
}

// BatchEmbedder generates embeddings for batches of chunk texts.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorWriter is the slice of the vector store the Ingestor writes through.
type VectorWriter interface {
	Insert(records []retrieval.Record) error
	DeleteByFile(fileID string) error
}

// Ingestor runs the extract -> chunk -> embed -> index pipeline for a single
// file. Concurrent ingestion of different files proceeds in parallel;
// re-ingestion of the same file is serialized per file id.
type Ingestor struct {
	store    FileStore
	embedder BatchEmbedder
	vectors  VectorWriter
	chunker  *chunker.Chunker
	filesDir string
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIngestor creates an Ingestor. filesDir is where uploaded file blobs
// live, named <id><extension>.
func NewIngestor(store FileStore, embedder BatchEmbedder, vectors VectorWriter, c *chunker.Chunker, filesDir string) *Ingestor {
	return &Ingestor{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		chunker:  c,
		filesDir: filesDir,
		logger:   slog.Default(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// IngestFile processes one uploaded file end to end. The file's chunks
// become queryable all at once: vectors for the file are replaced inside a
// single transaction, so a failed run leaves either the previous index state
// or nothing, never a partial file. On success the file status is ready (or
// empty when extraction yields no text); on failure it is failed and the
// returned error matches ErrIngestion.
func (in *Ingestor) IngestFile(ctx context.Context, fileID string) error {
	lock := in.fileLock(fileID)
	lock.Lock()
	defer lock.Unlock()

	file, err := in.store.GetFile(fileID)
	if err != nil {
		return fmt.Errorf("loading file %s: %w", fileID, err)
	}

	if err := in.ingest(ctx, file); err != nil {
		if statusErr := in.store.UpdateFileStatus(fileID, storage.FileStatusFailed, 0); statusErr != nil {
			in.logger.Error("failed to mark file as failed", "file_id", fileID, "error", statusErr)
		}
		return errors.Join(ErrIngestion, err)
	}
	return nil
}

func (in *Ingestor) ingest(ctx context.Context, file storage.File) error {
	path := filepath.Join(in.filesDir, file.ID+file.Extension)
	text, err := extract.Text(path, file.Extension)
	if err != nil {
		return fmt.Errorf("extracting text from %s: %w", file.Filename, err)
	}

	chunks := in.chunker.Chunk(file.ID, text)
	if len(chunks) == 0 {
		in.logger.Info("file produced no chunks", "file_id", file.ID, "filename", file.Filename)
		return in.store.UpdateFileStatus(file.ID, storage.FileStatusEmpty, 0)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := in.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, c := range chunks {
		records[i] = retrieval.Record{
			ChunkID:   c.ID,
			FileID:    c.FileID,
			Position:  c.Position,
			Text:      c.Text,
			Embedding: vectors[i],
			CreatedAt: now,
		}
	}

	// Clear any previous vectors for this file so re-ingestion cannot leave
	// stale chunks behind a shrunken document.
	if err := in.vectors.DeleteByFile(file.ID); err != nil {
		return fmt.Errorf("clearing previous vectors: %w", err)
	}
	if err := in.vectors.Insert(records); err != nil {
		return fmt.Errorf("indexing chunks: %w", err)
	}

	if err := in.store.UpdateFileStatus(file.ID, storage.FileStatusReady, len(chunks)); err != nil {
		return fmt.Errorf("updating file status: %w", err)
	}

	in.logger.Info("file ingested", "file_id", file.ID, "filename", file.Filename, "chunks", len(chunks))
	return nil
}

func (in *Ingestor) fileLock(fileID string) *sync.Mutex {
	in.mu.Lock()
	defer in.mu.Unlock()
	lock, ok := in.locks[fileID]
	if !ok {
		lock = &sync.Mutex{}
		in.locks[fileID] = lock
	}
	return lock
}
