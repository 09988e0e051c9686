package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/docchat/internal/chunker"
	"github.com/kalambet/docchat/internal/retrieval"
	"github.com/kalambet/docchat/internal/storage"
)

type fakeFileStore struct {
	files    map[string]storage.File
	statuses map[string]string
	counts   map[string]int
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{
		files:    make(map[string]storage.File),
		statuses: make(map[string]string),
		counts:   make(map[string]int),
	}
}

func (f *fakeFileStore) GetFile(id string) (storage.File, error) {
	file, ok := f.files[id]
	if !ok {
		return storage.File{}, storage.ErrNotFound
	}
	return file, nil
}

func (f *fakeFileStore) UpdateFileStatus(id, status string, chunkCount int) error {
	f.statuses[id] = status
	f.counts[id] = chunkCount
	return nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 1}
	}
	return vectors, nil
}

type fakeVectorWriter struct {
	inserted  []retrieval.Record
	deleted   []string
	insertErr error
}

func (f *fakeVectorWriter) Insert(records []retrieval.Record) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, records...)
	return nil
}

func (f *fakeVectorWriter) DeleteByFile(fileID string) error {
	f.deleted = append(f.deleted, fileID)
	return nil
}

func setupIngestor(t *testing.T, content string) (*Ingestor, *fakeFileStore, *fakeVectorWriter) {
	t.Helper()
	dir := t.TempDir()
	store := newFakeFileStore()
	store.files["f1"] = storage.File{ID: "f1", Filename: "notes.txt", Extension: ".txt"}
	if err := os.WriteFile(filepath.Join(dir, "f1.txt"), []byte(content), 0o600); err != nil {
		t.Fatalf("writing blob: %v", err)
	}
	vectors := &fakeVectorWriter{}
	in := NewIngestor(store, &fakeEmbedder{}, vectors, chunker.New(50, 10), dir)
	return in, store, vectors
}

func TestIngestFile_Success(t *testing.T) {
	in, store, vectors := setupIngestor(t, strings.Repeat("some words here ", 20))

	if err := in.IngestFile(context.Background(), "f1"); err != nil {
		t.Fatalf("IngestFile: %v", err)
	}

	if store.statuses["f1"] != storage.FileStatusReady {
		t.Errorf("status = %q, want ready", store.statuses["f1"])
	}
	if len(vectors.inserted) == 0 {
		t.Fatal("no vectors inserted")
	}
	if store.counts["f1"] != len(vectors.inserted) {
		t.Errorf("chunk count %d, inserted %d", store.counts["f1"], len(vectors.inserted))
	}
	for i, r := range vectors.inserted {
		if r.FileID != "f1" || r.Position != i {
			t.Errorf("record %d = %+v", i, r)
		}
		if len(r.Embedding) == 0 {
			t.Errorf("record %d missing embedding", i)
		}
	}
	// Previous vectors cleared before insert.
	if len(vectors.deleted) != 1 || vectors.deleted[0] != "f1" {
		t.Errorf("deleted = %v", vectors.deleted)
	}
}

func TestIngestFile_EmptyFile(t *testing.T) {
	in, store, vectors := setupIngestor(t, "   \n\n  ")

	if err := in.IngestFile(context.Background(), "f1"); err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if store.statuses["f1"] != storage.FileStatusEmpty {
		t.Errorf("status = %q, want empty", store.statuses["f1"])
	}
	if len(vectors.inserted) != 0 {
		t.Errorf("vectors inserted for empty file: %d", len(vectors.inserted))
	}
}

func TestIngestFile_ExtractionFailure(t *testing.T) {
	dir := t.TempDir()
	store := newFakeFileStore()
	store.files["f1"] = storage.File{ID: "f1", Filename: "gone.txt", Extension: ".txt"}
	in := NewIngestor(store, &fakeEmbedder{}, &fakeVectorWriter{}, chunker.New(50, 10), dir)

	err := in.IngestFile(context.Background(), "f1")
	if !errors.Is(err, ErrIngestion) {
		t.Errorf("err = %v, want ErrIngestion", err)
	}
	if store.statuses["f1"] != storage.FileStatusFailed {
		t.Errorf("status = %q, want failed", store.statuses["f1"])
	}
}

func TestIngestFile_EmbeddingFailure(t *testing.T) {
	dir := t.TempDir()
	store := newFakeFileStore()
	store.files["f1"] = storage.File{ID: "f1", Filename: "notes.txt", Extension: ".txt"}
	if err := os.WriteFile(filepath.Join(dir, "f1.txt"), []byte("some text to chunk"), 0o600); err != nil {
		t.Fatalf("writing blob: %v", err)
	}
	vectors := &fakeVectorWriter{}
	embedErr := errors.New("model not loaded")
	in := NewIngestor(store, &fakeEmbedder{err: embedErr}, vectors, chunker.New(50, 10), dir)

	err := in.IngestFile(context.Background(), "f1")
	if !errors.Is(err, ErrIngestion) || !errors.Is(err, embedErr) {
		t.Errorf("err = %v, want ErrIngestion wrapping %v", err, embedErr)
	}
	if store.statuses["f1"] != storage.FileStatusFailed {
		t.Errorf("status = %q, want failed", store.statuses["f1"])
	}
	if len(vectors.inserted) != 0 || len(vectors.deleted) != 0 {
		t.Error("vector store touched after embedding failure")
	}
}

func TestIngestFile_UnknownFile(t *testing.T) {
	in := NewIngestor(newFakeFileStore(), &fakeEmbedder{}, &fakeVectorWriter{}, chunker.New(50, 10), t.TempDir())

	if err := in.IngestFile(context.Background(), "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
