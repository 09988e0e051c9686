package retrieval

import "time"

// VectorStore is the interface for chunk vector storage and similarity
// search. The default implementation uses SQLite with brute-force cosine
// similarity, which stays exact (not approximate) and is comfortably fast
// for per-user document libraries; revisit with an ANN-capable backend only
// past roughly 100K vectors.
//
// Semantics all implementations must honor:
//   - Insert replaces entries with matching chunk ids, so re-ingesting a
//     file overwrites its vectors instead of duplicating them.
//   - After Delete/DeleteByFile return, the removed ids are not returned by
//     any subsequently started Query.
//   - Query ranks by cosine similarity descending, breaking ties by
//     ascending chunk position and then chunk id, restricted to fileIDs when
//     non-nil. Zero matching vectors yields an empty result, never an error.
type VectorStore interface {
	// Insert adds or replaces chunk records. All-or-nothing: on error no
	// record of the batch is visible.
	Insert(records []Record) error

	// Delete removes a single chunk by id. Missing ids are not an error.
	Delete(chunkID string) error

	// DeleteByFile removes every chunk derived from the given file.
	DeleteByFile(fileID string) error

	// Query returns at most topK records ranked by descending similarity to
	// vector, restricted to chunks of fileIDs when fileIDs is non-nil.
	Query(vector []float32, topK int, fileIDs []string) ([]ScoredRecord, error)

	// Count returns the number of stored chunk records.
	Count() (int, error)
}

// Record is a stored chunk with its embedding.
type Record struct {
	ChunkID   string
	FileID    string
	Position  int
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
