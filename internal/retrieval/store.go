package retrieval

import (
	"container/heap"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// Compile-time check that SQLiteStore implements VectorStore.
var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore provides chunk vector storage and brute-force cosine
// similarity search backed by SQLite. Embeddings are stored as little-endian
// float32 blobs in the chunk_vectors table (created via migrations).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB for vector operations.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Insert adds or replaces records in the chunk_vectors table. The batch is
// applied in a single transaction: either every chunk becomes queryable or
// none do.
func (s *SQLiteStore) Insert(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO chunk_vectors (chunk_id, file_id, position, text_chunk, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		blob := encodeFloat32s(r.Embedding)
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.Exec(r.ChunkID, r.FileID, r.Position, r.Text, blob, createdAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting record %s: %w", r.ChunkID, err)
		}
	}

	return tx.Commit()
}

// Delete removes a record by chunk id. Deleting an absent id is a no-op.
func (s *SQLiteStore) Delete(chunkID string) error {
	if _, err := s.db.Exec("DELETE FROM chunk_vectors WHERE chunk_id = ?", chunkID); err != nil {
		return fmt.Errorf("deleting record %s: %w", chunkID, err)
	}
	return nil
}

// DeleteByFile removes every chunk derived from fileID.
func (s *SQLiteStore) DeleteByFile(fileID string) error {
	if _, err := s.db.Exec("DELETE FROM chunk_vectors WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("deleting chunks for file %s: %w", fileID, err)
	}
	return nil
}

// Count returns the number of records in the chunk_vectors table.
func (s *SQLiteStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunk_vectors").Scan(&count)
	return count, err
}

// candidate holds the fields needed during the scan phase of Query; text and
// embeddings of non-winners are never materialized.
type candidate struct {
	ChunkID  string
	FileID   string
	Position int
	Score    float32
}

// Query performs brute-force cosine similarity search, restricted to the
// given file ids when fileIDs is non-nil, returning the topK best records.
// Ordering is score descending, then position ascending, then chunk id, so
// repeated queries over identical data return identical sequences.
func (s *SQLiteStore) Query(vector []float32, topK int, fileIDs []string) ([]ScoredRecord, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	// Phase 1: scan ids + embeddings (filtered in SQL) to find the winners.
	scanQuery := `SELECT chunk_id, file_id, position, embedding FROM chunk_vectors`
	var args []interface{}
	if fileIDs != nil {
		if len(fileIDs) == 0 {
			return nil, nil
		}
		scanQuery += ` WHERE file_id IN (?` + strings.Repeat(",?", len(fileIDs)-1) + `)`
		for _, id := range fileIDs {
			args = append(args, id)
		}
	}

	rows, err := s.db.Query(scanQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &candidateHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var c candidate
		var blob []byte
		if err := rows.Scan(&c.ChunkID, &c.FileID, &c.Position, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", c.ChunkID, err)
		}

		c.Score = dotProduct(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, c)
		} else if ranksBefore(c, (*h)[0]) {
			(*h)[0] = c
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: pop winners into rank order, then fetch full records.
	winners := make([]candidate, h.Len())
	for i := len(winners) - 1; i >= 0; i-- {
		winners[i] = heap.Pop(h).(candidate)
	}

	byID := make(map[string]ScoredRecord, len(winners))
	queryArgs := make([]interface{}, len(winners))
	for i, c := range winners {
		queryArgs[i] = c.ChunkID
	}
	fullQuery := `SELECT chunk_id, file_id, position, text_chunk, embedding, created_at
		FROM chunk_vectors WHERE chunk_id IN (?` + strings.Repeat(",?", len(winners)-1) + `)`

	fullRows, err := s.db.Query(fullQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K records: %w", err)
	}
	defer fullRows.Close()

	for fullRows.Next() {
		var r Record
		var blob []byte
		var createdAt string
		if err := fullRows.Scan(&r.ChunkID, &r.FileID, &r.Position, &r.Text, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning full record: %w", err)
		}
		embedding, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", r.ChunkID, err)
		}
		r.Embedding = embedding
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		r.CreatedAt = t
		byID[r.ChunkID] = ScoredRecord{Record: r}
	}
	if err := fullRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating full records: %w", err)
	}

	// Assemble in winner order (the IN query doesn't preserve it).
	results := make([]ScoredRecord, 0, len(winners))
	for _, c := range winners {
		rec, ok := byID[c.ChunkID]
		if !ok {
			continue // deleted between phases; skip rather than fail
		}
		rec.Score = c.Score
		results = append(results, rec)
	}

	return results, nil
}

// ranksBefore reports whether a should appear before b in query results:
// higher score first, then lower position, then smaller chunk id.
func ranksBefore(a, b candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	return a.ChunkID < b.ChunkID
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// dotProduct computes cosine similarity as dot(a,b) / (aNorm * bNorm).
// aNorm is the precomputed L2 norm of vector a.
func dotProduct(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// candidateHeap is a min-heap keeping the worst-ranked candidate at the root
// so the scan phase can evict it when a better one arrives.
type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return ranksBefore(h[j], h[i]) }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
