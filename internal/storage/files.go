package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) SaveFile(f File) error {
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := f.Status
	if status == "" {
		status = FileStatusProcessing
	}
	_, err := s.db.Exec(`
		INSERT INTO files (id, filename, extension, status, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Filename, f.Extension, status, f.ChunkCount,
		createdAt.Format(time.RFC3339), createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetFile(id string) (File, error) {
	var f File
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, filename, extension, status, chunk_count, created_at, updated_at
		FROM files WHERE id = ?`, id,
	).Scan(&f.ID, &f.Filename, &f.Extension, &f.Status, &f.ChunkCount, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return File{}, ErrNotFound
	}
	if err != nil {
		return File{}, err
	}
	if f.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return File{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if f.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return File{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return f, nil
}

func (s *Store) ListFiles() ([]File, error) {
	rows, err := s.db.Query(`
		SELECT id, filename, extension, status, chunk_count, created_at, updated_at
		FROM files ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		var createdAt, updatedAt string
		if err := rows.Scan(&f.ID, &f.Filename, &f.Extension, &f.Status, &f.ChunkCount, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if f.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if f.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// UpdateFileStatus records the outcome of an ingestion attempt.
func (s *Store) UpdateFileStatus(id, status string, chunkCount int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE files SET status = ?, chunk_count = ?, updated_at = ? WHERE id = ?`,
		status, chunkCount, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFile removes a file together with every chunk vector derived from it
// in a single transaction, so a query racing the delete observes either all
// of the file's chunks or none of them.
func (s *Store) DeleteFile(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting file %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`DELETE FROM chunk_vectors WHERE file_id = ?`, id); err != nil {
		return fmt.Errorf("deleting chunk vectors for %s: %w", id, err)
	}

	return tx.Commit()
}
