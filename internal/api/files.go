package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/docchat/internal/extract"
	"github.com/kalambet/docchat/internal/ingest"
	"github.com/kalambet/docchat/internal/storage"
)

type UploadRequest struct {
	Filename string `json:"filename"`
	// Content is the file body, base64-encoded.
	Content string `json:"content"`
}

func handleUploadFile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()

		var req UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Filename == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "filename is required")
			return
		}

		ext := strings.ToLower(filepath.Ext(req.Filename))
		if !extract.Supported(ext) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported file type %q", ext)
			return
		}

		body, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
			return
		}

		fileID := uuid.New().String()
		path := filepath.Join(deps.FilesDir, fileID+ext)
		if err := os.WriteFile(path, body, 0o600); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store file: %v", err)
			return
		}

		file := storage.File{
			ID:        fileID,
			Filename:  filepath.Base(req.Filename),
			Extension: ext,
			Status:    storage.FileStatusProcessing,
		}
		if err := deps.Store.SaveFile(file); err != nil {
			os.Remove(path)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save file: %v", err)
			return
		}
		deps.Library.Invalidate()

		if _, err := ingest.Enqueue(deps.Jobs, fileID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue ingestion: %v", err)
			return
		}

		writeJSON(w, map[string]string{
			"id":     fileID,
			"status": storage.FileStatusProcessing,
		})
	}
}

func handleListFiles(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := deps.Store.ListFiles()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list files: %v", err)
			return
		}
		if files == nil {
			files = []storage.File{}
		}
		writeJSON(w, files)
	}
}

func handleGetFile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		file, err := deps.Store.GetFile(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get file: %v", err)
			return
		}
		writeJSON(w, file)
	}
}

func handleDeleteFile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		file, err := deps.Store.GetFile(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get file: %v", err)
			return
		}

		// Metadata and chunk vectors go together in one transaction.
		if err := deps.Store.DeleteFile(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "file not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete file: %v", err)
			return
		}
		deps.Library.Invalidate()

		// The blob is best-effort cleanup; the index no longer references it.
		os.Remove(filepath.Join(deps.FilesDir, file.ID+file.Extension))

		writeJSON(w, map[string]string{"status": "deleted"})
	}
}
