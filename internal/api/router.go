// Package api exposes the document chat core over an authenticated REST API.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/docchat/internal/ingest"
	"github.com/kalambet/docchat/internal/library"
	"github.com/kalambet/docchat/internal/storage"
)

const maxRequestBodySize = 1 << 20  // 1MB
const maxUploadBodySize = 32 << 20  // 32MB

// TurnRunner runs one conversation turn. Implemented by chat.Orchestrator.
type TurnRunner interface {
	Handle(ctx context.Context, conversationID, userMessage string) (storage.Message, error)
}

// AppDeps carries the collaborators the HTTP handlers need.
type AppDeps struct {
	Store    *storage.Store
	Library  *library.Manager
	Chat     TurnRunner
	Jobs     ingest.JobStore
	FilesDir string
	Token    string
}

// NewHandler builds the full router. All routes except /health require the
// bearer token.
func NewHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/files", handleUploadFile(deps))
		r.Get("/files", handleListFiles(deps))
		r.Get("/files/{id}", handleGetFile(deps))
		r.Delete("/files/{id}", handleDeleteFile(deps))

		r.Post("/conversations", handleCreateConversation(deps))
		r.Get("/conversations", handleListConversations(deps))
		r.Get("/conversations/{id}", handleGetConversation(deps))
		r.Patch("/conversations/{id}", handleRenameConversation(deps))
		r.Delete("/conversations/{id}", handleDeleteConversation(deps))
		r.Post("/conversations/{id}/messages", handlePostMessage(deps))
		r.Get("/conversations/{id}/export", handleExportConversation(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
