package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/docchat/internal/engine"
	"github.com/kalambet/docchat/internal/library"
	"github.com/kalambet/docchat/internal/storage"
)

const testToken = "test-token"

type stubTurnRunner struct {
	msg  storage.Message
	err  error
	last string
}

func (s *stubTurnRunner) Handle(ctx context.Context, conversationID, userMessage string) (storage.Message, error) {
	s.last = userMessage
	if s.err != nil {
		return storage.Message{}, s.err
	}
	return s.msg, nil
}

type testApp struct {
	handler http.Handler
	store   *storage.Store
	chat    *stubTurnRunner
	dir     string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	dir := t.TempDir()
	chat := &stubTurnRunner{msg: storage.Message{Role: storage.RoleAssistant, Content: "answer"}}
	handler := NewHandler(AppDeps{
		Store:    store,
		Library:  library.NewManager(store),
		Chat:     chat,
		Jobs:     store,
		FilesDir: dir,
		Token:    testToken,
	})
	return &testApp{handler: handler, store: store, chat: chat, dir: dir}
}

func (a *testApp) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	app.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuth_Rejected(t *testing.T) {
	app := newTestApp(t)

	for _, header := range []string{"", "Bearer wrong", "Basic dXNlcg=="} {
		req := httptest.NewRequest(http.MethodGet, "/files", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		app.handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, w.Code)
		}
	}
}

func TestUploadFile(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodPost, "/files", UploadRequest{
		Filename: "notes.txt",
		Content:  base64.StdEncoding.EncodeToString([]byte("hello world")),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["status"] != storage.FileStatusProcessing {
		t.Errorf("status = %q, want processing", resp["status"])
	}

	// The blob is stored on disk under <id><ext>.
	blob := filepath.Join(app.dir, resp["id"]+".txt")
	data, err := os.ReadFile(blob)
	if err != nil {
		t.Fatalf("reading stored blob: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("blob content = %q", data)
	}

	// An ingestion job is queued.
	job, err := app.store.ClaimNextJob([]string{"ingest_file"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil || !strings.Contains(job.PayloadJSON, resp["id"]) {
		t.Errorf("job = %+v", job)
	}
}

func TestUploadFile_Validation(t *testing.T) {
	app := newTestApp(t)

	cases := []struct {
		name string
		req  UploadRequest
	}{
		{"missing filename", UploadRequest{Content: "aGk="}},
		{"unsupported type", UploadRequest{Filename: "app.exe", Content: "aGk="}},
		{"bad base64", UploadRequest{Filename: "a.txt", Content: "not-base64!!!"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := app.request(t, http.MethodPost, "/files", tc.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetFile_NotFound(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodGet, "/files/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDeleteFile(t *testing.T) {
	app := newTestApp(t)

	if err := app.store.SaveFile(storage.File{ID: "f1", Filename: "a.txt", Extension: ".txt"}); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	blob := filepath.Join(app.dir, "f1.txt")
	if err := os.WriteFile(blob, []byte("x"), 0o600); err != nil {
		t.Fatalf("writing blob: %v", err)
	}

	w := app.request(t, http.MethodDelete, "/files/f1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if _, err := app.store.GetFile("f1"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("file metadata still present")
	}
	if _, err := os.Stat(blob); !os.IsNotExist(err) {
		t.Error("blob still on disk")
	}

	w = app.request(t, http.MethodDelete, "/files/f1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestCreateConversation(t *testing.T) {
	app := newTestApp(t)

	if err := app.store.SaveFile(storage.File{ID: "f1", Filename: "a.txt", Extension: ".txt"}); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	w := app.request(t, http.MethodPost, "/conversations", CreateConversationRequest{
		Mode:      storage.ModeSingleFile,
		FileScope: []string{"f1"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var conv storage.Conversation
	decodeBody(t, w, &conv)
	if conv.Name != storage.PlaceholderName {
		t.Errorf("Name = %q, want placeholder", conv.Name)
	}
	if conv.Mode != storage.ModeSingleFile || len(conv.FileScope) != 1 {
		t.Errorf("conv = %+v", conv)
	}
}

func TestCreateConversation_DefaultsToGeneral(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodPost, "/conversations", CreateConversationRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var conv storage.Conversation
	decodeBody(t, w, &conv)
	if conv.Mode != storage.ModeGeneral {
		t.Errorf("Mode = %q, want general", conv.Mode)
	}
}

func TestCreateConversation_InvalidScope(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodPost, "/conversations", CreateConversationRequest{
		Mode:      storage.ModeSingleFile,
		FileScope: []string{"ghost"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	decodeBody(t, w, &resp)
	if resp.Error.Type != "invalid_request_error" {
		t.Errorf("error type = %q", resp.Error.Type)
	}
}

func TestPostMessage(t *testing.T) {
	app := newTestApp(t)

	if err := app.store.CreateConversation(storage.Conversation{ID: "c1", Mode: storage.ModeGeneral}); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	w := app.request(t, http.MethodPost, "/conversations/c1/messages", PostMessageRequest{Content: "Hello?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var msg storage.Message
	decodeBody(t, w, &msg)
	if msg.Content != "answer" {
		t.Errorf("Content = %q", msg.Content)
	}
	if app.chat.last != "Hello?" {
		t.Errorf("runner received %q", app.chat.last)
	}
}

func TestPostMessage_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"missing conversation", storage.ErrNotFound, http.StatusNotFound},
		{"invalid scope", fmt.Errorf("%w: stale file", library.ErrScope), http.StatusBadRequest},
		{"generation failure", errors.Join(engine.ErrGeneration, errors.New("down")), http.StatusBadGateway},
		{"embedding failure", errors.Join(engine.ErrEmbedding, errors.New("down")), http.StatusBadGateway},
		{"other failure", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)
			app.chat.err = tc.err

			w := app.request(t, http.MethodPost, "/conversations/c1/messages", PostMessageRequest{Content: "hi"})
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestPostMessage_EmptyContent(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodPost, "/conversations/c1/messages", PostMessageRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRenameAndDeleteConversation(t *testing.T) {
	app := newTestApp(t)

	if err := app.store.CreateConversation(storage.Conversation{ID: "c1", Mode: storage.ModeGeneral}); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	w := app.request(t, http.MethodPatch, "/conversations/c1", map[string]string{"name": "Renamed"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename status = %d: %s", w.Code, w.Body.String())
	}
	conv, _ := app.store.GetConversation("c1")
	if conv.Name != "Renamed" {
		t.Errorf("Name = %q", conv.Name)
	}

	w = app.request(t, http.MethodDelete, "/conversations/c1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", w.Code, w.Body.String())
	}
	w = app.request(t, http.MethodDelete, "/conversations/c1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestExportConversation(t *testing.T) {
	app := newTestApp(t)

	if err := app.store.CreateConversation(storage.Conversation{ID: "c1", Mode: storage.ModeGeneral}); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := app.store.AppendMessage("c1", storage.RoleUser, "question"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	w := app.request(t, http.MethodGet, "/conversations/c1/export?format=markdown", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "**User**") {
		t.Errorf("export body missing transcript:\n%s", w.Body.String())
	}

	w = app.request(t, http.MethodGet, "/conversations/c1/export?format=html", nil)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}

	w = app.request(t, http.MethodGet, "/conversations/c1/export?format=docx", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListEndpoints_EmptyAreArrays(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/files", "/conversations"} {
		w := app.request(t, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, w.Code)
		}
		if body := strings.TrimSpace(w.Body.String()); body != "[]" {
			t.Errorf("%s body = %q, want []", path, body)
		}
	}
}
