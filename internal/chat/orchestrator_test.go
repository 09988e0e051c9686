package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/docchat/internal/retrieval"
	"github.com/kalambet/docchat/internal/storage"
)

type fakeStore struct {
	conversations map[string]storage.Conversation
	messages      map[string][]storage.Message
	appendErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]storage.Conversation),
		messages:      make(map[string][]storage.Message),
	}
}

func (f *fakeStore) GetConversation(id string) (storage.Conversation, error) {
	c, ok := f.conversations[id]
	if !ok {
		return storage.Conversation{}, storage.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) GetMessages(conversationID string) ([]storage.Message, error) {
	return f.messages[conversationID], nil
}

func (f *fakeStore) AppendMessage(conversationID, role, content string) (storage.Message, error) {
	if f.appendErr != nil {
		return storage.Message{}, f.appendErr
	}
	if _, ok := f.conversations[conversationID]; !ok {
		return storage.Message{}, storage.ErrNotFound
	}
	m := storage.Message{
		ConversationID: conversationID,
		Seq:            len(f.messages[conversationID]) + 1,
		Role:           role,
		Content:        content,
	}
	f.messages[conversationID] = append(f.messages[conversationID], m)
	return m, nil
}

func (f *fakeStore) RenameConversation(id, name string) error {
	c, ok := f.conversations[id]
	if !ok {
		return storage.ErrNotFound
	}
	c.Name = name
	f.conversations[id] = c
	return nil
}

type okScopes struct{}

func (okScopes) ValidateScope(mode string, fileIDs []string) error { return nil }

type fakeAssembler struct {
	block      string
	err        error
	lastScope  retrieval.Scope
	lastBudget int
	calls      int
}

func (f *fakeAssembler) Assemble(ctx context.Context, scope retrieval.Scope, query string, budget int) (string, error) {
	f.calls++
	f.lastScope = scope
	f.lastBudget = budget
	return f.block, f.err
}

type fakeGenerator struct {
	out        string
	err        error
	lastPrompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

func newTestOrchestrator(store *fakeStore, assembler *fakeAssembler, gen *fakeGenerator) *Orchestrator {
	return NewOrchestrator(store, okScopes{}, assembler, gen, Config{})
}

func TestHandle_Turn(t *testing.T) {
	store := newFakeStore()
	store.conversations["c1"] = storage.Conversation{ID: "c1", Name: storage.PlaceholderName, Mode: storage.ModeGeneral}
	gen := &fakeGenerator{out: "Hi there."}
	o := newTestOrchestrator(store, &fakeAssembler{}, gen)

	msg, err := o.Handle(context.Background(), "c1", "Hello?")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if msg.Role != storage.RoleAssistant || msg.Content != "Hi there." {
		t.Errorf("msg = %+v", msg)
	}

	got := store.messages["c1"]
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Role != storage.RoleUser || got[0].Content != "Hello?" {
		t.Errorf("user message = %+v", got[0])
	}
	if got[1].Seq != 2 {
		t.Errorf("assistant seq = %d, want 2", got[1].Seq)
	}
}

func TestHandle_UserMessageSurvivesGenerationFailure(t *testing.T) {
	store := newFakeStore()
	store.conversations["c1"] = storage.Conversation{ID: "c1", Name: storage.PlaceholderName, Mode: storage.ModeGeneral}
	genErr := errors.New("model unavailable")
	o := newTestOrchestrator(store, &fakeAssembler{}, &fakeGenerator{err: genErr})

	if _, err := o.Handle(context.Background(), "c1", "Hello?"); !errors.Is(err, genErr) {
		t.Fatalf("err = %v, want %v", err, genErr)
	}

	got := store.messages["c1"]
	if len(got) != 1 {
		t.Fatalf("got %d messages, want only the user message", len(got))
	}
	if got[0].Role != storage.RoleUser {
		t.Errorf("surviving message role = %q", got[0].Role)
	}
}

func TestHandle_AutoRenameOnFirstTurn(t *testing.T) {
	store := newFakeStore()
	store.conversations["c1"] = storage.Conversation{ID: "c1", Name: storage.PlaceholderName, Mode: storage.ModeGeneral}
	o := newTestOrchestrator(store, &fakeAssembler{}, &fakeGenerator{out: "ok"})

	if _, err := o.Handle(context.Background(), "c1", "What does the quarterly report say about revenue?"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	name := store.conversations["c1"].Name
	if name == storage.PlaceholderName {
		t.Error("conversation not renamed after first turn")
	}
	if len(name) > nameLimit+len("…") {
		t.Errorf("name too long: %q", name)
	}
}

func TestHandle_NoRenameWhenUserNamed(t *testing.T) {
	store := newFakeStore()
	store.conversations["c1"] = storage.Conversation{ID: "c1", Name: "My thread", Mode: storage.ModeGeneral}
	o := newTestOrchestrator(store, &fakeAssembler{}, &fakeGenerator{out: "ok"})

	if _, err := o.Handle(context.Background(), "c1", "Hello?"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if store.conversations["c1"].Name != "My thread" {
		t.Errorf("user-chosen name overwritten: %q", store.conversations["c1"].Name)
	}
}

func TestHandle_NoRenameOnLaterTurns(t *testing.T) {
	store := newFakeStore()
	store.conversations["c1"] = storage.Conversation{ID: "c1", Name: storage.PlaceholderName, Mode: storage.ModeGeneral}
	o := newTestOrchestrator(store, &fakeAssembler{}, &fakeGenerator{out: "ok"})

	if _, err := o.Handle(context.Background(), "c1", "first question"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	first := store.conversations["c1"].Name

	if _, err := o.Handle(context.Background(), "c1", "second question entirely different"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if store.conversations["c1"].Name != first {
		t.Errorf("name changed on second turn: %q -> %q", first, store.conversations["c1"].Name)
	}
}

func TestHandle_ChainSummaryFirstTurnOnly(t *testing.T) {
	store := newFakeStore()
	store.conversations["old"] = storage.Conversation{ID: "old", Name: "Old", Mode: storage.ModeGeneral}
	store.messages["old"] = []storage.Message{
		{Role: storage.RoleUser, Content: "earlier question"},
		{Role: storage.RoleAssistant, Content: "earlier answer"},
	}
	store.conversations["c1"] = storage.Conversation{
		ID: "c1", Name: storage.PlaceholderName, Mode: storage.ModeGeneral,
		PreviousConversationID: "old",
	}
	gen := &fakeGenerator{out: "ok"}
	o := newTestOrchestrator(store, &fakeAssembler{}, gen)

	if _, err := o.Handle(context.Background(), "c1", "follow up"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(gen.lastPrompt, "earlier answer") {
		t.Errorf("first-turn prompt missing predecessor transcript:\n%s", gen.lastPrompt)
	}

	if _, err := o.Handle(context.Background(), "c1", "another follow up"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if strings.Contains(gen.lastPrompt, "earlier answer") {
		t.Errorf("second-turn prompt still carries predecessor transcript:\n%s", gen.lastPrompt)
	}
}

func TestHandle_DanglingPredecessor(t *testing.T) {
	store := newFakeStore()
	store.conversations["c1"] = storage.Conversation{
		ID: "c1", Name: storage.PlaceholderName, Mode: storage.ModeGeneral,
		PreviousConversationID: "deleted",
	}
	gen := &fakeGenerator{out: "ok"}
	o := newTestOrchestrator(store, &fakeAssembler{}, gen)

	if _, err := o.Handle(context.Background(), "c1", "hello"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if strings.Contains(gen.lastPrompt, "[Previous Conversation]") {
		t.Errorf("prompt carries a summary for a deleted predecessor:\n%s", gen.lastPrompt)
	}
}

func TestHandle_ScopePassedToAssembler(t *testing.T) {
	store := newFakeStore()
	store.conversations["c1"] = storage.Conversation{
		ID: "c1", Name: storage.PlaceholderName,
		Mode: storage.ModeSingleFile, FileScope: []string{"f1"},
	}
	assembler := &fakeAssembler{block: "[a.txt]\ncontext"}
	o := newTestOrchestrator(store, assembler, &fakeGenerator{out: "ok"})

	if _, err := o.Handle(context.Background(), "c1", "question"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if assembler.calls != 1 {
		t.Fatalf("assembler called %d times", assembler.calls)
	}
	filter := assembler.lastScope.Filter()
	if len(filter) != 1 || filter[0] != "f1" {
		t.Errorf("scope filter = %v", filter)
	}
	if assembler.lastBudget != defaultContextBudget {
		t.Errorf("budget = %d, want default", assembler.lastBudget)
	}
}

func TestHandle_UnknownConversation(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), &fakeAssembler{}, &fakeGenerator{out: "ok"})

	if _, err := o.Handle(context.Background(), "ghost", "hello"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeriveName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Short question", "Short question"},
		{"  spaced   out\n\twords  ", "spaced out words"},
		{"", storage.PlaceholderName},
		{"   \n ", storage.PlaceholderName},
	}
	for _, tc := range cases {
		if got := DeriveName(tc.in); got != tc.want {
			t.Errorf("DeriveName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	long := DeriveName("What does the quarterly financial report say about projected revenue growth")
	if !strings.HasSuffix(long, "…") {
		t.Errorf("truncated name missing ellipsis: %q", long)
	}
	if len(long) > nameLimit+len("…") {
		t.Errorf("name too long: %d bytes", len(long))
	}
	if strings.Contains(long, "  ") || strings.HasSuffix(strings.TrimSuffix(long, "…"), " ") {
		t.Errorf("ragged truncation: %q", long)
	}
}
