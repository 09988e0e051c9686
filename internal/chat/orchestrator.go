// Package chat coordinates a single conversation turn: persist the user's
// message, run retrieval, generate a response, and persist it.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/docchat/internal/composer"
	"github.com/kalambet/docchat/internal/retrieval"
	"github.com/kalambet/docchat/internal/storage"
)

// defaultContextBudget caps retrieved context at ~1500 tokens.
const defaultContextBudget = 6000

// nameLimit caps auto-derived conversation names.
const nameLimit = 48

// Store is the storage surface the orchestrator needs.
type Store interface {
	GetConversation(id string) (storage.Conversation, error)
	GetMessages(conversationID string) ([]storage.Message, error)
	AppendMessage(conversationID, role, content string) (storage.Message, error)
	RenameConversation(id, name string) error
}

// ScopeValidator checks a conversation's mode and file scope against the
// library. Implemented by library.Manager.
type ScopeValidator interface {
	ValidateScope(mode string, fileIDs []string) error
}

// ContextAssembler produces the retrieved-context block for a query.
// Implemented by retrieval.Assembler.
type ContextAssembler interface {
	Assemble(ctx context.Context, scope retrieval.Scope, query string, budget int) (string, error)
}

// Generator produces a response for a fully composed prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Orchestrator runs conversation turns. Appends within one conversation are
// serialized so message order matches arrival order; retrieval and
// generation run outside the lock so a slow model call on one conversation
// never blocks turns on another, or history reads on this one.
type Orchestrator struct {
	store     Store
	scopes    ScopeValidator
	assembler ContextAssembler
	generator Generator
	composer  *composer.Composer
	logger    *slog.Logger

	contextBudget int
	chainBudget   int

	locks *keyedMutex
}

// Config carries the orchestrator's tunable budgets, in characters.
type Config struct {
	ContextBudget int
	ChainBudget   int
}

// NewOrchestrator wires an Orchestrator. Zero budget fields get defaults.
func NewOrchestrator(store Store, scopes ScopeValidator, assembler ContextAssembler, generator Generator, cfg Config) *Orchestrator {
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = defaultContextBudget
	}
	if cfg.ChainBudget <= 0 {
		cfg.ChainBudget = defaultChainBudget
	}
	return &Orchestrator{
		store:         store,
		scopes:        scopes,
		assembler:     assembler,
		generator:     generator,
		composer:      composer.New(),
		logger:        slog.Default(),
		contextBudget: cfg.ContextBudget,
		chainBudget:   cfg.ChainBudget,
		locks:         newKeyedMutex(),
	}
}

// Handle runs one turn of a conversation and returns the persisted assistant
// message. The user message is appended before retrieval or generation
// starts, so it survives any downstream failure; no assistant message is
// written on failure. Message seq order within a conversation matches the
// order appends acquired the conversation lock.
func (o *Orchestrator) Handle(ctx context.Context, conversationID, userMessage string) (storage.Message, error) {
	conv, err := o.store.GetConversation(conversationID)
	if err != nil {
		return storage.Message{}, fmt.Errorf("loading conversation %s: %w", conversationID, err)
	}
	if err := o.scopes.ValidateScope(conv.Mode, conv.FileScope); err != nil {
		return storage.Message{}, err
	}

	lock := o.locks.get(conversationID)

	lock.Lock()
	history, err := o.store.GetMessages(conversationID)
	if err != nil {
		lock.Unlock()
		return storage.Message{}, fmt.Errorf("loading history: %w", err)
	}
	if _, err := o.store.AppendMessage(conversationID, storage.RoleUser, userMessage); err != nil {
		lock.Unlock()
		return storage.Message{}, fmt.Errorf("appending user message: %w", err)
	}
	lock.Unlock()

	// The carried-over summary applies to the first turn only; later turns
	// already have it reflected in the assistant's earlier responses.
	var chainSummary string
	if len(history) == 0 && conv.PreviousConversationID != "" {
		chainSummary, err = predecessorSummary(o.store, conv.PreviousConversationID, o.chainBudget)
		if err != nil {
			return storage.Message{}, err
		}
	}

	scope, err := retrieval.ScopeForMode(conv.Mode, conv.FileScope)
	if err != nil {
		return storage.Message{}, err
	}

	contextBlock, err := o.assembler.Assemble(ctx, scope, userMessage, o.contextBudget)
	if err != nil {
		return storage.Message{}, fmt.Errorf("assembling context: %w", err)
	}

	prompt := o.composer.Compose(history, chainSummary, contextBlock, userMessage)

	response, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		o.logger.Warn("generation failed", "conversation_id", conversationID, "error", err)
		return storage.Message{}, err
	}

	lock.Lock()
	defer lock.Unlock()

	msg, err := o.store.AppendMessage(conversationID, storage.RoleAssistant, response)
	if err != nil {
		return storage.Message{}, fmt.Errorf("appending assistant message: %w", err)
	}

	if conv.Name == storage.PlaceholderName && len(history) == 0 {
		name := DeriveName(userMessage)
		if err := o.store.RenameConversation(conversationID, name); err != nil {
			o.logger.Warn("auto-rename failed", "conversation_id", conversationID, "error", err)
		}
	}

	return msg, nil
}

// DeriveName produces a conversation name from its first user message: the
// leading characters cut back to a word boundary, with an ellipsis when
// truncated.
func DeriveName(userMessage string) string {
	name := strings.Join(strings.Fields(userMessage), " ")
	if name == "" {
		return storage.PlaceholderName
	}
	if len(name) <= nameLimit {
		return name
	}

	end := nameLimit
	for end > 0 && !utf8.RuneStart(name[end]) {
		end--
	}
	if idx := strings.LastIndex(name[:end], " "); idx > 0 {
		end = idx
	}
	return strings.TrimRight(name[:end], " ") + "…"
}
