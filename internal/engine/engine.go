// Package engine abstracts the local inference backend behind the two
// capabilities the core depends on: embedding text into vectors and
// generating text from a prompt.
package engine

import (
	"context"
	"errors"
)

// ErrEmbedding classifies failures of the embedding collaborator.
var ErrEmbedding = errors.New("embedding failed")

// ErrGeneration classifies failures of the generation collaborator.
var ErrGeneration = errors.New("generation failed")

// Message is a chat message passed to the backend.
type Message struct {
	Role    string
	Content string
}

// Engine abstracts a local inference backend (Ollama or any compatible
// server). Consumers depend on this interface instead of a concrete client.
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's response.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool

	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool
}

// TextGenerator adapts an Engine to the orchestrator's single-prompt
// generate(prompt) -> text contract. Failures are classified ErrGeneration;
// the core makes a single attempt and surfaces errors to the caller.
type TextGenerator struct {
	Engine Engine
	Model  string
}

func (g *TextGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := g.Engine.Chat(ctx, g.Model, []Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", errors.Join(ErrGeneration, err)
	}
	return out, nil
}
