package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady verifies the inference backend is reachable and that the chat
// and embedding models are present. It reports progress to w and returns an
// error describing what is missing; it never attempts to download models.
func EnsureReady(ctx context.Context, e Engine, chatModel, embedModel string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("inference backend is not reachable; start Ollama and retry")
	}
	fmt.Fprintln(w, "inference backend is running")

	for _, model := range []string{chatModel, embedModel} {
		if model == "" {
			continue
		}
		if !e.HasModel(ctx, model) {
			return fmt.Errorf("model %q is not available locally; run `ollama pull %s`", model, model)
		}
		fmt.Fprintf(w, "model %s is available\n", model)
	}
	return nil
}
