package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kalambet/docchat/internal/engine"
)

// fakeEngine implements engine.Engine for tests. Embeddings are derived from
// the text so assertions can tell inputs apart.
type fakeEngine struct {
	embedErr   error
	chatErr    error
	chatOut    string
	embedCalls int
	lastPrompt string
}

func (f *fakeEngine) Chat(ctx context.Context, model string, messages []engine.Message) (string, error) {
	if len(messages) > 0 {
		f.lastPrompt = messages[len(messages)-1].Content
	}
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.chatOut, nil
}

func (f *fakeEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (f *fakeEngine) IsRunning(ctx context.Context) bool        { return true }
func (f *fakeEngine) HasModel(ctx context.Context, _ string) bool { return true }

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	e := &fakeEngine{}
	emb := NewEmbedder(e, "embed-model")

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("%0*d", i+1, 0) // lengths 1..10
	}

	vectors, err := emb.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if v[0] != float32(len(texts[i])) {
			t.Errorf("vector %d out of order: got length %f, want %d", i, v[0], len(texts[i]))
		}
	}
}

func TestEmbedBatch_PropagatesError(t *testing.T) {
	wantErr := errors.New("backend down")
	emb := NewEmbedder(&fakeEngine{embedErr: wantErr}, "embed-model")

	if _, err := emb.EmbedBatch(context.Background(), []string{"a", "b"}); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
}
