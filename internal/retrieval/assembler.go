package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// FilenameResolver maps a file id to its display filename for provenance
// markers in assembled context.
type FilenameResolver interface {
	Filename(fileID string) (string, error)
}

// Assembler runs the retrieval pass for a single user turn: embed the query,
// search the scoped vectors, and pack the winners into a budgeted context
// block with per-chunk provenance markers.
type Assembler struct {
	embedder *Embedder
	store    VectorStore
	files    FilenameResolver
	topK     int
}

const (
	defaultTopK   = 5
	defaultBudget = 6000
)

// NewAssembler wires an Assembler. topK caps how many chunks are considered
// for the context block.
func NewAssembler(embedder *Embedder, store VectorStore, files FilenameResolver, topK int) *Assembler {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Assembler{embedder: embedder, store: store, files: files, topK: topK}
}

// Assemble returns the retrieved-context block for the query under the given
// scope, at most budget characters long. A non-positive budget falls back to
// the default rather than disabling the cap. The general scope returns an
// empty block without calling the embedder. Chunks are included whole and in
// rank order; a chunk that would overflow the budget is skipped and later,
// smaller chunks may still fit. An empty library or zero matches yields an
// empty block, not an error.
func (a *Assembler) Assemble(ctx context.Context, scope Scope, query string, budget int) (string, error) {
	if !scope.Retrieves() {
		return "", nil
	}
	if budget <= 0 {
		budget = defaultBudget
	}

	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embedding query: %w", err)
	}

	matches, err := a.store.Query(vec, a.topK, scope.Filter())
	if err != nil {
		return "", fmt.Errorf("searching vectors: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, m := range matches {
		name, err := a.files.Filename(m.FileID)
		if err != nil {
			name = m.FileID
		}
		entry := fmt.Sprintf("[%s]\n%s\n\n", name, m.Text)
		if b.Len()+len(entry) > budget {
			continue
		}
		b.WriteString(entry)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
