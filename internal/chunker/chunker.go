// Package chunker splits extracted document text into overlapping,
// size-bounded chunks with deterministic identifiers. Chunk ids are a pure
// function of (file id, ordinal), so re-chunking unchanged text reproduces
// the same ids and re-ingestion replaces vectors instead of duplicating them.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunk is a bounded span of a document's text, the unit of embedding and
// retrieval. Position is the ordinal within the file and orders ties during
// search.
type Chunk struct {
	ID       string
	FileID   string
	Position int
	Text     string
}

// ChunkID derives the deterministic chunk id for (fileID, ordinal).
func ChunkID(fileID string, ordinal int) string {
	return fmt.Sprintf("%s#%d", fileID, ordinal)
}

// Chunker produces chunks of at most TargetSize bytes, with consecutive
// chunks sharing roughly Overlap bytes of trailing context.
type Chunker struct {
	TargetSize int
	Overlap    int
}

const (
	defaultTargetSize = 1000
	defaultOverlap    = 100
)

// New creates a Chunker. Non-positive targetSize or overlap fall back to the
// defaults (1000/100). Overlap is capped at half the target size so a window
// always has room for new content.
func New(targetSize, overlap int) *Chunker {
	if targetSize <= 0 {
		targetSize = defaultTargetSize
	}
	if overlap < 0 {
		overlap = defaultOverlap
	}
	if overlap > targetSize/2 {
		overlap = targetSize / 2
	}
	return &Chunker{TargetSize: targetSize, Overlap: overlap}
}

// Chunk splits text into ordered chunks for the given file. Empty or
// whitespace-only text yields zero chunks; text that fits in one window
// yields exactly one.
func (c *Chunker) Chunk(fileID, text string) []Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if len(trimmed) <= c.TargetSize {
		return []Chunk{{
			ID:       ChunkID(fileID, 0),
			FileID:   fileID,
			Position: 0,
			Text:     trimmed,
		}}
	}

	units := splitUnits(trimmed, c.TargetSize)

	var chunks []Chunk
	var window strings.Builder
	var tail string // overlap carried from the previous window

	flush := func() {
		body := strings.TrimSpace(window.String())
		if body == "" {
			return
		}
		chunks = append(chunks, Chunk{
			ID:       ChunkID(fileID, len(chunks)),
			FileID:   fileID,
			Position: len(chunks),
			Text:     body,
		})
		tail = overlapTail(body, c.Overlap)
		window.Reset()
	}

	for _, unit := range units {
		needed := len(unit)
		if window.Len() > 0 {
			needed += 2 // joining "\n\n"
		}
		if window.Len()+needed > c.TargetSize {
			flush()
			// Seed the new window with the overlap, but never let the seed
			// squeeze out the unit itself.
			if tail != "" && len(tail)+2+len(unit) <= c.TargetSize {
				window.WriteString(tail)
			}
		}
		if window.Len() > 0 {
			window.WriteString("\n\n")
		}
		window.WriteString(unit)
	}
	flush()

	return chunks
}

// splitUnits breaks text into paragraphs, subdividing any paragraph longer
// than maxSize on sentence boundaries and, failing that, at the nearest
// preceding whitespace. Every returned unit is at most maxSize bytes.
func splitUnits(text string, maxSize int) []string {
	var units []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= maxSize {
			units = append(units, para)
			continue
		}
		for _, sentence := range splitSentences(para) {
			if len(sentence) <= maxSize {
				units = append(units, sentence)
				continue
			}
			units = append(units, hardWrap(sentence, maxSize)...)
		}
	}
	return units
}

// splitSentences splits on sentence-ending punctuation followed by a space,
// keeping the punctuation with the preceding sentence.
func splitSentences(s string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' || s[i+1] == '\n' {
				sentence := strings.TrimSpace(s[start : i+1])
				if sentence != "" {
					sentences = append(sentences, sentence)
				}
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// hardWrap cuts s into pieces of at most maxSize bytes, preferring the
// nearest preceding whitespace and never cutting inside a UTF-8 sequence.
func hardWrap(s string, maxSize int) []string {
	var pieces []string
	for len(s) > maxSize {
		cut := boundaryBefore(s, maxSize)
		pieces = append(pieces, strings.TrimSpace(s[:cut]))
		s = strings.TrimLeftFunc(s[cut:], unicode.IsSpace)
	}
	if s != "" {
		pieces = append(pieces, s)
	}
	return pieces
}

// boundaryBefore returns a cut point at or before limit: the last whitespace
// if one exists past the midpoint, otherwise the nearest rune boundary.
func boundaryBefore(s string, limit int) int {
	if ws := strings.LastIndexFunc(s[:limit], unicode.IsSpace); ws > limit/2 {
		return ws
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return limit
	}
	return cut
}

// overlapTail returns the last n bytes of body, extended back to the nearest
// whitespace so the overlap starts on a word boundary.
func overlapTail(body string, n int) string {
	if n <= 0 || len(body) <= n {
		return ""
	}
	start := len(body) - n
	for start > 0 && !utf8.RuneStart(body[start]) {
		start--
	}
	if ws := strings.IndexFunc(body[start:], unicode.IsSpace); ws >= 0 {
		start += ws
	}
	return strings.TrimSpace(body[start:])
}
