package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/docchat/internal/storage"
)

// defaultChainBudget caps a carried-over summary at ~500 tokens.
const defaultChainBudget = 2000

// ChainSummary renders a predecessor conversation's messages as a compact
// transcript for injection into the first turn of a follow-up conversation.
// The newest messages win: whole older messages are dropped until the result
// fits the character budget. Returns "" for an empty conversation.
func ChainSummary(messages []storage.Message, budget int) string {
	if budget <= 0 {
		budget = defaultChainBudget
	}
	if len(messages) == 0 {
		return ""
	}

	lines := make([]string, len(messages))
	for i, m := range messages {
		label := "User"
		if m.Role == storage.RoleAssistant {
			label = "Assistant"
		}
		lines[i] = fmt.Sprintf("%s: %s", label, m.Content)
	}

	// Drop oldest whole lines until the joined transcript fits.
	start := 0
	for start < len(lines) {
		if transcriptLen(lines[start:]) <= budget {
			break
		}
		start++
	}

	if start == len(lines) {
		// Even the newest message alone is over budget; truncate it.
		last := lines[len(lines)-1]
		end := budget
		for end > 0 && !utf8.RuneStart(last[end]) {
			end--
		}
		if idx := strings.LastIndex(last[:end], " "); idx > 0 {
			return last[:idx]
		}
		return last[:end]
	}

	return strings.Join(lines[start:], "\n")
}

func transcriptLen(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l)
	}
	if len(lines) > 1 {
		n += len(lines) - 1
	}
	return n
}

// ConversationStore is the slice of storage the chaining logic reads from.
type ConversationStore interface {
	GetConversation(id string) (storage.Conversation, error)
	GetMessages(conversationID string) ([]storage.Message, error)
}

// predecessorSummary loads and summarizes the conversation a new thread
// chains from. A dangling reference (the predecessor was deleted) yields an
// empty summary, not an error.
func predecessorSummary(store ConversationStore, previousID string, budget int) (string, error) {
	if previousID == "" {
		return "", nil
	}
	if _, err := store.GetConversation(previousID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("loading predecessor %s: %w", previousID, err)
	}
	messages, err := store.GetMessages(previousID)
	if err != nil {
		return "", fmt.Errorf("loading predecessor messages: %w", err)
	}
	return ChainSummary(messages, budget), nil
}
