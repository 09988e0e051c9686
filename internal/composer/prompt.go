// Package composer assembles the single prompt string sent to the generation
// model: system preamble, prior-conversation summary, retrieved context, and
// the conversation transcript.
package composer

import (
	"strings"

	"github.com/kalambet/docchat/internal/storage"
)

const preamble = "You are a helpful assistant answering questions about the user's documents. " +
	"When reference information is provided, ground your answer in it and mention " +
	"the source file in brackets when it is relevant. If the reference information " +
	"does not cover the question, say so instead of guessing."

const generalPreamble = "You are a helpful assistant. Answer the user's questions directly."

// Composer builds generation prompts. Budgets are in characters; roughly 4
// characters per token for typical English text.
type Composer struct{}

// New creates a Composer.
func New() *Composer {
	return &Composer{}
}

// Compose builds the full prompt for one generation call. chainSummary is the
// carried-over summary of a predecessor conversation; pass it only on the
// first turn. contextBlock is the assembled retrieval output, empty for the
// general mode. history holds the conversation's earlier messages in order;
// userMessage is the turn being answered and must not already be in history.
func (c *Composer) Compose(history []storage.Message, chainSummary, contextBlock, userMessage string) string {
	var sb strings.Builder

	if contextBlock == "" && chainSummary == "" {
		sb.WriteString(generalPreamble)
	} else {
		sb.WriteString(preamble)
	}
	sb.WriteString("\n\n")

	if chainSummary != "" {
		sb.WriteString("[Previous Conversation]\n")
		sb.WriteString(chainSummary)
		sb.WriteString("\n\n")
	}

	if contextBlock != "" {
		sb.WriteString("[Reference Information]\n")
		sb.WriteString(contextBlock)
		sb.WriteString("\n\n")
	}

	for _, m := range history {
		sb.WriteString(roleLabel(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}

	sb.WriteString("User: ")
	sb.WriteString(userMessage)
	sb.WriteString("\nAssistant:")

	return sb.String()
}

func roleLabel(role string) string {
	switch role {
	case storage.RoleAssistant:
		return "Assistant"
	default:
		return "User"
	}
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
