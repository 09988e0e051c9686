package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// File status values. A file moves processing -> ready once its chunks are
// indexed, processing -> empty when extraction yields no chunkable text, and
// processing -> failed when ingestion gives up.
const (
	FileStatusProcessing = "processing"
	FileStatusReady      = "ready"
	FileStatusEmpty      = "empty"
	FileStatusFailed     = "failed"
)

// Conversation modes. SingleFile and MultiFile consult FileScope; General
// performs no retrieval; FullLibrary searches every file in the library.
const (
	ModeGeneral     = "general"
	ModeSingleFile  = "single_file"
	ModeMultiFile   = "multi_file"
	ModeFullLibrary = "full_library"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// PlaceholderName is the name a conversation carries until its first
// successful turn derives a real one.
const PlaceholderName = "New Conversation"

type File struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Extension  string    `json:"extension"`
	Status     string    `json:"status"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Conversation struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Mode      string   `json:"mode"`
	FileScope []string `json:"file_scope,omitempty"`
	// PreviousConversationID is empty when the conversation was not chained.
	PreviousConversationID string    `json:"previous_conversation_id,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

type Message struct {
	ConversationID string    `json:"conversation_id"`
	Seq            int       `json:"seq"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
