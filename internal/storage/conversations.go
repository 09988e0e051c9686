package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func (s *Store) CreateConversation(c Conversation) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	name := c.Name
	if name == "" {
		name = PlaceholderName
	}
	scopeJSON, err := json.Marshal(emptyIfNil(c.FileScope))
	if err != nil {
		return fmt.Errorf("marshalling file scope: %w", err)
	}
	var prev sql.NullString
	if c.PreviousConversationID != "" {
		prev = sql.NullString{String: c.PreviousConversationID, Valid: true}
	}
	_, err = s.db.Exec(`
		INSERT INTO conversations (id, name, mode, file_scope, previous_conversation_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, name, c.Mode, string(scopeJSON), prev,
		createdAt.Format(time.RFC3339), createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetConversation(id string) (Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, name, mode, file_scope, previous_conversation_id, created_at, updated_at
		FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	return c, err
}

func (s *Store) ListConversations() ([]Conversation, error) {
	rows, err := s.db.Query(`
		SELECT id, name, mode, file_scope, previous_conversation_id, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func (s *Store) RenameConversation(id, name string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE conversations SET name = ?, updated_at = ? WHERE id = ?`, name, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation removes a conversation and its message log. Files in the
// conversation's scope are left untouched, as are conversations chained from
// this one: their previous_conversation_id simply stops resolving.
func (s *Store) DeleteConversation(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting messages for %s: %w", id, err)
	}

	return tx.Commit()
}

// AppendMessage appends a message to a conversation's log with the next
// sequence number and bumps the conversation's updated_at. The whole append
// runs in one transaction so two concurrent appends cannot claim the same
// sequence number.
func (s *Store) AppendMessage(conversationID, role, content string) (Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Message{}, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM conversations WHERE id = ?`, conversationID).Scan(&exists); err != nil {
		return Message{}, err
	}
	if exists == 0 {
		return Message{}, ErrNotFound
	}

	var seq int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?`, conversationID).Scan(&seq); err != nil {
		return Message{}, fmt.Errorf("computing next seq: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(`
		INSERT INTO messages (conversation_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		conversationID, seq, role, content, now.Format(time.RFC3339Nano),
	); err != nil {
		return Message{}, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339), conversationID); err != nil {
		return Message{}, fmt.Errorf("updating conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("committing append: %w", err)
	}

	return Message{
		ConversationID: conversationID,
		Seq:            seq,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}, nil
}

// GetMessages returns a conversation's messages ordered oldest first.
func (s *Store) GetMessages(conversationID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT conversation_id, seq, role, content, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ConversationID, &m.Seq, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var c Conversation
	var scopeJSON, createdAt, updatedAt string
	var prev sql.NullString
	err := row.Scan(&c.ID, &c.Name, &c.Mode, &scopeJSON, &prev, &createdAt, &updatedAt)
	if err != nil {
		return Conversation{}, err
	}
	if err := json.Unmarshal([]byte(scopeJSON), &c.FileScope); err != nil {
		return Conversation{}, fmt.Errorf("parsing file scope: %w", err)
	}
	c.PreviousConversationID = prev.String
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return c, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
