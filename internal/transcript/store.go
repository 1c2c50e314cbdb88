// Package transcript persists chat sessions and their message history.
// Messages are append-only and ordered; the store never rewrites a
// message once recorded.
package transcript

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a chat ID does not exist.
var ErrNotFound = errors.New("chat not found")

// Chat is one conversation under a project.
type Chat struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn in a chat. Only user and assistant turns are
// persisted; tool traffic inside the agent loop is ephemeral.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"ts"`
}

// Store persists chats and messages in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a transcript store, running migrations on first use.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate transcripts: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			id         TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			title      TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id    TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, id);
		CREATE INDEX IF NOT EXISTS idx_chats_project ON chats(project_id);
	`)
	return err
}

// CreateChat starts a new chat under a project. An empty title gets a
// generated one.
func (s *Store) CreateChat(projectID, title string) (Chat, error) {
	id := uuid.NewString()[:8]
	if strings.TrimSpace(title) == "" {
		title = "Chat " + id
	}

	now := time.Now().UTC()
	c := Chat{
		ID:        id,
		ProjectID: projectID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(
		`INSERT INTO chats (id, project_id, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.Title, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return Chat{}, err
	}
	return c, nil
}

// GetChat returns one chat by ID.
func (s *Store) GetChat(id string) (Chat, error) {
	row := s.db.QueryRow(
		`SELECT id, project_id, title, created_at, updated_at FROM chats WHERE id = ?`, id,
	)
	var c Chat
	err := row.Scan(&c.ID, &c.ProjectID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Chat{}, err
	}
	return c, nil
}

// ListChats returns a project's chats, most recently updated first.
func (s *Store) ListChats(projectID string) ([]Chat, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, title, created_at, updated_at
		 FROM chats WHERE project_id = ? ORDER BY updated_at DESC`, projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []Chat{}
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat and its messages.
func (s *Store) DeleteChat(id string) error {
	res, err := s.db.Exec(`DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	_, err = s.db.Exec(`DELETE FROM messages WHERE chat_id = ?`, id)
	return err
}

// DeleteByProject removes all chats and messages under a project.
// Called when the project itself is deleted.
func (s *Store) DeleteByProject(projectID string) error {
	_, err := s.db.Exec(`
		DELETE FROM messages WHERE chat_id IN (SELECT id FROM chats WHERE project_id = ?)
	`, projectID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`DELETE FROM chats WHERE project_id = ?`, projectID)
	return err
}

// Append records one message at the end of a chat and bumps the chat's
// updated_at.
func (s *Store) Append(chatID, role, content string) (Message, error) {
	if _, err := s.GetChat(chatID); err != nil {
		return Message{}, err
	}

	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO messages (chat_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		chatID, role, content, now,
	)
	if err != nil {
		return Message{}, err
	}
	_, err = s.db.Exec(`UPDATE chats SET updated_at = ? WHERE id = ?`, now, chatID)
	if err != nil {
		return Message{}, err
	}
	return Message{Role: role, Content: content, CreatedAt: now}, nil
}

// Messages returns a chat's history in insertion order.
func (s *Store) Messages(chatID string) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT role, content, created_at FROM messages WHERE chat_id = ? ORDER BY id ASC`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
