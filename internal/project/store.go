// Package project manages the catalog of projects. Each project owns a
// name, a preferred model, a system prompt, and a workspace directory
// under the data dir. Projects are persisted in SQLite so they survive
// restarts.
package project

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a project ID does not exist.
var ErrNotFound = errors.New("project not found")

// DefaultSystemPrompt seeds new projects that do not supply their own.
const DefaultSystemPrompt = `You are a sandboxed project assistant.
You can read, write, create, move, and delete files inside this project's workspace using the tools provided to you.
All paths are relative to the workspace root.
Never step outside the workspace root.
Describe the exact file operations you will perform when working with code.`

// Project is one row of the catalog. Root is empty when the project
// uses the default workspace location under the data dir.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Model        string    `json:"model,omitempty"`
	SystemPrompt string    `json:"system_prompt"`
	Root         string    `json:"root,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Update carries partial changes to a project. Nil fields are left
// untouched; a pointer to the empty string clears the field where the
// schema allows that.
type Update struct {
	Name         *string
	Model        *string
	SystemPrompt *string
	Root         *string
}

// Store persists projects in SQLite and owns their workspace roots.
type Store struct {
	db      *sql.DB
	dataDir string
}

// NewStore creates a project store, running migrations on first use.
// Workspace directories are created under dataDir/workspaces.
func NewStore(db *sql.DB, dataDir string) (*Store, error) {
	s := &Store{db: db, dataDir: dataDir}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate projects: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			model         TEXT NOT NULL DEFAULT '',
			system_prompt TEXT NOT NULL DEFAULT '',
			root          TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMP NOT NULL,
			updated_at    TIMESTAMP NOT NULL
		)
	`)
	return err
}

// Create inserts a new project. Empty name gets a generated one, and an
// empty system prompt falls back to DefaultSystemPrompt. The workspace
// directory is created immediately.
func (s *Store) Create(name, model, systemPrompt, root string) (Project, error) {
	id := uuid.NewString()[:8]

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Project " + id
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	now := time.Now().UTC()
	p := Project{
		ID:           id,
		Name:         name,
		Model:        model,
		SystemPrompt: systemPrompt,
		Root:         strings.TrimSpace(root),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := os.MkdirAll(s.WorkspaceRoot(p), 0755); err != nil {
		return Project{}, fmt.Errorf("create workspace for %s: %w", id, err)
	}

	_, err := s.db.Exec(
		`INSERT INTO projects (id, name, model, system_prompt, root, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Model, p.SystemPrompt, p.Root, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// Get returns one project by ID.
func (s *Store) Get(id string) (Project, error) {
	row := s.db.QueryRow(
		`SELECT id, name, model, system_prompt, root, created_at, updated_at
		 FROM projects WHERE id = ?`, id,
	)
	return scanProject(row)
}

// List returns all projects, most recently updated first.
func (s *Store) List() ([]Project, error) {
	rows, err := s.db.Query(
		`SELECT id, name, model, system_prompt, root, created_at, updated_at
		 FROM projects ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Apply updates a project in place. An empty name update keeps the
// existing name; clearing the root falls back to the default workspace
// location. Returns the updated row.
func (s *Store) Apply(id string, u Update) (Project, error) {
	p, err := s.Get(id)
	if err != nil {
		return Project{}, err
	}

	if u.Name != nil {
		if name := strings.TrimSpace(*u.Name); name != "" {
			p.Name = name
		}
	}
	if u.Model != nil {
		p.Model = *u.Model
	}
	if u.SystemPrompt != nil {
		p.SystemPrompt = *u.SystemPrompt
	}
	if u.Root != nil {
		p.Root = strings.TrimSpace(*u.Root)
	}
	p.UpdatedAt = time.Now().UTC()

	if err := os.MkdirAll(s.WorkspaceRoot(p), 0755); err != nil {
		return Project{}, fmt.Errorf("create workspace for %s: %w", id, err)
	}

	_, err = s.db.Exec(
		`UPDATE projects SET name = ?, model = ?, system_prompt = ?, root = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Model, p.SystemPrompt, p.Root, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// Touch bumps a project's updated_at. Used when activity (a chat
// message) happens under the project.
func (s *Store) Touch(id string) error {
	_, err := s.db.Exec(
		`UPDATE projects SET updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return err
}

// Delete removes a project row and its workspace tree. The default
// workspace location is removed even when a custom root was set later,
// so stale default trees do not accumulate.
func (s *Store) Delete(id string) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	os.RemoveAll(s.defaultRoot(id))
	if p.Root != "" {
		os.RemoveAll(p.Root)
	}
	return nil
}

// WorkspaceRoot returns the absolute directory confining the project's
// files: the custom root when set, the default location otherwise.
func (s *Store) WorkspaceRoot(p Project) string {
	if p.Root != "" {
		if abs, err := filepath.Abs(p.Root); err == nil {
			return abs
		}
		return p.Root
	}
	return s.defaultRoot(p.ID)
}

func (s *Store) defaultRoot(id string) string {
	abs, err := filepath.Abs(filepath.Join(s.dataDir, "workspaces", id))
	if err != nil {
		return filepath.Join(s.dataDir, "workspaces", id)
	}
	return abs
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Model, &p.SystemPrompt, &p.Root, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, err
	}
	return p, nil
}
