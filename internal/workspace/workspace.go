// Package workspace provides confined filesystem access for a single
// project. Every operation resolves a caller-supplied relative path
// against the workspace root and refuses anything that would land
// outside it. The accessor knows nothing about tool policy; callers
// layer the denylist on top.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Sentinel errors surfaced by the accessor. Callers translate these
// into their own error taxonomy at the boundary.
var (
	// ErrPathEscape means the resolved path would leave the workspace.
	ErrPathEscape = errors.New("path escapes workspace")

	// ErrNotFound means the target does not exist (or is not a regular
	// file where one is required).
	ErrNotFound = errors.New("not found")

	// ErrConflict means a move failed because the destination already
	// exists as an incompatible type.
	ErrConflict = errors.New("destination conflict")

	// ErrNotUTF8 means a strict read hit invalid UTF-8.
	ErrNotUTF8 = errors.New("file is not valid UTF-8")
)

// Read limits. MaxReadChars bounds read_file responses; search skips
// files larger than SearchMaxFileBytes rather than failing.
const (
	MaxReadChars       = 200000
	SearchMaxFileBytes = 500000
	searchWindow       = 80
)

// Workspace confines file operations to one root directory.
type Workspace struct {
	root string
}

// New creates a Workspace rooted at dir, creating the directory if
// needed. The stored root is absolute and cleaned so escape checks are
// a simple prefix comparison.
func New(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	abs = filepath.Clean(abs)
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve converts a relative path to an absolute path inside the
// workspace. Both separator styles are accepted. Any ".." segment is
// rejected outright, and the joined result is prefix-checked against
// the root with a trailing separator so a sibling like /ws2 cannot
// pass for /ws.
func (w *Workspace) Resolve(rel string) (string, error) {
	norm := strings.ReplaceAll(rel, "\\", "/")
	norm = strings.TrimLeft(norm, "/")

	for _, seg := range strings.Split(norm, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
		}
	}

	target := filepath.Clean(filepath.Join(w.root, filepath.FromSlash(norm)))
	if target != w.root && !strings.HasPrefix(target, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	return target, nil
}

// relFromRoot converts an absolute path under the root back to a
// slash-separated relative path.
func (w *Workspace) relFromRoot(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// Entry describes one directory member. Size is nil for directories,
// matching the wire shape consumed by clients.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"` // "file" or "dir"
	Size *int64 `json:"size"`
}

// List returns the entries of a directory, sorted lexicographically.
// A missing or non-directory target yields an empty list, not an
// error, so the caller can treat "nothing there" uniformly.
func (w *Workspace) List(rel string) ([]Entry, error) {
	target, err := w.Resolve(rel)
	if err != nil {
		return nil, err
	}

	dirents, err := os.ReadDir(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", rel, err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		e := Entry{Name: d.Name(), Type: "file"}
		if d.IsDir() {
			e.Type = "dir"
		} else if info, err := d.Info(); err == nil {
			size := info.Size()
			e.Size = &size
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Read returns up to maxChars characters of a file, replacing invalid
// UTF-8 rather than failing. maxChars is clamped into [1, MaxReadChars].
func (w *Workspace) Read(rel string, maxChars int) (string, error) {
	if maxChars < 1 {
		maxChars = 1
	}
	if maxChars > MaxReadChars {
		maxChars = MaxReadChars
	}

	data, err := w.readFile(rel)
	if err != nil {
		return "", err
	}

	content := strings.ToValidUTF8(string(data), "�")
	if runes := []rune(content); len(runes) > maxChars {
		content = string(runes[:maxChars])
	}
	return content, nil
}

// ReadStrict returns the full file content, failing on invalid UTF-8.
// Used by the direct file API, which should not silently mangle data.
func (w *Workspace) ReadStrict(rel string) (string, error) {
	data, err := w.readFile(rel)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s", ErrNotUTF8, rel)
	}
	return string(data), nil
}

func (w *Workspace) readFile(rel string) ([]byte, error) {
	target, err := w.Resolve(rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}

// Write stores content at rel, creating parent directories as needed.
// The write is direct, not atomic; the workspace is scratch space, not
// a system of record.
func (w *Workspace) Write(rel, content string) error {
	target, err := w.Resolve(rel)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dirs for %s: %w", rel, err)
	}
	if err := os.WriteFile(target, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// Mkdir creates a directory (and parents). Idempotent.
func (w *Workspace) Mkdir(rel string) error {
	target, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", rel, err)
	}
	return nil
}

// Touch creates an empty file if rel does not exist, creating parent
// directories as needed. Existing content is left alone.
func (w *Workspace) Touch(rel string) error {
	target, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dirs for %s: %w", rel, err)
	}
	if _, err := os.Stat(target); err == nil {
		return nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", rel, err)
	}
	return f.Close()
}

// Delete removes a file or directory tree. Deleting an absent path is
// a successful no-op.
func (w *Workspace) Delete(rel string) error {
	target, err := w.Resolve(rel)
	if err != nil {
		return err
	}

	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", rel, err)
	}

	if info.IsDir() {
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("delete %s: %w", rel, err)
		}
		return nil
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf("delete %s: %w", rel, err)
	}
	return nil
}

// Move renames src to dst, creating dst's parent directories first.
// A rename that fails because the destination exists as an
// incompatible type is reported as ErrConflict.
func (w *Workspace) Move(src, dst string) error {
	from, err := w.Resolve(src)
	if err != nil {
		return err
	}
	to, err := w.Resolve(dst)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return fmt.Errorf("create parent dirs for %s: %w", dst, err)
	}

	if err := os.Rename(from, to); err != nil {
		if info, statErr := os.Stat(to); statErr == nil && info.IsDir() {
			return fmt.Errorf("%w: %s", ErrConflict, dst)
		}
		return fmt.Errorf("move %s to %s: %w", src, dst, err)
	}
	return nil
}

// Match is one search hit: the file's workspace-relative path and a
// preview window around the first occurrence of the query.
type Match struct {
	Path    string `json:"path"`
	Preview string `json:"preview"`
}

// Search walks the tree under rel looking for a literal substring.
// The denied callback receives workspace-relative slash paths; denied
// directories are pruned before descent so their contents are never
// opened, and denied files are skipped. Files over SearchMaxFileBytes
// are skipped. Returns at most maxResults matches; truncated reports
// whether the cap was hit.
func (w *Workspace) Search(query, rel string, maxResults int, denied func(string) bool) ([]Match, bool, error) {
	start, err := w.Resolve(rel)
	if err != nil {
		return nil, false, err
	}

	info, err := os.Stat(start)
	if err != nil || !info.IsDir() {
		return []Match{}, false, nil
	}

	matches := []Match{}
	truncated := false

	walkErr := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}

		relPath := w.relFromRoot(path)

		if d.IsDir() {
			if path != start && denied != nil && denied(relPath) {
				return fs.SkipDir
			}
			return nil
		}

		if denied != nil && denied(relPath) {
			return nil
		}

		fi, err := d.Info()
		if err != nil || fi.Size() > SearchMaxFileBytes {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}

		text := string(data)
		idx := strings.Index(text, query)
		if idx < 0 {
			return nil
		}

		lo := idx - searchWindow
		if lo < 0 {
			lo = 0
		}
		hi := idx + len(query) + searchWindow
		if hi > len(text) {
			hi = len(text)
		}

		matches = append(matches, Match{
			Path:    relPath,
			Preview: strings.ToValidUTF8(text[lo:hi], ""),
		})
		if len(matches) >= maxResults {
			truncated = true
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return nil, false, fmt.Errorf("search %s: %w", rel, walkErr)
	}

	return matches, truncated, nil
}
