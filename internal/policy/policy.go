// Package policy decides which paths and which tool capabilities the
// agent may use. Path legality and capability legality are independent
// checks; a tool call must pass both.
//
// The denylist is a static table applied to every path segment, not just
// the leaf, so a denied name cannot be smuggled inside an otherwise
// permitted subtree.
package policy

import (
	"sort"
	"strings"
)

// Capability identifies a class of privileged tool operations. Each
// class is gated by one process-wide toggle.
type Capability int

const (
	// CapabilityNone marks read-only tools that need no toggle.
	CapabilityNone Capability = iota

	// CapabilityWrite covers file writes and directory creation.
	CapabilityWrite

	// CapabilityDelete covers file and directory deletion.
	CapabilityDelete

	// CapabilityRename covers move/rename operations.
	CapabilityRename

	// CapabilityInstructionsEdit covers rewriting the project's own
	// system prompt. Even when enabled, each use additionally requires
	// a fresh authorization token in the latest user message.
	CapabilityInstructionsEdit
)

// ConfigKey returns the configuration key that enables the capability.
// Denial messages cite it so an operator knows how to remediate.
func (c Capability) ConfigKey() string {
	switch c {
	case CapabilityWrite:
		return "capabilities.allow_write"
	case CapabilityDelete:
		return "capabilities.allow_delete"
	case CapabilityRename:
		return "capabilities.allow_rename"
	case CapabilityInstructionsEdit:
		return "capabilities.allow_instructions_edit"
	default:
		return ""
	}
}

// Toggles is the process-wide capability switch set, sourced from
// configuration at startup and immutable for the life of the run.
type Toggles struct {
	AllowWrite            bool
	AllowDelete           bool
	AllowRename           bool
	AllowInstructionsEdit bool
}

// Allows reports whether the toggle owning the capability is on.
// CapabilityNone is always allowed.
func (t Toggles) Allows(c Capability) bool {
	switch c {
	case CapabilityWrite:
		return t.AllowWrite
	case CapabilityDelete:
		return t.AllowDelete
	case CapabilityRename:
		return t.AllowRename
	case CapabilityInstructionsEdit:
		return t.AllowInstructionsEdit
	default:
		return true
	}
}

// Static denylist tables. Directory names are denied in any segment
// position; filenames and extensions are checked at the leaf.
var (
	deniedDirs = map[string]bool{
		".git":         true,
		"node_modules": true,
		"__pycache__":  true,
		"output":       true,
		"data":         true,
	}

	deniedFiles = map[string]bool{
		".env": true,
	}

	deniedExts = map[string]bool{
		".pem": true,
		".key": true,
		".pfx": true,
		".p12": true,
	}
)

// Segments normalizes a relative path into its component segments.
// Both separator styles are accepted, leading slashes are ignored, and
// empty and "." segments are dropped. ".." segments are preserved so
// callers can detect traversal.
func Segments(rel string) []string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	var segs []string
	for _, s := range strings.Split(rel, "/") {
		if s == "" || s == "." {
			continue
		}
		segs = append(segs, s)
	}
	return segs
}

// IsDenied reports whether a relative path may not be touched by agent
// tools: any ".." segment, any denylisted directory name in any
// position, a denylisted leaf filename, or a denylisted leaf extension
// (case-insensitive).
func IsDenied(rel string) bool {
	segs := Segments(rel)

	for _, s := range segs {
		if s == ".." {
			return true
		}
		if deniedDirs[s] {
			return true
		}
	}

	if len(segs) == 0 {
		return false
	}

	leaf := segs[len(segs)-1]
	if deniedFiles[leaf] {
		return true
	}

	lower := strings.ToLower(leaf)
	if i := strings.LastIndex(lower, "."); i >= 0 {
		if deniedExts[lower[i:]] {
			return true
		}
	}

	return false
}

// Denylist returns sorted copies of the static tables for capability
// reporting.
func Denylist() (dirs, files, exts []string) {
	for d := range deniedDirs {
		dirs = append(dirs, d)
	}
	for f := range deniedFiles {
		files = append(files, f)
	}
	for e := range deniedExts {
		exts = append(exts, e)
	}
	sort.Strings(dirs)
	sort.Strings(files)
	sort.Strings(exts)
	return dirs, files, exts
}
