// Package tools provides the tool registry and execution framework.
//
// This file defines the structured error type carried back to the
// model. A tool failure is a result, not a crash: the dispatcher
// serializes it into the tool message and the loop continues.
package tools

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nugget/scribe-ai-agent/internal/project"
	"github.com/nugget/scribe-ai-agent/internal/workspace"
)

// Code classifies tool failures for the model and for tests.
type Code string

const (
	CodePathEscape      Code = "path_escape"
	CodePolicyDenied    Code = "policy_denied"
	CodeUnauthorized    Code = "unauthorized"
	CodeNotFound        Code = "not_found"
	CodeConflict        Code = "conflict"
	CodeTooLarge        Code = "too_large"
	CodeArgumentInvalid Code = "argument_invalid"
	CodeUnknownTool     Code = "unknown_tool"
	CodeIOError         Code = "io_error"
)

// ToolError is a tool failure with enough structure for the model to
// understand what went wrong and whether retrying could help.
type ToolError struct {
	Code   Code
	Status int
	Detail string
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Errorf builds a ToolError with a formatted detail message.
func Errorf(code Code, status int, format string, args ...any) *ToolError {
	return &ToolError{Code: code, Status: status, Detail: fmt.Sprintf(format, args...)}
}

// asToolError normalizes any error into a ToolError, translating the
// workspace and store sentinels into their canonical codes.
func asToolError(err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}

	switch {
	case errors.Is(err, workspace.ErrPathEscape):
		return &ToolError{Code: CodePathEscape, Status: http.StatusBadRequest, Detail: "Invalid path."}
	case errors.Is(err, workspace.ErrNotFound):
		return &ToolError{Code: CodeNotFound, Status: http.StatusNotFound, Detail: "File not found"}
	case errors.Is(err, project.ErrNotFound):
		return &ToolError{Code: CodeNotFound, Status: http.StatusNotFound, Detail: "Project not found"}
	case errors.Is(err, workspace.ErrConflict):
		return &ToolError{Code: CodeConflict, Status: http.StatusConflict, Detail: err.Error()}
	}
	return &ToolError{Code: CodeIOError, Status: http.StatusInternalServerError, Detail: err.Error()}
}
