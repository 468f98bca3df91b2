// Package types defines core domain types for the scriptrun runtime.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// Language is the declared source language of a snippet.
type Language string

const (
	// LanguageJavaScript runs through the builtin driver or deno.
	LanguageJavaScript Language = "javascript"
	// LanguageTypeScript runs through deno.
	LanguageTypeScript Language = "typescript"
	// LanguagePython runs through uv.
	LanguagePython Language = "python"
)

// Languages lists every supported language in a stable order.
var Languages = []Language{LanguageJavaScript, LanguageTypeScript, LanguagePython}

var languageAliases = map[string]Language{
	"javascript": LanguageJavaScript,
	"js":         LanguageJavaScript,
	"mjs":        LanguageJavaScript,
	"typescript": LanguageTypeScript,
	"ts":         LanguageTypeScript,
	"deno":       LanguageTypeScript,
	"python":     LanguagePython,
	"py":         LanguagePython,
	"python3":    LanguagePython,
}

// ParseLanguage resolves a language name or alias, case-insensitively.
func ParseLanguage(s string) (Language, error) {
	lang, ok := languageAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unsupported language %q", s)
	}
	return lang, nil
}

// Extension returns the file extension used for cached snippet files.
func (l Language) Extension() string {
	switch l {
	case LanguageTypeScript:
		return ".ts"
	case LanguagePython:
		return ".py"
	default:
		return ".js"
	}
}

// ToolName returns the worker tool that executes snippets of this language.
func (l Language) ToolName() string {
	return "run_" + string(l)
}

// LanguageForTool maps a worker tool name back to its language.
func LanguageForTool(name string) (Language, bool) {
	for _, l := range Languages {
		if l.ToolName() == name {
			return l, true
		}
	}
	return "", false
}

// Snippet is an opaque block of source code submitted for one execution.
type Snippet struct {
	// Language is the declared source language.
	Language Language `json:"language" msgpack:"language"`
	// Body is the source text.
	Body string `json:"body" msgpack:"body"`
	// ShowLogs echoes captured diagnostic lines live to stderr.
	ShowLogs bool `json:"show_logs,omitempty" msgpack:"show_logs,omitempty"`
}
