package metadata

import (
	"fmt"
	"sort"
	"strings"
)

// Issue is a single violation found while validating a description.
type Issue struct {
	// Path is a JSON pointer to the offending value, e.g. /inputs/x/name.
	Path string `json:"path,omitempty"`
	// Field is Path in dotted form, e.g. inputs.x.name.
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return i.Field + ": " + i.Message
}

// ValidationError reports every issue found in a description.
type ValidationError struct {
	Source string
	issues []Issue
}

func newValidationError(source string, issues ...Issue) *ValidationError {
	sorted := append([]Issue(nil), issues...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Path < sorted[b].Path
	})
	return &ValidationError{Source: source, issues: sorted}
}

// Issues returns a copy of the recorded issues ordered by path.
func (e *ValidationError) Issues() []Issue {
	if e == nil {
		return nil
	}
	return append([]Issue(nil), e.issues...)
}

// HasField reports whether any issue points at the dotted field path.
func (e *ValidationError) HasField(field string) bool {
	if e == nil {
		return false
	}
	for _, issue := range e.issues {
		if issue.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "metadata: validation failed"
	}
	var b strings.Builder
	b.WriteString("metadata: ")
	if e.Source != "" {
		b.WriteString(e.Source)
		b.WriteString(": ")
	}
	noun := "issues"
	if len(e.issues) == 1 {
		noun = "issue"
	}
	fmt.Fprintf(&b, "%d validation %s", len(e.issues), noun)
	for _, issue := range e.issues {
		b.WriteString("\n  - ")
		b.WriteString(issue.String())
	}
	return b.String()
}

func newIssue(path []string, format string, args ...any) Issue {
	return Issue{
		Path:    pointerFromSegments(path),
		Field:   strings.Join(path, "."),
		Message: fmt.Sprintf(format, args...),
	}
}

func pointerFromSegments(path []string) string {
	if len(path) == 0 {
		return ""
	}
	escaped := make([]string, len(path))
	for i, segment := range path {
		segment = strings.ReplaceAll(segment, "~", "~0")
		escaped[i] = strings.ReplaceAll(segment, "/", "~1")
	}
	return "/" + strings.Join(escaped, "/")
}

func child(path []string, segments ...string) []string {
	out := make([]string, 0, len(path)+len(segments))
	out = append(out, path...)
	return append(out, segments...)
}
