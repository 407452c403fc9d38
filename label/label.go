// Package label implements parsing and canonical serialization of target
// labels of the form "//path/to/package:name".
//
// The accepted character set is [A-Za-z0-9_\-./:]. A label starts with "//",
// continues with slash-separated path components, and optionally ends with
// ":name". When the target name is omitted it defaults to the last path
// component, so "//foo/bar" names the same target as "//foo/bar:bar".
package label

import (
	"fmt"
	"strings"
)

// ParseError describes why a label failed to parse.
type ParseError struct {
	Code  ErrorCode
	Label string
}

// ErrorCode categorizes label parse failures.
type ErrorCode string

const (
	// ErrCodeInvalidCharacters indicates a character outside the accepted set.
	ErrCodeInvalidCharacters ErrorCode = "INVALID_CHARACTERS"

	// ErrCodeUnexpectedPrefix indicates the label does not start with "//".
	ErrCodeUnexpectedPrefix ErrorCode = "UNEXPECTED_PREFIX"

	// ErrCodeUnexpectedCharacter indicates a misplaced ":" or "/" after the
	// target separator.
	ErrCodeUnexpectedCharacter ErrorCode = "UNEXPECTED_CHARACTER"

	// ErrCodeUnexpectedSuffix indicates a dangling separator at the end.
	ErrCodeUnexpectedSuffix ErrorCode = "UNEXPECTED_SUFFIX"

	// ErrCodeInvalidLabel indicates a structurally empty label.
	ErrCodeInvalidLabel ErrorCode = "INVALID_LABEL"
)

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q", e.Code, e.Label)
}

// Label is a parsed, canonical target reference. The zero Label is invalid.
type Label struct {
	components []string
	name       string
}

// New constructs a label directly from path components and a target name,
// validating the same character rules as Parse.
func New(components []string, name string) (Label, error) {
	text := "//" + strings.Join(components, "/") + ":" + name
	return Parse(text)
}

// Parse parses a textual label. Invalid characters are rejected before any
// structural checks.
func Parse(s string) (Label, error) {
	for _, r := range s {
		if !validRune(r) {
			return Label{}, &ParseError{Code: ErrCodeInvalidCharacters, Label: s}
		}
	}

	if !strings.HasPrefix(s, "//") {
		return Label{}, &ParseError{Code: ErrCodeUnexpectedPrefix, Label: s}
	}
	rest := s[2:]
	if rest == "" {
		return Label{}, &ParseError{Code: ErrCodeInvalidLabel, Label: s}
	}

	path := rest
	name := ""
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		path, name = rest[:i], rest[i+1:]
		if name == "" {
			return Label{}, &ParseError{Code: ErrCodeUnexpectedSuffix, Label: s}
		}
		if strings.ContainsAny(name, ":/") {
			return Label{}, &ParseError{Code: ErrCodeUnexpectedCharacter, Label: s}
		}
	}
	if path == "" {
		return Label{}, &ParseError{Code: ErrCodeInvalidLabel, Label: s}
	}

	// Empty path components are tolerated ("//foo/:bar" parses), but a
	// shorthand label cannot borrow an empty last component as its name.
	components := strings.Split(path, "/")
	if name == "" {
		name = components[len(components)-1]
		if name == "" {
			return Label{}, &ParseError{Code: ErrCodeUnexpectedSuffix, Label: s}
		}
	}

	return Label{components: components, name: name}, nil
}

// Components returns the path components. The slice is shared; callers must
// not mutate it.
func (l Label) Components() []string {
	return l.components
}

// Name returns the target name.
func (l Label) Name() string {
	return l.name
}

// IsValid reports whether the label was produced by a successful parse.
func (l Label) IsValid() bool {
	return len(l.components) > 0
}

// String returns the canonical textual form. The ":name" suffix is elided
// when the name equals the last path component, so the canonical form is the
// shortest spelling that parses back to the same label.
func (l Label) String() string {
	if !l.IsValid() {
		return ""
	}
	path := "//" + strings.Join(l.components, "/")
	if l.name == l.components[len(l.components)-1] {
		return path
	}
	return path + ":" + l.name
}

// MarshalJSON encodes the canonical textual form.
func (l Label) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// UnmarshalJSON decodes a textual label.
func (l *Label) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("unmarshal label: not a JSON string: %s", data)
	}
	parsed, err := Parse(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func validRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-' || r == '.' || r == '/' || r == ':':
		return true
	default:
		return false
	}
}
