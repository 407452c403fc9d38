package engine

import (
	"errors"
	"strings"
)

// CycleError reports a dependency edge that would close a cycle. Path is the
// ordered list of keys forming the cycle, starting and ending at the
// offending node.
type CycleError struct {
	Path []Key
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = describeKey(k)
	}
	return "CYCLE_DETECTED: " + strings.Join(parts, " -> ")
}

// IsCycleError reports whether err is a cycle detection error.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

func describeKey(k Key) string {
	if s, ok := k.(interface{ String() string }); ok {
		return s.String()
	}
	return k.TypeIdentifier()
}
