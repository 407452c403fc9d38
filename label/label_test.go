package label

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	cases := []struct {
		input      string
		components []string
		name       string
	}{
		{"//foo/bar:baz", []string{"foo", "bar"}, "baz"},
		{"//foo/bar", []string{"foo", "bar"}, "bar"},
		{"//foo", []string{"foo"}, "foo"},
		{"//foo/:bar", []string{"foo", ""}, "bar"},
		{"//a/b/c:target", []string{"a", "b", "c"}, "target"},
		{"//pkg/sub.dir:lib_v2-final", []string{"pkg", "sub.dir"}, "lib_v2-final"},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			l, err := Parse(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.components, l.Components())
			assert.Equal(t, tc.name, l.Name())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		input string
		code  ErrorCode
	}{
		{"/foo:bar", ErrCodeUnexpectedPrefix},
		{"foo/bar", ErrCodeUnexpectedPrefix},
		{"//foo!bar:baz", ErrCodeInvalidCharacters},
		{"//foo bar", ErrCodeInvalidCharacters},
		{"/foo!bar", ErrCodeInvalidCharacters},
		{"//foo:bar:baz", ErrCodeUnexpectedCharacter},
		{"//foo:bar/baz", ErrCodeUnexpectedCharacter},
		{"//foo:", ErrCodeUnexpectedSuffix},
		{"//foo/", ErrCodeUnexpectedSuffix},
		{"//", ErrCodeInvalidLabel},
		{"", ErrCodeUnexpectedPrefix},
		{"//:name", ErrCodeInvalidLabel},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			_, err := Parse(tc.input)
			require.Error(t, err)
			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tc.code, pe.Code)
		})
	}
}

func TestCanonical_RoundTrips(t *testing.T) {
	inputs := []string{
		"//foo/bar:baz",
		"//foo/bar",
		"//foo/bar:bar",
		"//foo/:bar",
		"//a/b/c",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			l, err := Parse(input)
			require.NoError(t, err)

			again, err := Parse(l.String())
			require.NoError(t, err)
			assert.Equal(t, l, again)
			assert.Equal(t, l.String(), again.String())
		})
	}
}

func TestCanonical_ShorthandElision(t *testing.T) {
	explicit, err := Parse("//foo/bar:bar")
	require.NoError(t, err)
	assert.Equal(t, "//foo/bar", explicit.String())

	distinct, err := Parse("//foo/bar:baz")
	require.NoError(t, err)
	assert.Equal(t, "//foo/bar:baz", distinct.String())
}

func TestNew(t *testing.T) {
	l, err := New([]string{"pkg", "lib"}, "lib")
	require.NoError(t, err)
	assert.Equal(t, "//pkg/lib", l.String())

	_, err = New([]string{"bad component"}, "x")
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	l, err := Parse("//foo/bar:baz")
	require.NoError(t, err)

	encoded, err := json.Marshal(l)
	require.NoError(t, err)
	assert.Equal(t, `"//foo/bar:baz"`, string(encoded))

	var decoded Label
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, l, decoded)
}

func TestZeroLabel(t *testing.T) {
	var l Label
	assert.False(t, l.IsValid())
	assert.Equal(t, "", l.String())
}
