package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsObjectKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"zebra":  1,
		"apple":  2,
		"middle": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"apple":2,"middle":3,"zebra":1}`, string(got))
}

func TestMarshalCanonical_StructsUseJSONTags(t *testing.T) {
	type inner struct {
		Count int    `json:"count"`
		Name  string `json:"name"`
	}
	type outer struct {
		Item  inner    `json:"item"`
		Tags  []string `json:"tags,omitempty"`
		Valid bool     `json:"valid"`
	}
	got, err := MarshalCanonical(outer{
		Item:  inner{Count: 5, Name: "abc"},
		Valid: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"item":{"count":5,"name":"abc"},"valid":true}`, string(got))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{"cmd": "a < b && c > d"})
	require.NoError(t, err)
	assert.Equal(t, `{"cmd":"a < b && c > d"}`, string(got))
}

func TestMarshalCanonical_ForbidsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"ratio": 1.5})
	assert.Error(t, err)
}

func TestMarshalCanonical_ForbidsNull(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"gone": nil})
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)
}

func TestMarshalCanonical_LargeIntegersSurvive(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{"big": int64(1) << 60})
	require.NoError(t, err)
	assert.Equal(t, `{"big":1152921504606846976}`, string(got))
}

func TestMarshalCanonical_NFCNormalizesStrings(t *testing.T) {
	// "e" + COMBINING ACUTE ACCENT normalizes to the precomposed form.
	decomposed := "e\u0301"
	composed := "\u00e9"

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonical_Deterministic(t *testing.T) {
	input := map[string]any{
		"list": []any{"a", "b", "c"},
		"n":    42,
		"s":    "text",
	}
	first, err := MarshalCanonical(input)
	require.NoError(t, err)
	for range 10 {
		again, err := MarshalCanonical(input)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestLessUTF16(t *testing.T) {
	assert.True(t, lessUTF16("a", "b"))
	assert.True(t, lessUTF16("a", "aa"))
	assert.False(t, lessUTF16("b", "a"))
	assert.False(t, lessUTF16("a", "a"))
}
