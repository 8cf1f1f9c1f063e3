package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	h := NewHeader()
	require.NoError(t, h.Set("schema_version", 1))
	require.NoError(t, h.Set("source", "agent"))
	require.NoError(t, h.Set("kind", "decision"))
	require.NoError(t, h.Set("content", "Auth V1"))
	require.NoError(t, h.Set("timestamp", "2025-01-01T12:34:56.789Z"))

	text, err := Stringify(h, "# Auth V1\n\nbody text\n")
	require.NoError(t, err)

	parsedHeader, body, err := Parse(text)
	require.NoError(t, err)
	require.Equal(t, "# Auth V1\n\nbody text\n", body)

	again, err := Stringify(parsedHeader, body)
	require.NoError(t, err)
	require.Equal(t, text, again)
}

func TestParseMissingDelimiters(t *testing.T) {
	_, _, err := Parse("no header here")
	require.Error(t, err)

	_, _, err = Parse("---\nschema_version: 1\n")
	require.Error(t, err)
}

func TestHeaderOrderPreserved(t *testing.T) {
	h := NewHeader()
	require.NoError(t, h.Set("b", 2))
	require.NoError(t, h.Set("a", 1))
	require.NoError(t, h.Set("b", 20))
	require.Equal(t, []string{"b", "a"}, h.Keys())

	var got int
	ok, err := h.Get("b", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 20, got)
}

func TestGetMissingKey(t *testing.T) {
	h := NewHeader()
	var v string
	ok, err := h.Get("missing", &v)
	require.NoError(t, err)
	require.False(t, ok)
}
