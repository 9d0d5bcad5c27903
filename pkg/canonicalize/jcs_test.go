package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalSortsKeys(t *testing.T) {
	out, err := Canonical(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(out))
}

func TestHashIsStableAcrossKeyOrder(t *testing.T) {
	h1, err := Hash(map[string]any{"x": "1", "y": "2"})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"y": "2", "x": "1"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestCanonicalRejectsUnmarshalable(t *testing.T) {
	_, err := Canonical(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
