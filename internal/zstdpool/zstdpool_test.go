package zstdpool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("unit_land_aggression;"), 4096)
	packed, err := Compress(payload)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(payload))

	out, err := Decompress(packed, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestDecompressRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Decompress([]byte("not a zstd frame"), 0)
	require.Error(t, err)
}

func TestEmptyPayload(t *testing.T) {
	t.Parallel()

	packed, err := Compress(nil)
	require.NoError(t, err)
	out, err := Decompress(packed, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}
