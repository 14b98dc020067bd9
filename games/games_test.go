package games

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetKnownGame(t *testing.T) {
	t.Parallel()

	g, err := Get("arena_of_kings_2")
	require.NoError(t, err)
	assert.Equal(t, "Arena of Kings II", g.DisplayName)
	assert.Equal(t, uint32(5), g.PackVersion)
	assert.NotEmpty(t, g.CAPacks)
}

func TestGetUnknownGame(t *testing.T) {
	t.Parallel()

	_, err := Get("chess")
	require.Error(t, err)
}

func TestPackPriorityFollowsListOrder(t *testing.T) {
	t.Parallel()

	g, err := Get("arena_of_kings")
	require.NoError(t, err)
	assert.Equal(t, 0, g.PackPriority("boot.pack"))
	assert.Less(t, g.PackPriority("data.pack"), g.PackPriority("local_en.pack"))
	assert.Equal(t, -1, g.PackPriority("mod.pack"))
}

func TestKeysSorted(t *testing.T) {
	t.Parallel()

	keys := Keys()
	require.NotEmpty(t, keys)
	assert.IsNonDecreasing(t, keys)
}
