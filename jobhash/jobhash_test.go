package jobhash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash_Deterministic(t *testing.T) {
	a := Hash("machine-1", "render frame 42", "nonce")
	b := Hash("machine-1", "render frame 42", "nonce")
	require.Equal(t, a, b)
	require.True(t, strings.HasPrefix(a, Prefix))
	require.Len(t, a, len(Prefix)+HexLen)
}

func TestHash_DistinctInputs(t *testing.T) {
	base := Hash("machine-1", "render frame 42", "nonce")
	require.NotEqual(t, base, Hash("machine-2", "render frame 42", "nonce"))
	require.NotEqual(t, base, Hash("machine-1", "render frame 43", "nonce"))
	require.NotEqual(t, base, Hash("machine-1", "render frame 42", "other"))
}

func TestNew_FreshNoncePerCall(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := New("machine-1", "render frame 42")
		_, dup := seen[id]
		require.False(t, dup, "collision on %s", id)
		seen[id] = struct{}{}
	}
}
