package presence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidGroupName(t *testing.T) {
	tests := []struct {
		name  string
		group string
		want  bool
	}{
		{"simple", "lobby", true},
		{"punctuation", "room-1_a.b", true},
		{"digits", "42", true},
		{"empty", "", false},
		{"space", "lob by", false},
		{"colon", "a:b", false},
		{"unicode", "大厅", false},
		{"at capacity", strings.Repeat("a", 100), false},
		{"below capacity", strings.Repeat("a", 99), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidGroupName(tt.group, 100))
		})
	}
}

func TestRouterSingleShard(t *testing.T) {
	env := newTestEnv(t, 1)

	for _, group := range []string{"lobby", "a", "b.c", "room-9"} {
		name, err := env.layer.router.Shard(group)
		require.NoError(t, err)
		assert.Equal(t, "shard-0", name)
	}
}

func TestRouterDeterministic(t *testing.T) {
	env := newTestEnv(t, 3)
	other := NewRouter(env.pool, testCapacity)

	seen := map[string]bool{}
	for _, group := range []string{"lobby", "alpha", "beta", "gamma", "delta", "group-1", "group-2"} {
		a, err := env.layer.router.Shard(group)
		require.NoError(t, err)
		b, err := other.Shard(group)
		require.NoError(t, err)
		assert.Equal(t, a, b, group)
		again, err := env.layer.router.Shard(group)
		require.NoError(t, err)
		assert.Equal(t, a, again)
		seen[a] = true
	}
	for name := range seen {
		_, ok := env.pool.Get(name)
		assert.True(t, ok)
	}
	assert.Len(t, env.groupsOnDistinctShards(t), 3)
}

func TestRouterRejectsInvalidGroup(t *testing.T) {
	env := newTestEnv(t, 2)

	_, err := env.layer.router.Shard("bad group")
	assert.ErrorIs(t, err, ErrInvalidGroupName)

	lease, err := env.layer.router.Acquire("")
	assert.ErrorIs(t, err, ErrInvalidGroupName)
	assert.Nil(t, lease)
}

func TestLeaseRelease(t *testing.T) {
	env := newTestEnv(t, 1)

	lease, err := env.layer.router.Acquire("lobby")
	require.NoError(t, err)
	assert.Equal(t, "shard-0", lease.Shard)
	lease.Release()
	// a released lease may be released again
	lease.Release()

	var nilLease *Lease
	nilLease.Release()
}
