package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pkgredis "github.com/mx-space/presence/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testCapacity = 100

type testClock struct {
	mu  sync.Mutex
	now int64
}

func (c *testClock) Set(sec int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = sec
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

type testEnv struct {
	layer  *Layer
	shards []*miniredis.Miniredis
	pool   *pkgredis.Pool
	clock  *testClock
}

func newTestEnv(t *testing.T, shards int, opts ...LayerOption) *testEnv {
	t.Helper()
	servers := make([]*miniredis.Miniredis, 0, shards)
	specs := make([]pkgredis.Shard, 0, shards)
	for i := 0; i < shards; i++ {
		s := miniredis.RunT(t)
		servers = append(servers, s)
		specs = append(specs, pkgredis.Shard{Name: fmt.Sprintf("shard-%d", i), URL: "redis://" + s.Addr()})
	}
	pool, err := pkgredis.Open(specs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	clock := &testClock{now: 1000}
	router := NewRouter(pool, testCapacity)
	ledger := NewLedger(300*time.Second, WithClock(clock.Now))
	layer := NewLayer(router, NewCodec("asgi", testCapacity), ledger, opts...)
	return &testEnv{layer: layer, shards: servers, pool: pool, clock: clock}
}

// server returns the miniredis instance that owns group.
func (e *testEnv) server(t *testing.T, group string) *miniredis.Miniredis {
	t.Helper()
	name, err := e.layer.router.Shard(group)
	require.NoError(t, err)
	for i, c := range e.pool.Clients() {
		if c.Name() == name {
			return e.shards[i]
		}
	}
	t.Fatalf("no server for shard %s", name)
	return nil
}

// groupsOnDistinctShards finds one group name per shard, in shard order.
func (e *testEnv) groupsOnDistinctShards(t *testing.T) []string {
	t.Helper()
	byShard := map[string]string{}
	for i := 0; i < 1000 && len(byShard) < len(e.shards); i++ {
		group := fmt.Sprintf("group-%d", i)
		name, err := e.layer.router.Shard(group)
		require.NoError(t, err)
		if _, ok := byShard[name]; !ok {
			byShard[name] = group
		}
	}
	out := make([]string, 0, len(e.shards))
	for _, c := range e.pool.Clients() {
		group, ok := byShard[c.Name()]
		require.True(t, ok, "no group hashed onto %s", c.Name())
		out = append(out, group)
	}
	return out
}

type recordedEvent struct {
	group string
	event Event
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (n *recordingNotifier) GroupSend(_ context.Context, group string, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, recordedEvent{group: group, event: event})
	return nil
}

func (n *recordingNotifier) Events() []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]recordedEvent(nil), n.events...)
}

// flakyStore fails every ZAdd after the first `okWrites` calls.
type flakyStore struct {
	Store
	okWrites int
	calls    int
}

var errStoreDown = errors.New("connection refused")

func (s *flakyStore) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	s.calls++
	if s.calls > s.okWrites {
		cmd := redis.NewIntCmd(ctx, "zadd", key)
		cmd.SetErr(errStoreDown)
		return cmd
	}
	return s.Store.ZAdd(ctx, key, members...)
}

func zscore(t *testing.T, s *miniredis.Miniredis, key, member string) float64 {
	t.Helper()
	v, err := s.ZScore(key, member)
	require.NoError(t, err)
	return v
}
