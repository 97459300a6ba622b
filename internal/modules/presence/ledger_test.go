package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedgerStore(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return s, rdb
}

func TestLedgerRecordScores(t *testing.T) {
	s, rdb := newLedgerStore(t)
	ctx := context.Background()
	l := NewLedger(300 * time.Second)

	require.NoError(t, l.Record(ctx, rdb, "loc", "u1", time.Unix(1000, 0), false))
	assert.Equal(t, float64(1000), zscore(t, s, "loc", "u1"))

	require.NoError(t, l.Record(ctx, rdb, "loc", "u1", time.Unix(1005, 0), true))
	assert.Equal(t, float64(-1005), zscore(t, s, "loc", "u1"))

	// leaving an unseen location still leaves a mark
	require.NoError(t, l.Record(ctx, rdb, "loc", "u2", time.Unix(1006, 0), true))
	assert.Equal(t, float64(-1006), zscore(t, s, "loc", "u2"))
}

func TestLedgerRecordIdempotent(t *testing.T) {
	s, rdb := newLedgerStore(t)
	ctx := context.Background()
	l := NewLedger(300 * time.Second)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Record(ctx, rdb, "loc", "u1", time.Unix(1000, 0), false))
	}
	members, err := s.ZMembers("loc")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, members)
	assert.Equal(t, float64(1000), zscore(t, s, "loc", "u1"))
}

func TestLedgerLastWriteWins(t *testing.T) {
	s, rdb := newLedgerStore(t)
	ctx := context.Background()
	l := NewLedger(300 * time.Second)

	require.NoError(t, l.Record(ctx, rdb, "loc", "u1", time.Unix(1010, 0), false))
	require.NoError(t, l.Record(ctx, rdb, "loc", "u1", time.Unix(1000, 0), true))
	assert.Equal(t, float64(-1000), zscore(t, s, "loc", "u1"))
}

func TestLedgerSnapshot(t *testing.T) {
	_, rdb := newLedgerStore(t)
	ctx := context.Background()
	now := int64(1010)
	l := NewLedger(300*time.Second, WithClock(func() time.Time { return time.Unix(now, 0) }))

	require.NoError(t, l.Record(ctx, rdb, "loc", "u1", time.Unix(1000, 0), false))
	require.NoError(t, l.Record(ctx, rdb, "loc", "u2", time.Unix(1005, 0), true))

	entries, err := l.Snapshot(ctx, rdb, "loc")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byMember := map[string]Entry{}
	for _, e := range entries {
		byMember[e.Member] = e
	}
	assert.Equal(t, Entry{Member: "u1", Score: 1000, PresentAt: time.Unix(1000, 0), IsActive: true}, byMember["u1"])
	assert.Equal(t, Entry{Member: "u2", Score: -1005, PresentAt: time.Unix(1005, 0), IsActive: false}, byMember["u2"])

	active := Active(entries)
	require.Len(t, active, 1)
	assert.Equal(t, "u1", active[0].Member)
}

func TestLedgerSnapshotEmpty(t *testing.T) {
	_, rdb := newLedgerStore(t)
	l := NewLedger(300 * time.Second)

	entries, err := l.Snapshot(context.Background(), rdb, "missing")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, Active(entries))
}

func TestLedgerStaleness(t *testing.T) {
	_, rdb := newLedgerStore(t)
	ctx := context.Background()
	var now int64
	l := NewLedger(300*time.Second, WithClock(func() time.Time { return time.Unix(now, 0) }))

	require.NoError(t, l.Record(ctx, rdb, "loc", "u1", time.Unix(100, 0), false))

	tests := []struct {
		now    int64
		active bool
	}{
		{now: 100, active: true},
		{now: 399, active: true},
		{now: 400, active: false},
		{now: 1000, active: false},
	}
	for _, tt := range tests {
		now = tt.now
		entries, err := l.Snapshot(ctx, rdb, "loc")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, tt.active, entries[0].IsActive, "now=%d", tt.now)
		assert.Equal(t, time.Unix(100, 0), entries[0].PresentAt)
	}
}

func TestLedgerRecordAllPartial(t *testing.T) {
	s, rdb := newLedgerStore(t)
	ctx := context.Background()
	l := NewLedger(300 * time.Second)
	store := &flakyStore{Store: rdb, okWrites: 2}

	locations := []string{"a", "b", "c", "d"}
	err := l.RecordAll(ctx, store, locations, "u1", time.Unix(1000, 0), false)
	require.Error(t, err)

	var pw *PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, []string{"a", "b"}, pw.Written)
	assert.Equal(t, []string{"c", "d"}, pw.Pending)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, 3, store.calls)

	assert.Equal(t, float64(1000), zscore(t, s, "a", "u1"))
	assert.Equal(t, float64(1000), zscore(t, s, "b", "u1"))
	assert.False(t, s.Exists("c"))
}

func TestLedgerUnavailable(t *testing.T) {
	s, rdb := newLedgerStore(t)
	l := NewLedger(300 * time.Second)
	s.Close()

	_, err := l.Snapshot(context.Background(), rdb, "loc")
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}
