package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterKeys(entries []RosterEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.User.Key())
	}
	return out
}

func TestNewSessionValidation(t *testing.T) {
	env := newTestEnv(t, 1)

	_, err := NewSession(env.layer, nil, []string{"lobby"})
	assert.ErrorIs(t, err, ErrAnonymousUser)
	_, err = NewSession(env.layer, &Identity{Key: "  "}, []string{"lobby"})
	assert.ErrorIs(t, err, ErrAnonymousUser)

	user := &Identity{Key: "u1"}
	_, err = NewSession(env.layer, user, nil)
	assert.ErrorIs(t, err, ErrInvalidGroups)
	_, err = NewSession(env.layer, user, []string{"lobby", "bad group"})
	assert.ErrorIs(t, err, ErrInvalidGroups)
	assert.ErrorIs(t, err, ErrInvalidGroupName)

	s, err := NewSession(env.layer, user, []string{"lobby", "lobby", "hall"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lobby", "hall"}, s.Groups())
	assert.Empty(t, s.Rooms())
	assert.Equal(t, user, s.User())
}

func TestSessionLobbyScenario(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	u1, err := NewSession(env.layer, &Identity{Key: "u1"}, []string{"lobby"})
	require.NoError(t, err)
	u2, err := NewSession(env.layer, &Identity{Key: "u2"}, []string{"lobby"})
	require.NoError(t, err)

	env.clock.Set(1000)
	require.NoError(t, u1.Join(ctx))
	env.clock.Set(1010)
	require.NoError(t, u2.Join(ctx, "r1"))

	all, err := u1.GetUsers(ctx, "lobby", "", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, rosterKeys(all))
	for _, e := range all {
		assert.True(t, e.IsActive, e.User.Key())
	}

	room, err := u1.GetUsers(ctx, "lobby", "r1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, rosterKeys(room))
	assert.Equal(t, time.Unix(1010, 0), room[0].PresentAt)

	env.clock.Set(1020)
	require.NoError(t, u2.Leave(ctx))

	room, err = u1.GetUsers(ctx, "lobby", "r1", false)
	require.NoError(t, err)
	require.Len(t, room, 1)
	assert.False(t, room[0].IsActive)
	assert.Equal(t, int64(-1020), room[0].Score)

	active, err := u1.GetUsers(ctx, "lobby", "", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, rosterKeys(active))
}

func TestSessionStaleness(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	s, err := NewSession(env.layer, &Identity{Key: "u1"}, []string{"lobby"})
	require.NoError(t, err)

	env.clock.Set(100)
	require.NoError(t, s.Join(ctx))

	env.clock.Set(400)
	active, err := s.GetUsers(ctx, "lobby", "", true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.GetUsers(ctx, "lobby", "", false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)

	require.NoError(t, s.Refresh(ctx))
	active, err = s.GetUsers(ctx, "lobby", "", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, rosterKeys(active))
}

func TestSessionRemembersRooms(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	srv := env.shards[0]

	s, err := NewSession(env.layer, &Identity{Key: "u1"}, []string{"lobby"})
	require.NoError(t, err)

	env.clock.Set(1000)
	require.NoError(t, s.Join(ctx, "r1"))
	env.clock.Set(1005)
	require.NoError(t, s.Join(ctx, "r2", "r1", ""))
	assert.Equal(t, []string{"r1", "r2"}, s.Rooms())

	assert.Equal(t, float64(1005), zscore(t, srv, "asgi:group:lobby:presence", "u1"))
	assert.Equal(t, float64(1005), zscore(t, srv, "asgi:group:lobby:r1:presence", "u1"))
	assert.Equal(t, float64(1005), zscore(t, srv, "asgi:group:lobby:r2:presence", "u1"))

	env.clock.Set(1100)
	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, float64(1100), zscore(t, srv, "asgi:group:lobby:r1:presence", "u1"))

	// leave marks every remembered room and keeps remembering them
	env.clock.Set(1200)
	require.NoError(t, s.Leave(ctx, "r3"))
	assert.Equal(t, []string{"r1", "r2", "r3"}, s.Rooms())
	for _, key := range []string{
		"asgi:group:lobby:presence",
		"asgi:group:lobby:r1:presence",
		"asgi:group:lobby:r2:presence",
		"asgi:group:lobby:r3:presence",
	} {
		assert.Equal(t, float64(-1200), zscore(t, srv, key, "u1"), key)
	}
}

func TestSessionRoomIndependence(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	a, err := NewSession(env.layer, &Identity{Key: "a"}, []string{"lobby"})
	require.NoError(t, err)
	b, err := NewSession(env.layer, &Identity{Key: "b"}, []string{"lobby"})
	require.NoError(t, err)

	require.NoError(t, a.Join(ctx, "r1"))
	require.NoError(t, b.Join(ctx, "r2"))

	r1, err := a.GetUsers(ctx, "lobby", "r1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, rosterKeys(r1))
	r2, err := a.GetUsers(ctx, "lobby", "r2", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, rosterKeys(r2))
	r3, err := a.GetUsers(ctx, "lobby", "r3", false)
	require.NoError(t, err)
	assert.Empty(t, r3)
}

func TestSessionNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	env := newTestEnv(t, 1, WithNotifier(notifier))
	ctx := context.Background()

	s, err := NewSession(env.layer, &Identity{Key: "u1"}, []string{"lobby", "hall"})
	require.NoError(t, err)

	require.NoError(t, s.Join(ctx, "r1"))
	require.NoError(t, s.Leave(ctx))

	events := notifier.Events()
	require.Len(t, events, 4)
	assert.Equal(t, "lobby", events[0].group)
	assert.Equal(t, "hall", events[1].group)
	assert.Equal(t, Event{Type: EventJoinUser, UserKey: "u1", Groups: []string{"lobby", "hall"}, Rooms: []string{"r1"}}, events[0].event)
	assert.Equal(t, Event{Type: EventLeaveUser, UserKey: "u1", Groups: []string{"lobby", "hall"}, Rooms: []string{"r1"}}, events[2].event)
	assert.Equal(t, "hall", events[3].group)
}

func TestSessionNotifierError(t *testing.T) {
	boom := errors.New("send failed")
	notifier := &recordingNotifier{err: boom}
	env := newTestEnv(t, 1, WithNotifier(notifier))

	s, err := NewSession(env.layer, &Identity{Key: "u1"}, []string{"lobby"})
	require.NoError(t, err)

	err = s.Join(context.Background())
	assert.ErrorIs(t, err, boom)
	// the write already landed
	assert.Equal(t, float64(1000), zscore(t, env.shards[0], "asgi:group:lobby:presence", "u1"))
}

func TestSessionWritesEachGroupToItsShard(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	groups := env.groupsOnDistinctShards(t)

	s, err := NewSession(env.layer, &Identity{Key: "u1"}, groups)
	require.NoError(t, err)
	require.NoError(t, s.Join(ctx, "r1"))

	for _, group := range groups {
		srv := env.server(t, group)
		key, err := env.layer.codec.Key(group)
		require.NoError(t, err)
		roomKey, err := env.layer.codec.RoomKey(group, "r1")
		require.NoError(t, err)
		assert.Equal(t, float64(1000), zscore(t, srv, key, "u1"))
		assert.Equal(t, float64(1000), zscore(t, srv, roomKey, "u1"))

		users, err := s.GetUsers(ctx, group, "r1", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, rosterKeys(users))
	}
}

func TestSessionPartialWrite(t *testing.T) {
	notifier := &recordingNotifier{}
	env := newTestEnv(t, 2, WithNotifier(notifier))
	groups := env.groupsOnDistinctShards(t)

	s, err := NewSession(env.layer, &Identity{Key: "u1"}, groups)
	require.NoError(t, err)

	env.server(t, groups[1]).Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = s.Join(ctx, "r1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)

	var pw *PartialWriteError
	require.ErrorAs(t, err, &pw)

	firstKey, _ := env.layer.codec.Key(groups[0])
	firstRoom, _ := env.layer.codec.RoomKey(groups[0], "r1")
	secondKey, _ := env.layer.codec.Key(groups[1])
	secondRoom, _ := env.layer.codec.RoomKey(groups[1], "r1")
	assert.Equal(t, []string{firstKey, firstRoom}, pw.Written)
	assert.Equal(t, []string{secondKey, secondRoom}, pw.Pending)

	assert.Equal(t, float64(1000), zscore(t, env.server(t, groups[0]), firstKey, "u1"))
	assert.Empty(t, s.Rooms())
	assert.Empty(t, notifier.Events())
}

func TestSessionHonorsCanceledContext(t *testing.T) {
	env := newTestEnv(t, 1)
	s, err := NewSession(env.layer, &Identity{Key: "u1"}, []string{"lobby"})
	require.NoError(t, err)

	require.NoError(t, s.lock(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Join(ctx), context.Canceled)
	s.unlock()
}

func TestRosterResolvesIdentityLazily(t *testing.T) {
	calls := 0
	resolver := ResolverFunc(func(_ context.Context, key string) (*Identity, error) {
		calls++
		return &Identity{Key: key, Name: "User " + key}, nil
	})
	env := newTestEnv(t, 1, WithResolver(resolver))
	ctx := context.Background()

	s, err := NewSession(env.layer, &Identity{Key: "u1"}, []string{"lobby"})
	require.NoError(t, err)
	require.NoError(t, s.Join(ctx))

	users, err := s.GetUsers(ctx, "lobby", "", false)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, 0, calls)
	assert.False(t, users[0].User.Resolved())

	id, err := users[0].User.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "User u1", id.Name)
	_, err = users[0].User.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, users[0].User.Resolved())
}
