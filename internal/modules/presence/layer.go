package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	EventJoinUser  EventType = "JOIN_USER"
	EventLeaveUser EventType = "LEAVE_USER"
)

// Event is broadcast to a group after a join or leave has been recorded.
type Event struct {
	Type    EventType `json:"type"`
	UserKey string    `json:"user_key"`
	Groups  []string  `json:"groups"`
	Rooms   []string  `json:"rooms"`
}

// Notifier fans events out to the members of a group.
type Notifier interface {
	GroupSend(ctx context.Context, group string, event Event) error
}

// Layer bundles everything a session needs to talk to the ledger.
type Layer struct {
	router   *Router
	codec    Codec
	ledger   *Ledger
	notifier Notifier
	resolver Resolver
	logger   *zap.Logger
}

type LayerOption func(*Layer)

func WithNotifier(n Notifier) LayerOption {
	return func(l *Layer) { l.notifier = n }
}

func WithResolver(r Resolver) LayerOption {
	return func(l *Layer) { l.resolver = r }
}

func WithLogger(logger *zap.Logger) LayerOption {
	return func(l *Layer) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewLayer(router *Router, codec Codec, ledger *Ledger, opts ...LayerOption) *Layer {
	l := &Layer{
		router: router,
		codec:  codec,
		ledger: ledger,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Layer) Router() *Router { return l.router }
func (l *Layer) Codec() Codec    { return l.codec }
func (l *Layer) Ledger() *Ledger { return l.ledger }

// SetNotifier attaches a notifier after construction, for transports built on top of the layer.
func (l *Layer) SetNotifier(n Notifier) { l.notifier = n }

// RosterEntry is one user found at a location.
type RosterEntry struct {
	User      *LazyIdentity
	Score     int64
	PresentAt time.Time
	IsActive  bool
}

// Roster reads the users recorded for group, or for room within group when room is set.
func (l *Layer) Roster(ctx context.Context, group, room string, onlyActive bool) ([]RosterEntry, error) {
	location, err := l.codec.RoomKey(group, room)
	if err != nil {
		return nil, err
	}
	lease, err := l.router.Acquire(group)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	entries, err := l.ledger.Snapshot(ctx, lease.Conn, location)
	if err != nil {
		return nil, err
	}
	if onlyActive {
		entries = Active(entries)
	}
	out := make([]RosterEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, RosterEntry{
			User:      NewLazyIdentity(e.Member, l.resolver),
			Score:     e.Score,
			PresentAt: e.PresentAt,
			IsActive:  e.IsActive,
		})
	}
	return out, nil
}

type shardWrite struct {
	shard     string
	locations []string
}

// plan lays out every location touched by a write, bucketed by owning shard. Group-level
// locations come before room locations and shards keep the order of their first group.
func (l *Layer) plan(groups, rooms []string) ([]shardWrite, error) {
	var writes []shardWrite
	index := make(map[string]int)
	bucket := func(group string) (*shardWrite, error) {
		shard, err := l.router.Shard(group)
		if err != nil {
			return nil, err
		}
		i, ok := index[shard]
		if !ok {
			i = len(writes)
			index[shard] = i
			writes = append(writes, shardWrite{shard: shard})
		}
		return &writes[i], nil
	}
	for _, group := range groups {
		key, err := l.codec.Key(group)
		if err != nil {
			return nil, err
		}
		w, err := bucket(group)
		if err != nil {
			return nil, err
		}
		w.locations = append(w.locations, key)
	}
	for _, group := range groups {
		for _, room := range rooms {
			key, err := l.codec.RoomKey(group, room)
			if err != nil {
				return nil, err
			}
			w, err := bucket(group)
			if err != nil {
				return nil, err
			}
			w.locations = append(w.locations, key)
		}
	}
	return writes, nil
}

// record writes member's mark to every planned location, one lease per shard.
func (l *Layer) record(ctx context.Context, writes []shardWrite, member string, at time.Time, leaving bool) error {
	var written []string
	for i, w := range writes {
		err := l.recordShard(ctx, w, member, at, leaving)
		if err == nil {
			written = append(written, w.locations...)
			continue
		}
		pending := l.pendingAfter(writes[i+1:])
		var pw *PartialWriteError
		if errors.As(err, &pw) {
			return &PartialWriteError{
				Written: append(written, pw.Written...),
				Pending: append(pw.Pending, pending...),
				Err:     pw.Err,
			}
		}
		return &PartialWriteError{
			Written: written,
			Pending: append(append([]string(nil), w.locations...), pending...),
			Err:     err,
		}
	}
	return nil
}

func (l *Layer) recordShard(ctx context.Context, w shardWrite, member string, at time.Time, leaving bool) error {
	lease, err := l.router.acquireShard(w.shard)
	if err != nil {
		return err
	}
	defer lease.Release()
	return l.ledger.RecordAll(ctx, lease.Conn, w.locations, member, at, leaving)
}

func (l *Layer) pendingAfter(writes []shardWrite) []string {
	var out []string
	for _, w := range writes {
		out = append(out, w.locations...)
	}
	return out
}

func (l *Layer) notify(ctx context.Context, groups []string, event Event) error {
	if l.notifier == nil {
		return nil
	}
	for _, group := range groups {
		if err := l.notifier.GroupSend(ctx, group, event); err != nil {
			return fmt.Errorf("notify group %s: %w", group, err)
		}
	}
	return nil
}
