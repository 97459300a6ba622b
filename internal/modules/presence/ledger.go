package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the subset of sorted set commands the ledger needs. *redis.Conn, *redis.Client and
// pipelines all satisfy it.
type Store interface {
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd
}

// Entry is one member of a ledger location.
type Entry struct {
	Member    string
	Score     int64
	PresentAt time.Time
	IsActive  bool
}

// Ledger records join and leave marks as signed Unix-second scores. A positive score is the
// time of the last join, a negative score the time of the last leave.
type Ledger struct {
	staleAfter int64
	now        func() time.Time
}

type LedgerOption func(*Ledger)

// WithClock replaces time.Now as the ledger's time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger returns a ledger that treats joins older than staleAfter as inactive.
func NewLedger(staleAfter time.Duration, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		staleAfter: int64(staleAfter / time.Second),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Now() time.Time { return l.now() }

// StaleAfter is the activity window.
func (l *Ledger) StaleAfter() time.Duration { return time.Duration(l.staleAfter) * time.Second }

func score(at time.Time, leaving bool) float64 {
	ts := at.Unix()
	if leaving {
		ts = -ts
	}
	return float64(ts)
}

// Record upserts member at location, replacing any previous mark.
func (l *Ledger) Record(ctx context.Context, store Store, location, member string, at time.Time, leaving bool) error {
	err := store.ZAdd(ctx, location, redis.Z{Score: score(at, leaving), Member: member}).Err()
	if err != nil {
		return unavailable(location, err)
	}
	return nil
}

// RecordAll writes the same mark to every location in order. It stops at the first failure
// and returns a *PartialWriteError naming what was and was not written.
func (l *Ledger) RecordAll(ctx context.Context, store Store, locations []string, member string, at time.Time, leaving bool) error {
	for i, location := range locations {
		if err := l.Record(ctx, store, location, member, at, leaving); err != nil {
			return &PartialWriteError{
				Written: append([]string(nil), locations[:i]...),
				Pending: append([]string(nil), locations[i:]...),
				Err:     err,
			}
		}
	}
	return nil
}

// Snapshot reads every member of location. An absent location yields an empty slice.
func (l *Ledger) Snapshot(ctx context.Context, store Store, location string) ([]Entry, error) {
	zs, err := store.ZRangeWithScores(ctx, location, 0, -1).Result()
	if err != nil {
		return nil, unavailable(location, err)
	}
	now := l.now().Unix()
	entries := make([]Entry, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, l.entry(member, int64(z.Score), now))
	}
	return entries, nil
}

func (l *Ledger) entry(member string, s, now int64) Entry {
	at := s
	if at < 0 {
		at = -at
	}
	return Entry{
		Member:    member,
		Score:     s,
		PresentAt: time.Unix(at, 0),
		IsActive:  s > 0 && now-at < l.staleAfter,
	}
}

// Active keeps only the active entries.
func Active(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out
}
