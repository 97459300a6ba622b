package presence

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// Session is one connection's presence in a fixed set of groups. It remembers every room it
// has joined or left so later writes keep those rooms fresh.
type Session struct {
	layer  *Layer
	user   *Identity
	groups []string

	mu      chan struct{}
	rooms   []string
	roomSet map[string]struct{}
}

// NewSession validates user and groups before any I/O.
func NewSession(layer *Layer, user *Identity, groups []string) (*Session, error) {
	if user.IsAnonymous() {
		return nil, ErrAnonymousUser
	}
	if len(groups) == 0 {
		return nil, ErrInvalidGroups
	}
	seen := make(map[string]struct{}, len(groups))
	unique := make([]string, 0, len(groups))
	for _, group := range groups {
		if !layer.router.ValidGroupName(group) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGroups, invalidGroup(group))
		}
		if _, ok := seen[group]; ok {
			continue
		}
		seen[group] = struct{}{}
		unique = append(unique, group)
	}
	return &Session{
		layer:   layer,
		user:    user,
		groups:  unique,
		mu:      make(chan struct{}, 1),
		roomSet: make(map[string]struct{}),
	}, nil
}

func (s *Session) User() *Identity { return s.user }

func (s *Session) Groups() []string { return slices.Clone(s.groups) }

// Rooms returns the remembered rooms in the order they were first seen.
func (s *Session) Rooms() []string {
	if err := s.lock(context.Background()); err != nil {
		return nil
	}
	defer s.unlock()
	return slices.Clone(s.rooms)
}

// Join marks the user present in every group, every remembered room and rooms.
func (s *Session) Join(ctx context.Context, rooms ...string) error {
	return s.update(ctx, EventJoinUser, rooms)
}

// Leave marks the user gone from every group, every remembered room and rooms.
func (s *Session) Leave(ctx context.Context, rooms ...string) error {
	return s.update(ctx, EventLeaveUser, rooms)
}

// Refresh rejoins the remembered rooms, pushing the user's activity window forward.
func (s *Session) Refresh(ctx context.Context) error {
	return s.update(ctx, EventJoinUser, nil)
}

// GetUsers reads the users recorded for group, or for room within group when room is set.
func (s *Session) GetUsers(ctx context.Context, group, room string, onlyActive bool) ([]RosterEntry, error) {
	return s.layer.Roster(ctx, group, room, onlyActive)
}

func (s *Session) update(ctx context.Context, kind EventType, rooms []string) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	effective := s.merge(rooms)
	writes, err := s.layer.plan(s.groups, effective)
	if err != nil {
		return err
	}
	at := s.layer.ledger.Now()
	if err := s.layer.record(ctx, writes, s.user.Key, at, kind == EventLeaveUser); err != nil {
		s.layer.logger.Warn("presence write failed",
			zap.String("user", s.user.Key),
			zap.String("type", string(kind)),
			zap.Error(err))
		return err
	}
	s.remember(rooms)

	s.layer.logger.Debug("presence recorded",
		zap.String("user", s.user.Key),
		zap.String("type", string(kind)),
		zap.Strings("groups", s.groups),
		zap.Strings("rooms", effective))

	return s.layer.notify(ctx, s.groups, Event{
		Type:    kind,
		UserKey: s.user.Key,
		Groups:  slices.Clone(s.groups),
		Rooms:   effective,
	})
}

// merge returns the remembered rooms followed by any new non-empty rooms.
func (s *Session) merge(rooms []string) []string {
	out := slices.Clone(s.rooms)
	seen := make(map[string]struct{}, len(s.rooms)+len(rooms))
	for _, r := range s.rooms {
		seen[r] = struct{}{}
	}
	for _, r := range rooms {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func (s *Session) remember(rooms []string) {
	for _, r := range rooms {
		if r == "" {
			continue
		}
		if _, ok := s.roomSet[r]; ok {
			continue
		}
		s.roomSet[r] = struct{}{}
		s.rooms = append(s.rooms, r)
	}
}

func (s *Session) lock(ctx context.Context) error {
	select {
	case s.mu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) unlock() { <-s.mu }
