package presence

import (
	"context"
	"strings"
	"sync"
)

// Identity is the user a session acts for. Key is what the ledger stores.
type Identity struct {
	Key      string `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

func (i *Identity) IsAnonymous() bool {
	return i == nil || strings.TrimSpace(i.Key) == ""
}

// Resolver turns a stored user key back into an identity.
type Resolver interface {
	ResolveIdentity(ctx context.Context, key string) (*Identity, error)
}

type ResolverFunc func(ctx context.Context, key string) (*Identity, error)

func (f ResolverFunc) ResolveIdentity(ctx context.Context, key string) (*Identity, error) {
	return f(ctx, key)
}

// LazyIdentity defers identity resolution until first access. A successful lookup is cached;
// failures are retried on the next call.
type LazyIdentity struct {
	key      string
	resolver Resolver

	mu    sync.Mutex
	value *Identity
}

func NewLazyIdentity(key string, resolver Resolver) *LazyIdentity {
	return &LazyIdentity{key: key, resolver: resolver}
}

func (l *LazyIdentity) Key() string { return l.key }

// Resolved reports whether Get has already succeeded.
func (l *LazyIdentity) Resolved() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value != nil
}

// Get resolves the identity. Without a resolver it returns an identity carrying only the key.
func (l *LazyIdentity) Get(ctx context.Context) (*Identity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.value != nil {
		return l.value, nil
	}
	if l.resolver == nil {
		l.value = &Identity{Key: l.key}
		return l.value, nil
	}
	v, err := l.resolver.ResolveIdentity(ctx, l.key)
	if err != nil {
		return nil, err
	}
	l.value = v
	return v, nil
}
