package presence

import (
	"fmt"

	"github.com/buraksezer/consistent"
	"github.com/cespare/xxhash/v2"
	pkgredis "github.com/mx-space/presence/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
)

const (
	ringPartitions  = 271
	ringReplication = 20
	ringLoad        = 1.25
)

type shardMember string

func (m shardMember) String() string { return string(m) }

type xxhasher struct{}

func (xxhasher) Sum64(data []byte) uint64 { return xxhash.Sum64(data) }

// Router maps a group onto one shard of the pool. Every location of a group (the group key
// and all of its room keys) lives on the same shard.
type Router struct {
	pool     *pkgredis.Pool
	ring     *consistent.Consistent
	capacity int
}

// NewRouter builds the hash ring over the pool's shards. capacity bounds group name length.
func NewRouter(pool *pkgredis.Pool, capacity int) *Router {
	members := make([]consistent.Member, 0, len(pool.Clients()))
	for _, c := range pool.Clients() {
		members = append(members, shardMember(c.Name()))
	}
	ring := consistent.New(members, consistent.Config{
		PartitionCount:    ringPartitions,
		ReplicationFactor: ringReplication,
		Load:              ringLoad,
		Hasher:            xxhasher{},
	})
	return &Router{pool: pool, ring: ring, capacity: capacity}
}

// ValidGroupName reports whether group passes the channel layer's naming rule.
func (r *Router) ValidGroupName(group string) bool {
	return ValidGroupName(group, r.capacity)
}

// Shard returns the name of the shard that owns group.
func (r *Router) Shard(group string) (string, error) {
	if !r.ValidGroupName(group) {
		return "", invalidGroup(group)
	}
	return r.ring.LocateKey([]byte(group)).String(), nil
}

func (r *Router) client(name string) (*pkgredis.Client, error) {
	c, ok := r.pool.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown shard %q", ErrLedgerUnavailable, name)
	}
	return c, nil
}

// Acquire leases a connection on the shard that owns group. The caller must Release it.
func (r *Router) Acquire(group string) (*Lease, error) {
	name, err := r.Shard(group)
	if err != nil {
		return nil, err
	}
	return r.acquireShard(name)
}

func (r *Router) acquireShard(name string) (*Lease, error) {
	c, err := r.client(name)
	if err != nil {
		return nil, err
	}
	return &Lease{Shard: name, Conn: c.Lease()}, nil
}

// Lease is a pooled connection held for the duration of one operation.
type Lease struct {
	Shard string
	Conn  *redis.Conn
}

// Release returns the connection to its pool.
func (l *Lease) Release() {
	if l == nil || l.Conn == nil {
		return
	}
	_ = l.Conn.Close()
}

// ValidGroupName accepts ASCII letters, digits, hyphens, underscores and periods, with a
// length shorter than capacity.
func ValidGroupName(group string, capacity int) bool {
	if group == "" || len(group) >= capacity {
		return false
	}
	for i := 0; i < len(group); i++ {
		c := group[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
