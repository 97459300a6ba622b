package redis

import (
	"context"
	"errors"
	"fmt"
)

// Pool is the ordered set of shard clients shared by every session.
type Pool struct {
	clients []*Client
	byName  map[string]*Client
}

// Shard is the name/url pair of one backing store.
type Shard struct {
	Name string
	URL  string
}

// Open connects to every shard. Already opened clients are closed on failure.
func Open(shards []Shard) (*Pool, error) {
	if len(shards) == 0 {
		return nil, errors.New("no redis shards configured")
	}
	clients := make([]*Client, 0, len(shards))
	for _, shard := range shards {
		c, err := Connect(shard.Name, shard.URL)
		if err != nil {
			for _, opened := range clients {
				_ = opened.Close()
			}
			return nil, err
		}
		clients = append(clients, c)
	}
	return NewPool(clients...)
}

// NewPool builds a pool from already connected clients.
func NewPool(clients ...*Client) (*Pool, error) {
	if len(clients) == 0 {
		return nil, errors.New("no redis shards configured")
	}
	p := &Pool{
		clients: clients,
		byName:  make(map[string]*Client, len(clients)),
	}
	for _, c := range clients {
		if _, dup := p.byName[c.Name()]; dup {
			return nil, fmt.Errorf("duplicate redis shard %q", c.Name())
		}
		p.byName[c.Name()] = c
	}
	return p, nil
}

// Clients returns the shard clients in configuration order.
func (p *Pool) Clients() []*Client { return p.clients }

// Primary returns the first configured shard.
func (p *Pool) Primary() *Client { return p.clients[0] }

// Get returns the client registered under name.
func (p *Pool) Get(name string) (*Client, bool) {
	c, ok := p.byName[name]
	return c, ok
}

// Ping checks every shard and returns the failures keyed by shard name.
func (p *Pool) Ping(ctx context.Context) map[string]error {
	failures := map[string]error{}
	for _, c := range p.clients {
		if err := c.Ping(ctx); err != nil {
			failures[c.Name()] = err
		}
	}
	return failures
}

// Close closes every shard client.
func (p *Pool) Close() error {
	var errs []error
	for _, c := range p.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close shard %q: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
