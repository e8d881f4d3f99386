// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"context"
	"errors"
	"sync"
)

// DefaultPoolMaxIdle is the per-endpoint idle limit used by [NewPool] when
// maxIdle is not positive.
const DefaultPoolMaxIdle = 4

// Pool keeps ready clients around for reuse across commands.
//
// The server usually closes the connection after each reply, so most idle
// clients fail the liveness check on checkout and are replaced by a fresh
// connection. A pool is only worthwhile against servers that keep the
// connection open. Without a pool, [*Service] uses one connection per command.
//
// Pool is safe for concurrent use. A checked out client is owned by the
// caller until it is returned with [*Pool.Checkin].
type Pool struct {
	maxIdle int

	mu     sync.Mutex
	idle   map[string][]*Client
	closed bool
}

// NewPool creates a new [*Pool] keeping at most maxIdle clients per endpoint.
func NewPool(maxIdle int) *Pool {
	if maxIdle <= 0 {
		maxIdle = DefaultPoolMaxIdle
	}
	return &Pool{maxIdle: maxIdle, idle: make(map[string][]*Client)}
}

// ErrPoolClosed is returned by [*Pool.Checkout] after [*Pool.Close].
var ErrPoolClosed = errors.New("pool closed")

// Checkout returns a ready client for config.
//
// Idle clients are validated before reuse; dead ones are closed. When no idle
// client is usable, a new one is created with opts and connected.
func (p *Pool) Checkout(ctx context.Context, config *Config, opts ...Option) (*Client, error) {
	key := config.Key()
	for {
		client, err := p.pop(key)
		if err != nil {
			return nil, err
		}
		if client == nil {
			break
		}
		if client.isAlive() {
			return client, nil
		}
		client.Close()
	}
	client := NewClient(config, opts...)
	if err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (p *Pool) pop(key string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, newError(KindTransport, ErrPoolClosed)
	}
	clients := p.idle[key]
	if len(clients) < 1 {
		return nil, nil
	}
	client := clients[len(clients)-1]
	p.idle[key] = clients[:len(clients)-1]
	return client, nil
}

// Checkin returns client to the pool.
//
// Unhealthy clients, clients that are not ready, and clients exceeding the
// idle limit are closed instead.
func (p *Pool) Checkin(client *Client, healthy bool) {
	if !healthy || client.State() != StateReady {
		client.Close()
		return
	}
	key := client.config.Key()
	p.mu.Lock()
	if p.closed || len(p.idle[key]) >= p.maxIdle {
		p.mu.Unlock()
		client.Close()
		return
	}
	p.idle[key] = append(p.idle[key], client)
	p.mu.Unlock()
}

// Idle returns the number of idle clients for config.
func (p *Pool) Idle(config *Config) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[config.Key()])
}

// Close closes all idle clients. Later checkouts fail with [ErrPoolClosed],
// which a [*Service] reports as a failed [Result] with [KindTransport].
func (p *Pool) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = make(map[string][]*Client)
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for _, clients := range idle {
		for _, client := range clients {
			if err := client.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
