// Package client provides the high-level calling surface: a leased worker
// proxy plus JSON decoding of results into caller-supplied values.
//
// Typed clients wrap it with one Go method per remote operation:
//
//	type CalculatorClient struct{ c *client.Client }
//
//	func (cc *CalculatorClient) Add(ctx context.Context, a, b int) (int, error) {
//		var sum int
//		err := cc.c.Call(ctx, "add", []any{a, b}, &sum)
//		return sum, err
//	}
package client

import (
	"context"
	"encoding/json"
	"sync"

	"worker-rpc/channel"
	"worker-rpc/lease"
)

// Client holds one lease on a worker slot for its lifetime.
type Client struct {
	manager *lease.Manager
	slot    string
	call    channel.CallFunc

	mu       sync.Mutex
	released bool
}

// New acquires a lease on the named slot. Interceptors, if any, wrap every
// call made through this client. Close releases the lease.
func New(m *lease.Manager, slot string, interceptors ...channel.Interceptor) (*Client, error) {
	p, err := m.Acquire(slot)
	if err != nil {
		return nil, err
	}
	call := channel.CallFunc(p.Call)
	if len(interceptors) > 0 {
		call = channel.Chain(interceptors...)(call)
	}
	return &Client{manager: m, slot: slot, call: call}, nil
}

// Call invokes method with positional args and decodes the result into
// reply. Pass a nil reply to discard the result.
func (c *Client) Call(ctx context.Context, method string, args []any, reply any) error {
	raw, err := c.call(ctx, method, args)
	if err != nil {
		return err
	}
	if reply == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, reply)
}

// Close releases the lease. Only the first call releases; later calls are
// no-ops, so a deferred Close is always safe.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	c.released = true
	return c.manager.Release(c.slot)
}
