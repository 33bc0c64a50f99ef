// Package transport provides the duplex message links between a caller and a
// worker, plus the spawners that create workers on demand.
//
// Two implementations exist: an in-process pair backed by goroutines and
// channels (the common case — workers hosted in the same process), and a
// framed stream transport over any io.ReadWriteCloser (subprocess pipes, TCP
// connections to remote worker hosts).
package transport

import (
	"context"
	"errors"

	"worker-rpc/message"
)

// ErrTerminated is returned by Send after the endpoint has been torn down.
var ErrTerminated = errors.New("transport: endpoint terminated")

// Handler consumes inbound messages. It is invoked from the endpoint's single
// receive goroutine and must not block for long.
type Handler func(*message.Message)

// Transport is one end of an ordered, lossless, duplex message link.
type Transport interface {
	// Send delivers one message to the peer, preserving send order.
	Send(msg *message.Message) error

	// OnMessage installs the inbound handler. Install it before the peer can
	// produce traffic; the endpoint holds inbound delivery until then.
	// At most one handler is supported.
	OnMessage(h Handler)

	// OnFailure installs a callback fired at most once when the link dies for
	// any reason other than a local Terminate.
	OnFailure(fn func(error))

	// Terminate tears the link down. Idempotent.
	Terminate() error
}

// Spawner creates the remote unit and returns the local endpoint of its link.
// Implementations are expected to honor ctx: a cancelled spawn must not leak
// a running worker.
type Spawner interface {
	Spawn(ctx context.Context) (Transport, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(ctx context.Context) (Transport, error)

func (f SpawnerFunc) Spawn(ctx context.Context) (Transport, error) { return f(ctx) }
