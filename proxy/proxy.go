// Package proxy implements the lazy connection proxy: a "call any method by
// name" surface that defers all connection cost to the first call and
// guarantees at most one connection attempt is ever started.
//
// Workers are expensive to spawn (an execution unit plus a remote
// constructor), so the proxy must never spawn more than one per instance, and
// must never leak a spawned worker when the consumer loses interest before
// the spawn finishes.
//
// State machine:
//
//	uninitialized ──first call──→ connecting ──ok──→ connected
//	                                  │                  │
//	                               Dispose            Dispose
//	                                  ↓                  ↓
//	                               disposed ←──────── disposed   (terminal)
//
// A connect attempt that completes after Dispose is itself disposed, never
// adopted.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-metrics"

	"worker-rpc/channel"
	"worker-rpc/message"
	"worker-rpc/transport"
)

var (
	// ErrProxyDisposed is returned for any call attempted (or still waiting)
	// after Dispose. Never silently swallowed.
	ErrProxyDisposed = errors.New("proxy: disposed")

	// ErrReservedMethod is returned when a caller tries to invoke the
	// constructor directly; only the proxy itself may send it.
	ErrReservedMethod = errors.New(`proxy: "constructor" is reserved`)
)

type connState int

const (
	stateUninitialized connState = iota
	stateConnecting
	stateConnected
	stateDisposed
)

func (s connState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateDisposed:
		return "disposed"
	}
	return "unknown"
}

// Proxy lazily owns at most one RPC channel (or one in-progress connection
// attempt) to a worker spawned from its spawner.
type Proxy struct {
	spawner  transport.Spawner
	ctorArgs []any
	logger   *slog.Logger
	labels   []metrics.Label
	chanOpts []channel.Option

	mu          sync.Mutex
	state       connState
	ch          *channel.Channel
	connectDone chan struct{} // closed when the single connect attempt settles
	connectErr  error
	connCtx     context.Context // connection-scoped; cancelled on Dispose
	connCancel  context.CancelFunc
}

// Option configures a Proxy.
type Option func(*Proxy)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetricLabels adds static labels to all counters this proxy emits.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(p *Proxy) {
		p.labels = labels
	}
}

// WithChannelOptions forwards options to the channel built on connect.
func WithChannelOptions(opts ...channel.Option) Option {
	return func(p *Proxy) {
		p.chanOpts = opts
	}
}

// New builds a proxy that will spawn a worker via spawner on first call and
// initialize it with ctorArgs. Nothing is spawned here.
func New(spawner transport.Spawner, ctorArgs []any, opts ...Option) *Proxy {
	p := &Proxy{
		spawner:  spawner,
		ctorArgs: ctorArgs,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Call invokes a method on the worker, connecting first if needed. Concurrent
// first callers share one connection attempt; callers that arrive while
// connecting simply wait on it, they never trigger a second one.
//
// Cancellation is two-level: ctx cancels this call only, while disposing the
// proxy cancels the connection scope and with it every waiting call.
func (p *Proxy) Call(ctx context.Context, method string, args []any) (json.RawMessage, error) {
	if method == message.MethodConstructor {
		return nil, ErrReservedMethod
	}

	ch, connCtx, err := p.connection(ctx)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(connCtx, cancel)
	defer stop()

	result, err := ch.Call(callCtx, method, args)
	if err != nil && connCtx.Err() != nil {
		// The connection scope died while we were waiting; report disposal,
		// keeping the underlying error inspectable.
		return nil, fmt.Errorf("%w: %w", ErrProxyDisposed, err)
	}
	return result, err
}

// connection returns the live channel, starting the single connect attempt
// if this is the first call ever.
func (p *Proxy) connection(ctx context.Context) (*channel.Channel, context.Context, error) {
	p.mu.Lock()
	switch p.state {
	case stateDisposed:
		err := p.disposedErrLocked()
		p.mu.Unlock()
		return nil, nil, err
	case stateConnected:
		ch, connCtx := p.ch, p.connCtx
		p.mu.Unlock()
		return ch, connCtx, nil
	case stateUninitialized:
		p.state = stateConnecting
		p.connectDone = make(chan struct{})
		p.connCtx, p.connCancel = context.WithCancel(context.Background())
		p.logger.Debug("proxy: connecting")
		metrics.IncrCounterWithLabels(MetricConnectCount, 1, p.labels)
		go p.connect(p.connCtx)
	}
	done := p.connectDone
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateConnected:
		return p.ch, p.connCtx, nil
	case stateDisposed:
		return nil, nil, p.disposedErrLocked()
	default:
		// Unreachable: connect settles into connected or disposed.
		return nil, nil, p.connectErr
	}
}

// connect runs the one-and-only connection attempt: spawn the worker, open a
// channel over its transport, and send the reserved constructor call before
// anything else may use the channel.
func (p *Proxy) connect(ctx context.Context) {
	tr, err := p.spawner.Spawn(ctx)
	var ch *channel.Channel
	if err != nil {
		err = fmt.Errorf("proxy: spawn: %w", err)
	} else {
		ch = channel.New(tr, p.chanOpts...)
		if _, cerr := ch.Call(ctx, message.MethodConstructor, p.ctorArgs); cerr != nil {
			ch.Dispose()
			ch, err = nil, fmt.Errorf("proxy: constructor: %w", cerr)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateDisposed {
		// Lost the race against Dispose. A channel that finished connecting
		// anyway is torn down here, never adopted as live.
		if ch != nil {
			ch.Dispose()
		}
		p.connectErr = ErrProxyDisposed
		close(p.connectDone)
		return
	}

	if err != nil {
		// A failed connect is terminal; recovery is dispose-and-reconstruct,
		// which the lease manager does by building a fresh proxy.
		p.state = stateDisposed
		p.connectErr = err
		p.connCancel()
		p.logger.Warn("proxy: connect failed", "err", err)
		metrics.IncrCounterWithLabels(MetricConnectErrorCount, 1, p.labels)
	} else {
		p.state = stateConnected
		p.ch = ch
		p.logger.Debug("proxy: connected")
	}
	close(p.connectDone)
}

// Dispose moves the proxy to its terminal state, cancels the connection scope
// (waking every call still waiting on it), and tears down the channel if one
// was adopted. Safe to call more than once.
func (p *Proxy) Dispose() error {
	p.mu.Lock()
	if p.state == stateDisposed {
		p.mu.Unlock()
		return nil
	}
	prev := p.state
	p.state = stateDisposed
	ch := p.ch
	p.ch = nil
	cancel := p.connCancel
	p.mu.Unlock()

	p.logger.Debug("proxy: disposing", "from", prev.String())
	metrics.IncrCounterWithLabels(MetricDisposeCount, 1, p.labels)

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		return ch.Dispose()
	}
	return nil
}

func (p *Proxy) disposedErrLocked() error {
	if p.connectErr != nil && !errors.Is(p.connectErr, ErrProxyDisposed) {
		return fmt.Errorf("%w: %w", ErrProxyDisposed, p.connectErr)
	}
	return ErrProxyDisposed
}
