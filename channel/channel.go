// Package channel implements the RPC channel: it turns method calls into
// correlated request messages and routes responses back to the waiting
// caller.
//
// Each call gets the next correlation ID, and the transport's receive path
// routes responses to the right caller via per-call channels — so responses
// may arrive in any order:
//
//	goroutine-1 ──Call(id=1)──┐
//	goroutine-2 ──Call(id=2)──┼──→ transport ──→ worker
//	goroutine-3 ──Call(id=3)──┘
//
//	dispatch: ←── response(id=2) → pending[2] ← response → goroutine-2 wakes up
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-metrics"

	"worker-rpc/message"
	"worker-rpc/transport"
)

// ErrChannelDisposed is returned for calls attempted (or still waiting) after
// the channel has been torn down. When the transport failed, the cause is
// wrapped: errors.Is(err, ErrChannelDisposed) still holds.
var ErrChannelDisposed = errors.New("channel: disposed")

// RemoteError is a failure reported by the worker for one specific call. It
// affects nobody else: the channel and every other pending call stay live.
type RemoteError struct {
	Method string
	Msg    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error in %q: %s", e.Method, e.Msg)
}

// Channel owns one transport endpoint and the pending call table correlating
// requests with responses. It does not know about connection establishment
// or the reserved constructor call; that is the proxy's business.
type Channel struct {
	tr     transport.Transport
	logger *slog.Logger
	labels []metrics.Label

	nextID  atomic.Uint64 // correlation IDs start at 1
	pending sync.Map      // correlation ID → chan *message.Message (buffered, len 1)

	done        chan struct{}
	disposeOnce sync.Once
	disposeErr  error
	failure     atomic.Value // error; set when the transport died under us
}

// Option configures a Channel.
type Option func(*Channel)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetricLabels adds static labels to all counters this channel emits.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *Channel) {
		c.labels = labels
	}
}

// New takes exclusive ownership of tr: it installs the message and failure
// handlers, and Dispose terminates it.
func New(tr transport.Transport, opts ...Option) *Channel {
	c := &Channel{
		tr:     tr,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	tr.OnFailure(c.fail)
	tr.OnMessage(c.dispatch)
	return c
}

// Call sends one correlated request and waits for its response, ctx
// cancellation, or channel disposal — whichever comes first.
//
// On cancellation the pending entry is left in the table on purpose: the
// eventual response removes it (and is dropped unread there), so the table
// cannot grow without bound even when callers give up early.
func (c *Channel) Call(ctx context.Context, method string, args []any) (json.RawMessage, error) {
	select {
	case <-c.done:
		return nil, c.disposedError()
	default:
	}

	id := c.nextID.Add(1)
	msg, err := message.NewCall(id, method, args)
	if err != nil {
		return nil, fmt.Errorf("channel: encode args for %q: %w", method, err)
	}

	// Register before sending so a response cannot outrun the table entry.
	respCh := make(chan *message.Message, 1)
	c.pending.Store(id, respCh)

	if err := c.tr.Send(msg); err != nil {
		c.pending.Delete(id)
		return nil, fmt.Errorf("channel: send %q: %w", method, err)
	}
	metrics.IncrCounterWithLabels(MetricCallCount, 1, c.labels)

	select {
	case resp := <-respCh:
		if resp.Kind == message.KindError {
			metrics.IncrCounterWithLabels(MetricRemoteErrorCount, 1, c.labels)
			return nil, &RemoteError{Method: method, Msg: resp.Error}
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.disposedError()
	}
}

// dispatch routes one inbound message to the caller waiting on its ID.
// It never panics and never kills the channel: a malformed or uncorrelated
// response is logged and dropped, everything else keeps working.
func (c *Channel) dispatch(msg *message.Message) {
	switch msg.Kind {
	case message.KindSuccess, message.KindError:
	case message.KindHeartbeat:
		return
	default:
		c.logger.Warn("channel: unexpected message kind", "kind", msg.Kind, "id", msg.ID)
		metrics.IncrCounterWithLabels(MetricAnomalyCount, 1, c.labels)
		return
	}

	entry, ok := c.pending.LoadAndDelete(msg.ID)
	if !ok {
		// Late response for a cancelled call, a duplicate ID, or an ID we
		// never issued. Nobody is waiting either way.
		c.logger.Debug("channel: dropping uncorrelated response", "id", msg.ID, "kind", msg.Kind)
		metrics.IncrCounterWithLabels(MetricOrphanCount, 1, c.labels)
		return
	}
	entry.(chan *message.Message) <- msg
}

// fail records the transport error and tears the channel down; every pending
// caller wakes up with ErrChannelDisposed wrapping the cause.
func (c *Channel) fail(err error) {
	c.failure.Store(err)
	c.logger.Warn("channel: transport failure", "err", err)
	c.disposeOnce.Do(func() {
		close(c.done)
		c.disposeErr = c.tr.Terminate()
	})
}

// Dispose detaches from the transport and terminates it. Safe to call more
// than once; later calls return the first result.
func (c *Channel) Dispose() error {
	c.disposeOnce.Do(func() {
		close(c.done)
		c.disposeErr = c.tr.Terminate()
	})
	return c.disposeErr
}

func (c *Channel) disposedError() error {
	if err, ok := c.failure.Load().(error); ok {
		return fmt.Errorf("%w: %w", ErrChannelDisposed, err)
	}
	return ErrChannelDisposed
}
