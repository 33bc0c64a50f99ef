// Package worker implements the remote unit side of the RPC kernel: a host
// that serves one transport endpoint, constructs a receiver on the reserved
// constructor call, and dispatches every later call to it by name.
package worker

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"worker-rpc/message"
	"worker-rpc/transport"
)

// Factory builds the receiver a worker hosts, from the constructor call's
// positional arguments.
type Factory func(args []json.RawMessage) (any, error)

// Host serves calls arriving on one transport endpoint. Each call runs in its
// own goroutine, so a slow method never blocks the ones behind it; the
// transport's own write serialization keeps concurrent replies intact.
type Host struct {
	tr      transport.Transport
	factory Factory
	logger  *slog.Logger

	mu  sync.Mutex
	svc *service

	wg sync.WaitGroup
}

// HostOption configures a Host.
type HostOption func(*Host)

func WithLogger(logger *slog.Logger) HostOption {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHost attaches a host to tr and starts serving immediately.
func NewHost(tr transport.Transport, factory Factory, opts ...HostOption) *Host {
	h := &Host{
		tr:      tr,
		factory: factory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	tr.OnMessage(h.handle)
	return h
}

func (h *Host) handle(msg *message.Message) {
	if msg.Kind != message.KindCall {
		// Workers only ever receive calls; anything else is peer noise.
		h.logger.Warn("worker: ignoring non-call message", "kind", msg.Kind, "id", msg.ID)
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.handleCall(msg)
	}()
}

// handleCall runs one call to completion and sends exactly one response,
// success or error, carrying the call's ID.
func (h *Host) handleCall(msg *message.Message) {
	args, err := msg.DecodeArgs()
	if err != nil {
		h.reply(message.NewError(msg.ID, "malformed args: "+err.Error()))
		return
	}

	var result any
	if msg.Method == message.MethodConstructor {
		err = h.construct(args)
	} else {
		h.mu.Lock()
		svc := h.svc
		h.mu.Unlock()
		if svc == nil {
			err = errors.New("worker: not constructed")
		} else {
			result, err = svc.call(msg.Method, args)
		}
	}
	if err != nil {
		h.reply(message.NewError(msg.ID, err.Error()))
		return
	}

	resp, merr := message.NewSuccess(msg.ID, result)
	if merr != nil {
		resp = message.NewError(msg.ID, "encode result: "+merr.Error())
	}
	h.reply(resp)
}

func (h *Host) construct(args []json.RawMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.svc != nil {
		return errors.New("worker: already constructed")
	}
	rcvr, err := h.factory(args)
	if err != nil {
		return err
	}
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	h.svc = svc
	return nil
}

func (h *Host) reply(msg *message.Message) {
	if err := h.tr.Send(msg); err != nil {
		// The caller is gone; nothing useful to do with the reply.
		h.logger.Debug("worker: dropping reply", "id", msg.ID, "err", err)
	}
}

// Close terminates the transport and waits for in-flight calls to finish.
func (h *Host) Close() error {
	err := h.tr.Terminate()
	h.wg.Wait()
	return err
}
