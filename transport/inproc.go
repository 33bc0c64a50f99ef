package transport

import (
	"sync"
	"sync/atomic"

	"worker-rpc/message"
)

const inprocInboxSize = 64

// pairState is shared by both endpoints of an in-process pair: terminating
// either side tears down the whole link, which is how the caller's Terminate
// also stops the worker side.
type pairState struct {
	done      chan struct{}
	closeOnce sync.Once
}

type inprocEndpoint struct {
	shared *pairState
	peer   *inprocEndpoint
	inbox  chan *message.Message

	mu        sync.Mutex
	handler   Handler
	onFailure func(error)

	ready     chan struct{} // closed once the handler is installed
	readyOnce sync.Once
	localTerm atomic.Bool
}

// Pair returns two connected in-process endpoints. Messages sent on one are
// delivered, in order, to the other's handler from a dedicated goroutine.
func Pair() (Transport, Transport) {
	st := &pairState{done: make(chan struct{})}
	a := &inprocEndpoint{shared: st, inbox: make(chan *message.Message, inprocInboxSize), ready: make(chan struct{})}
	b := &inprocEndpoint{shared: st, inbox: make(chan *message.Message, inprocInboxSize), ready: make(chan struct{})}
	a.peer, b.peer = b, a
	go a.pump()
	go b.pump()
	return a, b
}

func (e *inprocEndpoint) Send(msg *message.Message) error {
	select {
	case <-e.shared.done:
		return ErrTerminated
	default:
	}
	select {
	case e.peer.inbox <- msg:
		return nil
	case <-e.shared.done:
		return ErrTerminated
	}
}

func (e *inprocEndpoint) OnMessage(h Handler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
	e.readyOnce.Do(func() { close(e.ready) })
}

func (e *inprocEndpoint) OnFailure(fn func(error)) {
	e.mu.Lock()
	e.onFailure = fn
	e.mu.Unlock()
}

func (e *inprocEndpoint) Terminate() error {
	e.localTerm.Store(true)
	e.shared.closeOnce.Do(func() { close(e.shared.done) })
	return nil
}

// pump delivers inbound messages to the handler. Delivery is held until the
// handler is installed so early traffic is queued, not dropped.
func (e *inprocEndpoint) pump() {
	select {
	case <-e.ready:
	case <-e.shared.done:
		e.fail()
		return
	}
	for {
		select {
		case msg := <-e.inbox:
			e.mu.Lock()
			h := e.handler
			e.mu.Unlock()
			h(msg)
		case <-e.shared.done:
			e.fail()
			return
		}
	}
}

// fail notifies the failure callback unless this endpoint terminated the link
// itself: a local Terminate is not a failure.
func (e *inprocEndpoint) fail() {
	if e.localTerm.Load() {
		return
	}
	e.mu.Lock()
	fn := e.onFailure
	e.mu.Unlock()
	if fn != nil {
		fn(ErrTerminated)
	}
}
