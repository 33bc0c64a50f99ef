package transport

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"worker-rpc/codec"
	"worker-rpc/message"
	"worker-rpc/protocol"
)

// DefaultHeartbeatInterval is used by stream transports unless overridden.
const DefaultHeartbeatInterval = 30 * time.Second

// Stream frames messages over a byte stream (a subprocess pipe or a TCP
// connection to a worker host).
//
// A single recvLoop goroutine reads frames sequentially — a byte stream has
// exactly one frame boundary cursor, so reads cannot be shared. Writes go
// through a mutex so a frame's header and body are never interleaved with
// another frame's bytes.
type Stream struct {
	rwc       io.ReadWriteCloser
	codecType codec.Type
	logger    *slog.Logger
	heartbeat time.Duration

	sending sync.Mutex // serializes whole-frame writes

	mu        sync.Mutex
	handler   Handler
	onFailure func(error)

	ready     chan struct{} // closed once the handler is installed
	readyOnce sync.Once

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	localTerm atomic.Bool
}

// StreamOption configures a stream transport.
type StreamOption func(*Stream)

// WithStreamLogger sets the logger used for dropped frames and decode noise.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(s *Stream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHeartbeat sets the keepalive interval. Zero disables heartbeats.
func WithHeartbeat(interval time.Duration) StreamOption {
	return func(s *Stream) {
		s.heartbeat = interval
	}
}

// NewStream wraps rwc in a transport and starts its receive loop, plus a
// heartbeat loop when enabled.
func NewStream(rwc io.ReadWriteCloser, ct codec.Type, opts ...StreamOption) *Stream {
	s := &Stream{
		rwc:       rwc,
		codecType: ct,
		logger:    slog.Default(),
		heartbeat: DefaultHeartbeatInterval,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.recvLoop()
	if s.heartbeat > 0 {
		go s.heartbeatLoop()
	}
	return s
}

func (s *Stream) Send(msg *message.Message) error {
	select {
	case <-s.done:
		return ErrTerminated
	default:
	}

	frame := protocol.FrameCall
	var body []byte
	switch msg.Kind {
	case message.KindHeartbeat:
		frame = protocol.FrameHeartbeat
	case message.KindSuccess, message.KindError:
		frame = protocol.FrameReply
	}
	if frame != protocol.FrameHeartbeat {
		var err error
		body, err = codec.Get(s.codecType).Encode(msg)
		if err != nil {
			return err
		}
	}

	header := protocol.Header{
		CodecType: byte(s.codecType),
		Frame:     frame,
		ID:        msg.ID,
		BodyLen:   uint32(len(body)),
	}

	s.sending.Lock()
	defer s.sending.Unlock()
	return protocol.Encode(s.rwc, &header, body)
}

func (s *Stream) OnMessage(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Stream) OnFailure(fn func(error)) {
	s.mu.Lock()
	s.onFailure = fn
	s.mu.Unlock()
}

func (s *Stream) Terminate() error {
	s.localTerm.Store(true)
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.rwc.Close()
	})
	return s.closeErr
}

// recvLoop reads frames sequentially and dispatches envelopes to the handler.
// It holds off the first read until a handler is installed so nothing the
// peer sends early can be lost.
func (s *Stream) recvLoop() {
	select {
	case <-s.ready:
	case <-s.done:
		return
	}
	for {
		header, body, err := protocol.Decode(s.rwc)
		if err != nil {
			s.fail(err)
			return
		}

		if header.Frame == protocol.FrameHeartbeat {
			continue
		}

		msg := &message.Message{}
		if err := codec.Get(codec.Type(header.CodecType)).Decode(body, msg); err != nil {
			// A single undecodable body is not fatal for the link.
			s.logger.Warn("stream: dropping undecodable frame", "id", header.ID, "err", err)
			continue
		}

		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		h(msg)
	}
}

// fail tears the link down and notifies the failure callback, unless the
// read error was caused by a local Terminate closing the stream.
func (s *Stream) fail(err error) {
	if s.localTerm.Load() {
		return
	}
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.rwc.Close()
	})
	s.mu.Lock()
	fn := s.onFailure
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// heartbeatLoop sends periodic keepalive frames so an idle link is not closed
// by the peer or by middleboxes.
func (s *Stream) heartbeatLoop() {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.Send(message.Heartbeat()); err != nil {
				return
			}
		}
	}
}
