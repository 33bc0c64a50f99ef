package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"worker-rpc/message"
	"worker-rpc/transport"
)

// fakeTransport records sends and lets the test inject responses and
// failures by hand.
type fakeTransport struct {
	mu         sync.Mutex
	sent       []*message.Message
	handler    transport.Handler
	onFailure  func(error)
	terminated atomic.Int32
	sendErr    error
}

func (f *fakeTransport) Send(m *message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeTransport) OnMessage(h transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeTransport) OnFailure(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFailure = fn
}

func (f *fakeTransport) Terminate() error {
	f.terminated.Add(1)
	return nil
}

func (f *fakeTransport) respond(m *message.Message) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(m)
}

func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	fn := f.onFailure
	f.mu.Unlock()
	fn(err)
}

func (f *fakeTransport) sentMessages() []*message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*message.Message(nil), f.sent...)
}

func TestCallSuccess(t *testing.T) {
	tr := &fakeTransport{}
	c := New(tr)
	defer c.Dispose()

	done := make(chan struct{})
	var result json.RawMessage
	var callErr error
	go func() {
		defer close(done)
		result, callErr = c.Call(context.Background(), "add", []any{2, 3})
	}()

	require.Eventually(t, func() bool { return len(tr.sentMessages()) == 1 }, time.Second, time.Millisecond)
	sent := tr.sentMessages()[0]
	require.Equal(t, message.KindCall, sent.Kind)
	require.Equal(t, uint64(1), sent.ID, "correlation IDs start at 1")
	require.Equal(t, "add", sent.Method)

	resp, err := message.NewSuccess(sent.ID, 5)
	require.NoError(t, err)
	tr.respond(resp)

	<-done
	require.NoError(t, callErr)
	require.JSONEq(t, `5`, string(result))
}

// Responses arriving in a different order than the requests were sent must
// still resolve exactly the matching caller.
func TestCorrelationOutOfOrder(t *testing.T) {
	tr := &fakeTransport{}
	c := New(tr)
	defer c.Dispose()

	const n = 3
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, err := c.Call(context.Background(), fmt.Sprintf("m%d", i), nil)
			require.NoError(t, err)
			results[i] = string(raw)
		}(i)
	}

	require.Eventually(t, func() bool { return len(tr.sentMessages()) == n }, time.Second, time.Millisecond)

	// Respond in reverse send order; each response names the method it
	// answers so the caller can verify it got its own.
	sent := tr.sentMessages()
	for i := n - 1; i >= 0; i-- {
		resp, err := message.NewSuccess(sent[i].ID, "answer-"+sent[i].Method)
		require.NoError(t, err)
		tr.respond(resp)
	}

	wg.Wait()
	for i := 0; i < n; i++ {
		require.Equal(t, fmt.Sprintf(`"answer-m%d"`, i), results[i])
	}
}

func TestCallRemoteError(t *testing.T) {
	tr := &fakeTransport{}
	c := New(tr)
	defer c.Dispose()

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "divide", []any{1, 0})
		done <- err
	}()

	require.Eventually(t, func() bool { return len(tr.sentMessages()) == 1 }, time.Second, time.Millisecond)
	tr.respond(message.NewError(tr.sentMessages()[0].ID, "division by zero"))

	err := <-done
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "divide", remote.Method)
	require.Contains(t, remote.Msg, "division by zero")
}

// A cancelled caller stops waiting locally; the late response is dropped
// when it finally arrives and the channel stays usable.
func TestCallCancelledThenLateResponse(t *testing.T) {
	tr := &fakeTransport{}
	c := New(tr)
	defer c.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Call(ctx, "slow", nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return len(tr.sentMessages()) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// Late response: nobody is waiting, nothing blows up.
	resp, err := message.NewSuccess(tr.sentMessages()[0].ID, "too late")
	require.NoError(t, err)
	tr.respond(resp)

	// The channel is still fully usable for new calls.
	done2 := make(chan string, 1)
	go func() {
		raw, err := c.Call(context.Background(), "next", nil)
		require.NoError(t, err)
		done2 <- string(raw)
	}()
	require.Eventually(t, func() bool { return len(tr.sentMessages()) == 2 }, time.Second, time.Millisecond)
	next := tr.sentMessages()[1]
	require.Equal(t, uint64(2), next.ID)
	resp2, err := message.NewSuccess(next.ID, "ok")
	require.NoError(t, err)
	tr.respond(resp2)
	require.Equal(t, `"ok"`, <-done2)
}

func TestUnknownIDIgnored(t *testing.T) {
	tr := &fakeTransport{}
	c := New(tr)
	defer c.Dispose()

	// Must not panic, must not affect later calls.
	resp, err := message.NewSuccess(999, "stray")
	require.NoError(t, err)
	tr.respond(resp)
	tr.respond(&message.Message{Kind: "garbage", ID: 1})
}

func TestDisposeIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	c := New(tr)

	require.NoError(t, c.Dispose())
	require.NoError(t, c.Dispose())
	require.Equal(t, int32(1), tr.terminated.Load(), "transport terminated exactly once")

	_, err := c.Call(context.Background(), "anything", nil)
	require.ErrorIs(t, err, ErrChannelDisposed)
}

func TestDisposeWakesPendingCall(t *testing.T) {
	tr := &fakeTransport{}
	c := New(tr)

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "stuck", nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return len(tr.sentMessages()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, c.Dispose())
	require.ErrorIs(t, <-done, ErrChannelDisposed)
}

func TestTransportFailureRejectsPending(t *testing.T) {
	tr := &fakeTransport{}
	c := New(tr)

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "doomed", nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return len(tr.sentMessages()) == 1 }, time.Second, time.Millisecond)
	tr.fail(io.ErrUnexpectedEOF)

	err := <-done
	require.ErrorIs(t, err, ErrChannelDisposed)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Equal(t, int32(1), tr.terminated.Load())
}

func TestSendFailureCleansPendingEntry(t *testing.T) {
	tr := &fakeTransport{sendErr: errors.New("wire down")}
	c := New(tr)
	defer c.Dispose()

	_, err := c.Call(context.Background(), "never", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "wire down")

	// The failed call's entry must be gone; a stray response to its ID is
	// treated as uncorrelated, not delivered.
	resp, rerr := message.NewSuccess(1, "ghost")
	require.NoError(t, rerr)
	tr.respond(resp)
}
