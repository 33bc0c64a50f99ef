package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"worker-rpc/channel"
	"worker-rpc/message"
	"worker-rpc/transport"
)

func calcFactory(args []json.RawMessage) (any, error) {
	c := &calculator{}
	if len(args) == 1 {
		if err := json.Unmarshal(args[0], &c.memory); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// hostedChannel wires a Host to one end of an in-process pair and a Channel
// to the other, the way a proxy's connect does.
func hostedChannel(t *testing.T, factory Factory) *channel.Channel {
	t.Helper()
	local, remote := transport.Pair()
	NewHost(remote, factory)
	c := channel.New(local)
	t.Cleanup(func() { c.Dispose() })
	return c
}

func TestHostConstructThenCall(t *testing.T) {
	c := hostedChannel(t, calcFactory)

	_, err := c.Call(context.Background(), message.MethodConstructor, nil)
	require.NoError(t, err)

	raw, err := c.Call(context.Background(), "add", []any{2, 3})
	require.NoError(t, err)
	require.JSONEq(t, `5`, string(raw))
}

func TestHostConstructorArgs(t *testing.T) {
	c := hostedChannel(t, calcFactory)

	_, err := c.Call(context.Background(), message.MethodConstructor, []any{42.5})
	require.NoError(t, err)

	raw, err := c.Call(context.Background(), "recall", nil)
	require.NoError(t, err)
	require.JSONEq(t, `42.5`, string(raw))
}

func TestHostCallBeforeConstructor(t *testing.T) {
	c := hostedChannel(t, calcFactory)

	_, err := c.Call(context.Background(), "add", []any{2, 3})
	var remote *channel.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Contains(t, remote.Msg, "not constructed")
}

func TestHostDoubleConstructorRejected(t *testing.T) {
	c := hostedChannel(t, calcFactory)

	_, err := c.Call(context.Background(), message.MethodConstructor, nil)
	require.NoError(t, err)

	_, err = c.Call(context.Background(), message.MethodConstructor, nil)
	var remote *channel.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Contains(t, remote.Msg, "already constructed")
}

func TestHostMethodErrorBecomesErrorReply(t *testing.T) {
	c := hostedChannel(t, calcFactory)

	_, err := c.Call(context.Background(), message.MethodConstructor, nil)
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "divide", []any{1, 0})
	var remote *channel.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Contains(t, remote.Msg, "division by zero")
}

func TestHostFactoryErrorBecomesErrorReply(t *testing.T) {
	c := hostedChannel(t, func([]json.RawMessage) (any, error) {
		return nil, errors.New("backing store unreachable")
	})

	_, err := c.Call(context.Background(), message.MethodConstructor, nil)
	var remote *channel.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Contains(t, remote.Msg, "backing store unreachable")
}

func TestInProcessSpawner(t *testing.T) {
	spawner := InProcess(calcFactory)

	tr, err := spawner.Spawn(context.Background())
	require.NoError(t, err)

	c := channel.New(tr)
	defer c.Dispose()

	_, err = c.Call(context.Background(), message.MethodConstructor, nil)
	require.NoError(t, err)

	raw, err := c.Call(context.Background(), "add", []any{40, 2})
	require.NoError(t, err)
	require.JSONEq(t, `42`, string(raw))
}

func TestInProcessSpawnHonorsContext(t *testing.T) {
	spawner := InProcess(calcFactory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := spawner.Spawn(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
