package worker

import (
	"context"
	"net"

	"worker-rpc/codec"
	"worker-rpc/transport"
)

// InProcess returns a Spawner that hosts the worker on goroutines inside the
// current process, connected over an in-process transport pair. Terminating
// the returned endpoint tears down the host side too.
func InProcess(factory Factory, opts ...HostOption) transport.Spawner {
	return transport.SpawnerFunc(func(ctx context.Context) (transport.Transport, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		local, remote := transport.Pair()
		NewHost(remote, factory, opts...)
		return local, nil
	})
}

// Serve accepts connections on lis and runs one Host per connection: each
// connection is an independent worker with its own constructor call and its
// own receiver. It returns the Accept error once lis is closed.
//
// Registering the listener's address with a registry.Registry is the
// caller's job; Serve only speaks the wire.
func Serve(lis net.Listener, factory Factory, ct codec.Type, opts ...HostOption) error {
	for {
		conn, err := lis.Accept()
		if err != nil {
			return err
		}
		NewHost(transport.NewStream(conn, ct), factory, opts...)
	}
}
