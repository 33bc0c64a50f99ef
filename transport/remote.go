package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"worker-rpc/balance"
	"worker-rpc/codec"
	"worker-rpc/registry"
)

// RemoteSpawner connects to an already-running worker host instead of
// starting one: it discovers registered hosts for a service, picks one, and
// dials it. Each Spawn yields a fresh connection, which on the host side
// means a fresh worker.
type RemoteSpawner struct {
	Service   string
	Registry  registry.Registry
	Picker    balance.Picker
	CodecType codec.Type

	// DialTimeout bounds the TCP dial. Zero means rely on ctx alone.
	DialTimeout time.Duration

	StreamOptions []StreamOption
}

func (r *RemoteSpawner) Spawn(ctx context.Context) (Transport, error) {
	hosts, err := r.Registry.Discover(r.Service)
	if err != nil {
		return nil, fmt.Errorf("transport: discover %s: %w", r.Service, err)
	}

	host, err := r.Picker.Pick(hosts)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: r.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", host.Addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", host.Addr, err)
	}

	return NewStream(conn, r.CodecType, r.StreamOptions...), nil
}
