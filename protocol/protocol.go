// Package protocol implements the binary frame format used by stream
// transports (pipes, TCP connections to worker hosts).
//
// A fixed 18-byte header precedes a variable-length body. The receiver reads
// the header first to learn the body length, then reads exactly that many
// bytes, which keeps frame boundaries intact on a byte stream.
//
// Frame format:
//
//	0      3  4  5  6         14        18
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│ft│   id    │ bodyLen │    body ...    │
//	│ wrp  │01│  │  │ uint64  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "wrp" (worker-rpc protocol).
// Rejects non-protocol peers before any body is read.
const (
	MagicByte1 byte = 0x77 // 'w'
	MagicByte2 byte = 0x72 // 'r'
	MagicByte3 byte = 0x70 // 'p'
	Version    byte = 0x01
	HeaderSize int  = 18 // 3 (magic) + 1 (version) + 1 (codec) + 1 (frameType) + 8 (id) + 4 (bodyLen)
)

// FrameType distinguishes call, reply, and heartbeat frames.
type FrameType byte

const (
	FrameCall      FrameType = 0 // caller → worker
	FrameReply     FrameType = 1 // worker → caller (success or error envelope)
	FrameHeartbeat FrameType = 2 // keepalive probe (no body)
)

// Codec type constants, mirrored from the codec package to avoid a circular
// import.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

// Header is the fixed 18-byte frame header.
type Header struct {
	CodecType byte      // Serialization format of the body: 0=JSON, 1=Binary
	Frame     FrameType // Call, Reply, or Heartbeat
	ID        uint64    // Correlation ID (matches a call to its reply)
	BodyLen   uint32    // Body length in bytes
}

// Encode writes a complete frame (header + body) to w.
// Callers sharing a writer across goroutines must serialize Encode calls,
// otherwise frames from different requests interleave and corrupt the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize)

	copy(buf[0:3], []byte{MagicByte1, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.Frame)
	binary.BigEndian.PutUint64(buf[6:14], h.ID)
	binary.BigEndian.PutUint32(buf[14:18], h.BodyLen)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	// Body may be nil for heartbeat frames.
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

// Decode reads a complete frame (header + body) from r. It validates the
// magic number, version, codec type, and frame type. io.ReadFull guarantees
// exactly N bytes per read, so partial reads never split a frame.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicByte1 || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}

	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}

	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}

	frame := headerBuf[5]
	if frame != byte(FrameCall) && frame != byte(FrameReply) && frame != byte(FrameHeartbeat) {
		return nil, nil, fmt.Errorf("unsupported frame type: %d", frame)
	}

	id := binary.BigEndian.Uint64(headerBuf[6:14])
	bodyLen := binary.BigEndian.Uint32(headerBuf[14:18])

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		Frame:     FrameType(frame),
		ID:        id,
		BodyLen:   bodyLen,
	}, body, nil
}
