package codec

import "worker-rpc/message"

type Type byte

const (
	TypeJSON   Type = 0
	TypeBinary Type = 1
)

// Codec serializes a message envelope to bytes and back.
type Codec interface {
	Encode(msg *message.Message) ([]byte, error)
	Decode(data []byte, msg *message.Message) error
	Type() Type
}

func Get(t Type) Codec {
	if t == TypeJSON {
		return &JSONCodec{}
	}

	return &BinaryCodec{}
}
