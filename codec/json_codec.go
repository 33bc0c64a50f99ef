package codec

import (
	"encoding/json"

	"worker-rpc/message"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Pros: human-readable, matches the documented wire shapes, easy to debug.
// Cons: slower than byte packing, larger payload (field names repeated).
type JSONCodec struct{}

func (c *JSONCodec) Encode(msg *message.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *JSONCodec) Decode(data []byte, msg *message.Message) error {
	return json.Unmarshal(data, msg)
}

func (c *JSONCodec) Type() Type {
	return TypeJSON
}
