package codec

import (
	"encoding/binary"
	"fmt"

	"worker-rpc/message"
)

// BinaryCodec packs the envelope as length-prefixed fields:
//
//	kind(1) id(8) methodLen(2)+method argsLen(4)+args resultLen(4)+result errLen(2)+err
type BinaryCodec struct{}

const (
	kindByteCall      byte = 0
	kindByteSuccess   byte = 1
	kindByteError     byte = 2
	kindByteHeartbeat byte = 3
)

func kindToByte(k message.Kind) (byte, error) {
	switch k {
	case message.KindCall:
		return kindByteCall, nil
	case message.KindSuccess:
		return kindByteSuccess, nil
	case message.KindError:
		return kindByteError, nil
	case message.KindHeartbeat:
		return kindByteHeartbeat, nil
	}
	return 0, fmt.Errorf("BinaryCodec: unknown kind %q", k)
}

func byteToKind(b byte) (message.Kind, error) {
	switch b {
	case kindByteCall:
		return message.KindCall, nil
	case kindByteSuccess:
		return message.KindSuccess, nil
	case kindByteError:
		return message.KindError, nil
	case kindByteHeartbeat:
		return message.KindHeartbeat, nil
	}
	return "", fmt.Errorf("BinaryCodec: unknown kind byte %d", b)
}

func (c *BinaryCodec) Encode(msg *message.Message) ([]byte, error) {
	kind, err := kindToByte(msg.Kind)
	if err != nil {
		return nil, err
	}

	total := 1 + 8 + 2 + len(msg.Method) + 4 + len(msg.Args) + 4 + len(msg.Result) + 2 + len(msg.Error)
	buf := make([]byte, total)

	offset := 0
	buf[offset] = kind
	offset++

	binary.BigEndian.PutUint64(buf[offset:offset+8], msg.ID)
	offset += 8

	// Method -- 2-byte length prefix
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(msg.Method)))
	offset += 2
	copy(buf[offset:offset+len(msg.Method)], msg.Method)
	offset += len(msg.Method)

	// Args -- 4-byte length prefix
	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(msg.Args)))
	offset += 4
	copy(buf[offset:offset+len(msg.Args)], msg.Args)
	offset += len(msg.Args)

	// Result -- 4-byte length prefix
	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(msg.Result)))
	offset += 4
	copy(buf[offset:offset+len(msg.Result)], msg.Result)
	offset += len(msg.Result)

	// Error -- 2-byte length prefix
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(msg.Error)))
	offset += 2
	copy(buf[offset:offset+len(msg.Error)], msg.Error)

	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, msg *message.Message) error {
	if len(data) < 1+8+2 {
		return fmt.Errorf("BinaryCodec: truncated envelope (%d bytes)", len(data))
	}

	offset := 0
	kind, err := byteToKind(data[offset])
	if err != nil {
		return err
	}
	msg.Kind = kind
	offset++

	msg.ID = binary.BigEndian.Uint64(data[offset : offset+8])
	offset += 8

	methodLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if len(data) < offset+methodLen+4 {
		return fmt.Errorf("BinaryCodec: truncated method field")
	}
	msg.Method = string(data[offset : offset+methodLen])
	offset += methodLen

	argsLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if len(data) < offset+argsLen+4 {
		return fmt.Errorf("BinaryCodec: truncated args field")
	}
	if argsLen > 0 {
		msg.Args = make([]byte, argsLen)
		copy(msg.Args, data[offset:offset+argsLen])
	}
	offset += argsLen

	resultLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if len(data) < offset+resultLen+2 {
		return fmt.Errorf("BinaryCodec: truncated result field")
	}
	if resultLen > 0 {
		msg.Result = make([]byte, resultLen)
		copy(msg.Result, data[offset:offset+resultLen])
	}
	offset += resultLen

	errLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if len(data) < offset+errLen {
		return fmt.Errorf("BinaryCodec: truncated error field")
	}
	msg.Error = string(data[offset : offset+errLen])

	return nil
}

func (c *BinaryCodec) Type() Type {
	return TypeBinary
}
