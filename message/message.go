// Package message defines the wire envelope exchanged between a caller and a
// worker over a transport.
//
// Every interaction is a correlated pair: a call message carrying a method
// name plus JSON-encoded arguments, answered by exactly one success or error
// message with the same ID. Responses may arrive in any order — the ID is the
// only thing linking a response back to its call.
package message

import "encoding/json"

// Kind discriminates the envelope variants.
type Kind string

const (
	KindCall      Kind = "call"
	KindSuccess   Kind = "success"
	KindError     Kind = "error"
	KindHeartbeat Kind = "heartbeat"
)

// MethodConstructor is the reserved method name that initializes the remote
// instance. It MUST be the first call sent on any channel; workers reject
// every other method until it has been answered.
const MethodConstructor = "constructor"

// Message is the envelope for a single call or response.
//
//   - kind=call:      ID, Method and Args are set.
//   - kind=success:   ID and Result are set.
//   - kind=error:     ID and Error are set.
//   - kind=heartbeat: keepalive only, never correlated.
type Message struct {
	Kind   Kind            `json:"kind"`
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NewCall builds a call message. Args are marshalled positionally into a JSON
// array; a nil slice becomes the empty array, never null.
func NewCall(id uint64, method string, args []any) (*Message, error) {
	if args == nil {
		args = []any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return &Message{Kind: KindCall, ID: id, Method: method, Args: raw}, nil
}

// NewSuccess builds the success response for the call with the given ID.
func NewSuccess(id uint64, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Message{Kind: KindSuccess, ID: id, Result: raw}, nil
}

// NewError builds the error response for the call with the given ID.
func NewError(id uint64, errMsg string) *Message {
	return &Message{Kind: KindError, ID: id, Error: errMsg}
}

// Heartbeat builds a keepalive message.
func Heartbeat() *Message {
	return &Message{Kind: KindHeartbeat}
}

// DecodeArgs splits the positional argument array without interpreting the
// elements; the dispatcher decodes each one against its parameter type.
func (m *Message) DecodeArgs() ([]json.RawMessage, error) {
	var out []json.RawMessage
	if len(m.Args) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(m.Args, &out); err != nil {
		return nil, err
	}
	return out, nil
}
