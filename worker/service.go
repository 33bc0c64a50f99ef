package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// service wraps a constructed receiver and its callable methods, resolved by
// reflection once at construction time.
//
// A method is callable if it is exported and its last (or only) return value
// is error; parameters are decoded positionally from the call's JSON args.
// Wire names are the Go names with the first rune lowered: Add ↔ "add".
type service struct {
	rcvr    reflect.Value
	methods map[string]reflect.Method
}

func newService(rcvr any) (*service, error) {
	v := reflect.ValueOf(rcvr)
	if !v.IsValid() {
		return nil, errors.New("worker: constructor returned nil receiver")
	}

	t := v.Type()
	s := &service{rcvr: v, methods: make(map[string]reflect.Method)}
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		mt := m.Type
		if mt.NumOut() < 1 || mt.NumOut() > 2 || mt.Out(mt.NumOut()-1) != errType {
			continue
		}
		s.methods[wireName(m.Name)] = m
	}
	if len(s.methods) == 0 {
		return nil, fmt.Errorf("worker: %s exposes no callable methods", t)
	}
	return s, nil
}

// call invokes a method by wire name with positional JSON arguments.
func (s *service) call(method string, args []json.RawMessage) (any, error) {
	m, ok := s.methods[method]
	if !ok {
		return nil, fmt.Errorf("worker: unknown method %q", method)
	}

	mt := m.Type
	want := mt.NumIn() - 1 // excluding the receiver
	if len(args) != want {
		return nil, fmt.Errorf("worker: %q takes %d args, got %d", method, want, len(args))
	}

	in := make([]reflect.Value, 0, mt.NumIn())
	in = append(in, s.rcvr)
	for i := 0; i < want; i++ {
		pv := reflect.New(mt.In(i + 1))
		if err := json.Unmarshal(args[i], pv.Interface()); err != nil {
			return nil, fmt.Errorf("worker: decode arg %d of %q: %w", i, method, err)
		}
		in = append(in, pv.Elem())
	}

	out := m.Func.Call(in)
	if errv := out[len(out)-1]; !errv.IsNil() {
		return nil, errv.Interface().(error)
	}
	if mt.NumOut() == 2 {
		return out[0].Interface(), nil
	}
	return nil, nil
}

func wireName(goName string) string {
	r, size := utf8.DecodeRuneInString(goName)
	return string(unicode.ToLower(r)) + goName[size:]
}
