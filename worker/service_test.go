package worker

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type calculator struct {
	memory float64
}

func (c *calculator) Add(a, b float64) (float64, error) {
	return a + b, nil
}

func (c *calculator) Divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

func (c *calculator) Store(v float64) error {
	c.memory = v
	return nil
}

func (c *calculator) Recall() (float64, error) {
	return c.memory, nil
}

// Not callable: no error return.
func (c *calculator) Version() string { return "1.0" }

func rawArgs(t *testing.T, args ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		require.NoError(t, err)
		out[i] = b
	}
	return out
}

func TestServiceMethodResolution(t *testing.T) {
	s, err := newService(&calculator{})
	require.NoError(t, err)

	require.Contains(t, s.methods, "add")
	require.Contains(t, s.methods, "divide")
	require.Contains(t, s.methods, "store")
	require.Contains(t, s.methods, "recall")
	require.NotContains(t, s.methods, "version", "methods without an error return are not callable")
	require.NotContains(t, s.methods, "Add", "wire names are lower-first")
}

func TestServiceCall(t *testing.T) {
	s, err := newService(&calculator{})
	require.NoError(t, err)

	result, err := s.call("add", rawArgs(t, 2, 3))
	require.NoError(t, err)
	require.Equal(t, float64(5), result)
}

func TestServiceCallMethodError(t *testing.T) {
	s, err := newService(&calculator{})
	require.NoError(t, err)

	_, err = s.call("divide", rawArgs(t, 1, 0))
	require.EqualError(t, err, "division by zero")
}

func TestServiceCallErrorOnlyMethod(t *testing.T) {
	calc := &calculator{}
	s, err := newService(calc)
	require.NoError(t, err)

	result, err := s.call("store", rawArgs(t, 42.5))
	require.NoError(t, err)
	require.Nil(t, result)
	require.Equal(t, 42.5, calc.memory)
}

func TestServiceCallUnknownMethod(t *testing.T) {
	s, err := newService(&calculator{})
	require.NoError(t, err)

	_, err = s.call("multiply", rawArgs(t, 2, 3))
	require.ErrorContains(t, err, "unknown method")
}

func TestServiceCallArityMismatch(t *testing.T) {
	s, err := newService(&calculator{})
	require.NoError(t, err)

	_, err = s.call("add", rawArgs(t, 2))
	require.ErrorContains(t, err, "takes 2 args, got 1")
}

func TestServiceCallBadArgEncoding(t *testing.T) {
	s, err := newService(&calculator{})
	require.NoError(t, err)

	_, err = s.call("add", []json.RawMessage{json.RawMessage(`"two"`), json.RawMessage(`3`)})
	require.ErrorContains(t, err, "decode arg 0")
}

func TestServiceRejectsNilReceiver(t *testing.T) {
	_, err := newService(nil)
	require.Error(t, err)
}

type opaque struct{}

func (opaque) String() string { return "opaque" }

func TestServiceRejectsReceiverWithoutMethods(t *testing.T) {
	_, err := newService(opaque{})
	require.ErrorContains(t, err, "no callable methods")
}

func TestWireName(t *testing.T) {
	require.Equal(t, "add", wireName("Add"))
	require.Equal(t, "recallAll", wireName("RecallAll"))
}
