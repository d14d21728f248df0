package dbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []*Message
}

func (f *fakeSender) Send(message *Message) (uint32, error) {
	f.sent = append(f.sent, message)
	return message.Serial, nil
}

// TestDispatcherChainingReachesNoMatchHandler is spec.md §8 Testable
// Property 8: dispatcher A (no matching handler) -> dispatcher B (no
// matching handler) -> NoMatchHandler results in exactly one
// UnknownObject error message written to the sender.
func TestDispatcherChainingReachesNoMatchHandler(t *testing.T) {
	sender := &fakeSender{}
	a := NewDispatcher(sender)
	b := NewDispatcher(sender)
	noMatch := NewNoMatchHandler(sender)

	chain := Chain(a, Chain(b, noMatch))

	msg := NewMethodCall("org.example.Dest", "/p", "org.example.Iface", "Member")
	msg.Serial = 5

	result := chain.HandleMessage("org.example.Peer", msg)
	require.Equal(t, OutcomeHandled, result.Outcome)
	require.Len(t, sender.sent, 1)

	errName, ok := sender.sent[0].HeaderString(FieldErrorName)
	require.True(t, ok)
	require.Equal(t, errUnknownObject, errName)

	replySerial, ok := sender.sent[0].HeaderUint32(FieldReplySerial)
	require.True(t, ok)
	require.Equal(t, uint32(5), replySerial)
}

func TestDispatcherChainingStopsAtFirstMatch(t *testing.T) {
	sender := &fakeSender{}
	a := NewDispatcher(sender)
	a.HandleMethod("/p", "org.example.Iface", "Member", func(sender string, call *Message) (MethodRetVal, error) {
		return EmptyReply(), nil
	})
	b := NewDispatcher(sender)
	noMatch := NewNoMatchHandler(sender)

	chain := Chain(a, Chain(b, noMatch))

	msg := NewMethodCall("org.example.Dest", "/p", "org.example.Iface", "Member")
	msg.Serial = 3
	result := chain.HandleMessage("peer", msg)
	require.Equal(t, OutcomeHandled, result.Outcome)
	require.Len(t, sender.sent, 1)
	_, hasErrorName := sender.sent[0].HeaderString(FieldErrorName)
	require.False(t, hasErrorName)
}

// TestDispatcherReplySynthesis is spec.md §8 Testable Property 9: a
// registered method returning Reply([Int32(10)]) causes a MethodReturn
// with ReplySerial equal to the request's serial and a body of (Int32(10)).
func TestDispatcherReplySynthesis(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender)
	d.HandleMethod("/p", "org.example.Iface", "Compute", func(sender string, call *Message) (MethodRetVal, error) {
		return Reply(NewInt32(10)), nil
	})

	msg := NewMethodCall("org.example.Dest", "/p", "org.example.Iface", "Compute")
	msg.Serial = 7

	result := d.HandleMessage("peer", msg)
	require.Equal(t, OutcomeHandled, result.Outcome)
	require.Len(t, sender.sent, 1)

	reply := sender.sent[0]
	require.Equal(t, TypeMethodReturn, reply.Type)
	replySerial, ok := reply.HeaderUint32(FieldReplySerial)
	require.True(t, ok)
	require.Equal(t, uint32(7), replySerial)

	body, err := reply.GetBody()
	require.NoError(t, err)
	require.Len(t, body, 1)
	n, err := body[0].Int32()
	require.NoError(t, err)
	require.Equal(t, int32(10), n)
}

func TestDispatcherNoReplySendsNothing(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender)
	d.HandleMethod("/p", "org.example.Iface", "Fire", func(sender string, call *Message) (MethodRetVal, error) {
		return NoReply(), nil
	})

	msg := NewMethodCall("org.example.Dest", "/p", "org.example.Iface", "Fire")
	msg.Serial = 1

	result := d.HandleMessage("peer", msg)
	require.Equal(t, OutcomeHandled, result.Outcome)
	require.Empty(t, sender.sent)
}

func TestDispatcherUnmatchedSignalChains(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender)

	sig := NewSignal("/p", "org.example.Iface", "Changed")
	result := d.HandleMessage("peer", sig)
	require.Equal(t, OutcomeUnmatched, result.Outcome)
	require.Same(t, sig, result.Message)
}
