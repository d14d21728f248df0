package dbus

import (
	"net"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newPipeConnections() (*Connection, *Connection) {
	a, b := net.Pipe()
	log := logrus.StandardLogger()
	return &Connection{conn: a, nextSerial: 1, log: log}, &Connection{conn: b, nextSerial: 1, log: log}
}

// TestReplyCorrelationPreservesOrder is spec.md §8 Testable Property 7: a
// mock socket scripted to yield three messages with reply-serials
// 99, serial, 99; CallSync returns the middle body, and the two
// reply-serial=99 messages come back via subsequent ReadMessage calls in
// their original order.
func TestReplyCorrelationPreservesOrder(t *testing.T) {
	client, server := newPipeConnections()

	done := make(chan struct{})
	go func() {
		defer close(done)
		call, err := server.ReadMessage()
		if err != nil {
			return
		}
		serial := call.Serial

		first := NewMethodReturn(99)
		first.AddArg(NewString("first"))
		middle := NewMethodReturn(serial)
		middle.AddArg(NewString("middle"))
		last := NewMethodReturn(99)
		last.AddArg(NewString("last"))

		server.Send(first)
		server.Send(middle)
		server.Send(last)
	}()

	call := NewMethodCall("org.example.Dest", "/a", "org.example.Iface", "Method")
	body, err := client.CallSync(call)
	require.NoError(t, err)
	require.Len(t, body, 1)
	s, err := body[0].String()
	require.NoError(t, err)
	require.Equal(t, "middle", s)

	m1, err := client.ReadMessage()
	require.NoError(t, err)
	b1, err := m1.GetBody()
	require.NoError(t, err)
	s1, _ := b1[0].String()
	require.Equal(t, "first", s1)

	m2, err := client.ReadMessage()
	require.NoError(t, err)
	b2, err := m2.GetBody()
	require.NoError(t, err)
	s2, _ := b2[0].String()
	require.Equal(t, "last", s2)

	<-done
}

func TestCallSyncPanicsOnNonMethodCall(t *testing.T) {
	client, _ := newPipeConnections()
	require.Panics(t, func() {
		client.CallSync(NewSignal("/a", "iface", "Member"))
	})
}

func TestSerialAssignmentIncrementsAndIsNonzero(t *testing.T) {
	client, server := newPipeConnections()
	go func() {
		server.ReadMessage()
		server.ReadMessage()
	}()

	s1, err := client.Send(NewMethodCall("d", "/a", "i", "M1"))
	require.NoError(t, err)
	s2, err := client.Send(NewMethodCall("d", "/a", "i", "M2"))
	require.NoError(t, err)

	require.NotZero(t, s1)
	require.Equal(t, s1+1, s2)
}
