package dbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageConstructionAndAddArg(t *testing.T) {
	msg := NewMethodCall("a", "/b", "c", "d")
	require.NoError(t, msg.AddArg(NewInt32(1)))
	require.NoError(t, msg.AddArg(NewString("x")))

	sig, ok := msg.HeaderString(FieldSignature)
	require.True(t, ok)
	require.Equal(t, "is", sig)

	body, err := msg.GetBody()
	require.NoError(t, err)
	require.Len(t, body, 2)

	n, err := body[0].Int32()
	require.NoError(t, err)
	require.Equal(t, int32(1), n)

	s, err := body[1].String()
	require.NoError(t, err)
	require.Equal(t, "x", s)
}

func TestMessageWireRoundTrip(t *testing.T) {
	msg := NewMethodCall("org.freedesktop.DBus", "/org/freedesktop/DBus", "org.freedesktop.DBus", "Hello")
	msg.Serial = 7
	require.NoError(t, msg.AddArg(NewUint32(99)))

	data, err := msg.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, byte('l'), data[0])
	require.Equal(t, byte(TypeMethodCall), data[1])

	// Total length must be a multiple of 8 at the point the body begins.
	require.Equal(t, 0, (len(data)-4)%8)
}

func TestNewMethodReturnStampsReplySerial(t *testing.T) {
	msg := NewMethodReturn(42)
	rs, ok := msg.HeaderUint32(FieldReplySerial)
	require.True(t, ok)
	require.Equal(t, uint32(42), rs)
}

func TestNewErrorStampsReplySerialAndName(t *testing.T) {
	msg := NewError("org.freedesktop.DBus.Error.Failed", 11)
	rs, ok := msg.HeaderUint32(FieldReplySerial)
	require.True(t, ok)
	require.Equal(t, uint32(11), rs)
	name, ok := msg.HeaderString(FieldErrorName)
	require.True(t, ok)
	require.Equal(t, "org.freedesktop.DBus.Error.Failed", name)
}

func TestNewSignalStampsPathInterfaceMember(t *testing.T) {
	msg := NewSignal("/a/b", "org.example.Iface", "Changed")
	path, _ := msg.HeaderString(FieldPath)
	iface, _ := msg.HeaderString(FieldInterface)
	member, _ := msg.HeaderString(FieldMember)
	require.Equal(t, "/a/b", path)
	require.Equal(t, "org.example.Iface", iface)
	require.Equal(t, "Changed", member)
}

func TestGetBodyEmptyWithoutSignature(t *testing.T) {
	msg := NewMethodReturn(1)
	body, err := msg.GetBody()
	require.NoError(t, err)
	require.Nil(t, body)
}

// TestGetBodyHonorsBigEndianFlag covers spec.md §3: a message read off the
// wire with the 'B' endian flag must have its body decoded big-endian even
// though this library only ever writes little-endian.
func TestGetBodyHonorsBigEndianFlag(t *testing.T) {
	msg := NewMethodReturn(1)
	msg.Endianness = 'B'
	msg.setHeader(FieldSignature, NewVariant("g", NewSignature("u")))
	msg.body = []byte{0x00, 0x00, 0x01, 0x02} // big-endian 0x0102

	body, err := msg.GetBody()
	require.NoError(t, err)
	require.Len(t, body, 1)
	n, err := body[0].Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x0102), n)
}
