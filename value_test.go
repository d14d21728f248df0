package dbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueAccessorsKindMismatch(t *testing.T) {
	v := NewInt32(5)
	_, err := v.String()
	require.Error(t, err)

	n, err := v.Int32()
	require.NoError(t, err)
	require.Equal(t, int32(5), n)
}

func TestValueObjectPathAndSignatureAccessors(t *testing.T) {
	p := NewObjectPath("/org/freedesktop/DBus")
	op, err := p.ObjectPath()
	require.NoError(t, err)
	require.Equal(t, ObjectPath("/org/freedesktop/DBus"), op)

	s := NewSignature("a{sv}")
	sig, err := s.Signature()
	require.NoError(t, err)
	require.Equal(t, Signature("a{sv}"), sig)
}

func TestAlignmentTable(t *testing.T) {
	cases := map[byte]int{
		'y': 1, 'b': 1, 'n': 2, 'q': 2, 'i': 4, 'u': 4,
		'x': 8, 't': 8, 'd': 8, 's': 4, 'o': 4, 'g': 1,
		'a': 4, '(': 8, '{': 8, 'v': 1,
	}
	for c, want := range cases {
		require.Equal(t, want, Alignment(c), "alignment of %q", string(c))
	}
}
