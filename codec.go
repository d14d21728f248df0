package dbus

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encoder appends Values to a growing byte buffer, tracking an absolute
// offset so alignment is always computed against message-start rather than
// buffer length, per SPEC_FULL.md §4.1. Grounded on the teacher's
// encoder.go offset-tracking style, generalized from reflect.Value
// traversal to the explicit Value sum type.
type encoder struct {
	buf    []byte
	offset int
}

func newEncoder(startOffset int) *encoder {
	return &encoder{offset: startOffset}
}

func (e *encoder) align(n int) {
	for e.offset%n != 0 {
		e.buf = append(e.buf, 0)
		e.offset++
	}
}

func (e *encoder) appendBytes(b []byte) {
	e.buf = append(e.buf, b...)
	e.offset += len(b)
}

func (e *encoder) appendByte(b byte) {
	e.appendBytes([]byte{b})
}

func (e *encoder) appendUint16(v uint16) {
	e.align(2)
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.appendBytes(b[:])
}

func (e *encoder) appendUint32(v uint32) {
	e.align(4)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.appendBytes(b[:])
}

func (e *encoder) appendUint64(v uint64) {
	e.align(8)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.appendBytes(b[:])
}

// appendString appends a 4-byte-length-prefixed, NUL-terminated string,
// used for both STRING and OBJECT_PATH.
func (e *encoder) appendString(s string) {
	e.appendUint32(uint32(len(s)))
	e.appendBytes([]byte(s))
	e.appendByte(0)
}

// appendSignatureString appends a 1-byte-length-prefixed, NUL-terminated
// signature string.
func (e *encoder) appendSignatureString(s string) {
	e.appendByte(byte(len(s)))
	e.appendBytes([]byte(s))
	e.appendByte(0)
}

// Marshal appends v's wire encoding to the encoder. An array's element
// alignment is taken from v.Sig; container elements and fields are not
// checked against that signature.
func (e *encoder) Marshal(v Value) error {
	switch v.Kind {
	case KindByte:
		b, _ := v.Byte()
		e.appendByte(b)
	case KindBoolean:
		// Alignment is 1 per the alignment table (spec.md §3) even
		// though the value itself is written as a 4-byte unsigned.
		bo, _ := v.Boolean()
		var u uint32
		if bo {
			u = 1
		}
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], u)
		e.appendBytes(b[:])
	case KindInt16:
		n, _ := v.Int16()
		e.appendUint16(uint16(n))
	case KindUint16:
		n, _ := v.Uint16()
		e.appendUint16(n)
	case KindInt32:
		n, _ := v.Int32()
		e.appendUint32(uint32(n))
	case KindUint32:
		n, _ := v.Uint32()
		e.appendUint32(n)
	case KindInt64:
		n, _ := v.Int64()
		e.appendUint64(uint64(n))
	case KindUint64:
		n, _ := v.Uint64()
		e.appendUint64(n)
	case KindDouble:
		d, _ := v.Double()
		e.appendUint64(math.Float64bits(d))
	case KindString:
		s, _ := v.String()
		e.appendString(s)
	case KindObjectPath:
		s, _ := v.String()
		e.appendString(s)
	case KindSignature:
		s, _ := v.String()
		e.appendSignatureString(s)
	case KindArray:
		return e.marshalArray(v)
	case KindStruct:
		return e.marshalStruct(v)
	case KindDictionary:
		return e.marshalDictionary(v)
	case KindVariant:
		return e.marshalVariant(v)
	default:
		return fmt.Errorf("dbus: marshal: unknown kind %v", v.Kind)
	}
	return nil
}

func (e *encoder) marshalArray(v Value) error {
	// 4-byte length placeholder, patched once the element alignment
	// padding and elements have been written, per SPEC_FULL.md §4.1.
	e.align(4)
	lenOffset := len(e.buf)
	e.appendUint32(0)

	elemSig := elementSignature(v.Sig)
	var elemAlign int
	if len(elemSig) > 0 {
		elemAlign = Alignment(elemSig[0])
	} else {
		elemAlign = 1
	}
	e.align(elemAlign)
	contentStart := e.offset

	for _, el := range v.Elements {
		e.align(elemAlign)
		if err := e.Marshal(el); err != nil {
			return err
		}
	}

	length := uint32(e.offset - contentStart)
	binary.LittleEndian.PutUint32(e.buf[lenOffset:lenOffset+4], length)
	return nil
}

func (e *encoder) marshalStruct(v Value) error {
	e.align(8)
	for _, f := range v.Fields {
		if err := e.Marshal(f); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) marshalDictionary(v Value) error {
	e.align(4)
	lenOffset := len(e.buf)
	e.appendUint32(0)

	e.align(8)
	contentStart := e.offset

	for _, ent := range v.Entries {
		e.align(8)
		if err := e.Marshal(ent.Key); err != nil {
			return err
		}
		if err := e.Marshal(ent.Val); err != nil {
			return err
		}
	}

	length := uint32(e.offset - contentStart)
	binary.LittleEndian.PutUint32(e.buf[lenOffset:lenOffset+4], length)
	return nil
}

func (e *encoder) marshalVariant(v Value) error {
	e.appendSignatureString(string(v.Sig))
	if v.Inner == nil {
		return fmt.Errorf("dbus: marshal: variant with nil inner value")
	}
	return e.Marshal(*v.Inner)
}

// elementSignature returns the element type signature of an array
// signature like "as" or "a(ii)" -- i.e. everything after the leading "a".
func elementSignature(arraySig Signature) string {
	s := string(arraySig)
	if len(s) > 0 && s[0] == 'a' {
		return s[1:]
	}
	return s
}

// Marshal encodes v into a standalone byte slice, starting offset
// accounting alignment from startOffset (useful when embedding the result
// into a larger buffer that begins elsewhere, e.g. message bodies).
func Marshal(v Value, startOffset int) ([]byte, error) {
	e := newEncoder(startOffset)
	if err := e.Marshal(v); err != nil {
		return nil, err
	}
	return e.buf, nil
}
