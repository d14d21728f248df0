package dbus

import (
	"encoding/binary"
	"fmt"
)

// MessageType is the D-Bus message kind (spec.md §3).
type MessageType byte

const (
	TypeInvalid      MessageType = 0
	TypeMethodCall   MessageType = 1
	TypeMethodReturn MessageType = 2
	TypeError        MessageType = 3
	TypeSignal       MessageType = 4
)

// Recognized message flags (spec.md §3). Any other bit is passed through
// unmodified but not interpreted by this library.
const (
	FlagNoReplyExpected byte = 0x1
)

// Header field codes (spec.md §3).
const (
	FieldPath        byte = 1
	FieldInterface   byte = 2
	FieldMember      byte = 3
	FieldErrorName   byte = 4
	FieldReplySerial byte = 5
	FieldDestination byte = 6
	FieldSender      byte = 7
	FieldSignature   byte = 8
)

// HeaderField is one (code, variant) pair of a message header.
type HeaderField struct {
	Code  byte
	Value Value // always Kind == KindVariant
}

// Message is a D-Bus wire message: a header plus an opaque, lazily decoded
// body (spec.md §3/§4.2).
type Message struct {
	Endianness byte
	Type       MessageType
	Flags      byte
	Version    byte
	Serial     uint32
	Headers    []HeaderField

	body []byte
}

func newMessage(t MessageType) *Message {
	return &Message{Endianness: 'l', Type: t, Version: 1}
}

// setHeader replaces the existing field with this code, if any, else
// appends it, preserving "a given code may appear at most once"
// (spec.md §3).
func (m *Message) setHeader(code byte, variant Value) {
	for i := range m.Headers {
		if m.Headers[i].Code == code {
			m.Headers[i].Value = variant
			return
		}
	}
	m.Headers = append(m.Headers, HeaderField{Code: code, Value: variant})
}

func (m *Message) header(code byte) (Value, bool) {
	for _, hf := range m.Headers {
		if hf.Code == code {
			return hf.Value, true
		}
	}
	return Value{}, false
}

// HeaderString returns the string-typed payload of a header field (Path,
// Interface, Member, ErrorName, Destination, Sender, Signature all carry a
// string-like inner value).
func (m *Message) HeaderString(code byte) (string, bool) {
	v, ok := m.header(code)
	if !ok || v.Inner == nil {
		return "", false
	}
	s, err := v.Inner.String()
	if err != nil {
		return "", false
	}
	return s, true
}

// HeaderUint32 returns the uint32-typed payload of a header field
// (ReplySerial).
func (m *Message) HeaderUint32(code byte) (uint32, bool) {
	v, ok := m.header(code)
	if !ok || v.Inner == nil {
		return 0, false
	}
	u, err := v.Inner.Uint32()
	if err != nil {
		return 0, false
	}
	return u, true
}

// NewMethodCall builds a MethodCall message with the four header fields
// required by spec.md §4.2, stamped as variants of type s, o, s, s.
func NewMethodCall(dest string, path ObjectPath, iface, member string) *Message {
	m := newMessage(TypeMethodCall)
	m.setHeader(FieldDestination, NewVariant("s", NewString(dest)))
	m.setHeader(FieldPath, NewVariant("o", NewObjectPath(path)))
	m.setHeader(FieldInterface, NewVariant("s", NewString(iface)))
	m.setHeader(FieldMember, NewVariant("s", NewString(member)))
	return m
}

// NewMethodReturn builds a MethodReturn message stamping ReplySerial.
func NewMethodReturn(replySerial uint32) *Message {
	m := newMessage(TypeMethodReturn)
	m.setHeader(FieldReplySerial, NewVariant("u", NewUint32(replySerial)))
	return m
}

// NewError builds an Error message stamping both ReplySerial and
// ErrorName.
func NewError(name string, replySerial uint32) *Message {
	m := newMessage(TypeError)
	m.setHeader(FieldReplySerial, NewVariant("u", NewUint32(replySerial)))
	m.setHeader(FieldErrorName, NewVariant("s", NewString(name)))
	return m
}

// NewSignal builds a Signal message stamping Path, Interface, Member.
func NewSignal(path ObjectPath, iface, member string) *Message {
	m := newMessage(TypeSignal)
	m.setHeader(FieldPath, NewVariant("o", NewObjectPath(path)))
	m.setHeader(FieldInterface, NewVariant("s", NewString(iface)))
	m.setHeader(FieldMember, NewVariant("s", NewString(member)))
	return m
}

// valueTypeSignature computes the single complete type signature of v, as
// needed by AddArg to extend the Signature header (spec.md §4.2).
func valueTypeSignature(v Value) (string, error) {
	switch v.Kind {
	case KindByte:
		return "y", nil
	case KindBoolean:
		return "b", nil
	case KindInt16:
		return "n", nil
	case KindUint16:
		return "q", nil
	case KindInt32:
		return "i", nil
	case KindUint32:
		return "u", nil
	case KindInt64:
		return "x", nil
	case KindUint64:
		return "t", nil
	case KindDouble:
		return "d", nil
	case KindString:
		return "s", nil
	case KindObjectPath:
		return "o", nil
	case KindSignature:
		return "g", nil
	case KindArray, KindStruct, KindDictionary:
		if v.Sig == "" {
			return "", fmt.Errorf("dbus: %w: container value missing signature", ErrBadSignature)
		}
		return string(v.Sig), nil
	case KindVariant:
		return "v", nil
	default:
		return "", fmt.Errorf("dbus: %w: cannot compute signature for kind %v", ErrBadSignature, v.Kind)
	}
}

// AddArg appends value's wire encoding to the body and extends the
// Signature header, atomically from the caller's perspective, per
// spec.md §4.2. Argument order is preserved.
func (m *Message) AddArg(value Value) error {
	typeSig, err := valueTypeSignature(value)
	if err != nil {
		return err
	}

	encoded, err := Marshal(value, len(m.body))
	if err != nil {
		return err
	}

	cur, _ := m.HeaderString(FieldSignature)
	newSig := cur + typeSig
	m.setHeader(FieldSignature, NewVariant("g", NewSignature(Signature(newSig))))
	m.body = append(m.body, encoded...)
	return nil
}

// byteOrder returns the wire byte order implied by Endianness ('l' or 'B'),
// per spec.md §3: "reads accept both; writes are little-endian".
func (m *Message) byteOrder() binary.ByteOrder {
	if m.Endianness == 'B' {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// GetBody decodes body using the Signature header, per spec.md §4.2.
// Returns nil if the body is empty or no Signature header is present.
func (m *Message) GetBody() ([]Value, error) {
	sig, ok := m.HeaderString(FieldSignature)
	if !ok || len(m.body) == 0 {
		return nil, nil
	}
	values, _, err := DemarshalSequenceOrder(m.body, 0, sig, m.byteOrder())
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Body returns the raw, still-encoded body bytes.
func (m *Message) Body() []byte { return m.body }

// headerFieldsArrayValue builds the "a(yv)" Value representing the ordered
// header-field list, for use by the encoder.
func (m *Message) headerFieldsArrayValue() Value {
	elements := make([]Value, len(m.Headers))
	for i, hf := range m.Headers {
		elements[i] = NewStruct("(yv)", []Value{NewByte(hf.Code), hf.Value})
	}
	return NewArray("a(yv)", elements)
}

// MarshalBinary encodes the full message (fixed header, header-field
// array, padding, body) per the wire layout in spec.md §4.2.
func (m *Message) MarshalBinary() ([]byte, error) {
	e := newEncoder(0)
	e.appendByte(m.Endianness)
	e.appendByte(byte(m.Type))
	e.appendByte(m.Flags)
	e.appendByte(m.Version)
	e.appendUint32(uint32(len(m.body)))
	e.appendUint32(m.Serial)

	if err := e.Marshal(m.headerFieldsArrayValue()); err != nil {
		return nil, fmt.Errorf("dbus: encode header fields: %w", err)
	}
	e.align(8)
	e.appendBytes(m.body)
	return e.buf, nil
}

// headerFieldsFromValue converts a decoded "a(yv)" Array value into an
// ordered []HeaderField list.
func headerFieldsFromValue(arr Value) ([]HeaderField, error) {
	if arr.Kind != KindArray {
		return nil, fmt.Errorf("dbus: %w: expected header field array", ErrCorruptedMessage)
	}
	fields := make([]HeaderField, 0, len(arr.Elements))
	for _, el := range arr.Elements {
		if el.Kind != KindStruct || len(el.Fields) != 2 {
			return nil, fmt.Errorf("dbus: %w: malformed header field struct", ErrCorruptedMessage)
		}
		code, err := el.Fields[0].Byte()
		if err != nil {
			return nil, err
		}
		fields = append(fields, HeaderField{Code: code, Value: el.Fields[1]})
	}
	return fields, nil
}
