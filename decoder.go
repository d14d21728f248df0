package dbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// Demarshal errors, per SPEC_FULL.md §4.1 / §7. Checked with errors.Is;
// call sites wrap with additional context via fmt.Errorf("...: %w", ...).
var (
	ErrMessageTooShort  = errors.New("dbus: message too short")
	ErrCorruptedMessage = errors.New("dbus: corrupted message")
	ErrBadUTF8          = errors.New("dbus: invalid utf-8")
	ErrBadSignature     = errors.New("dbus: invalid signature")
	ErrElementTooBig    = errors.New("dbus: array element too big")
	ErrMismatchedParens = errors.New("dbus: mismatched parens in signature")
)

// maxArrayLength is the array length bound from SPEC_FULL.md §4.1 / §8
// (2^26 bytes).
const maxArrayLength = 1 << 26

// decoder walks a byte slice with a forward-only cursor, never mutating or
// reslicing buf, per SPEC_FULL.md §9's design note (superseding the
// teacher's/original's buffer-popping demarshal style).
type decoder struct {
	buf    []byte
	pos    int
	offset int
	order  binary.ByteOrder
}

// newDecoderOrder wraps buf for decoding, where buf[0] corresponds to
// absolute stream offset startOffset (alignment is always computed against
// that absolute offset, not against len(buf)). order controls how
// multi-byte integers are read -- spec.md §3 requires reads to accept
// either endianness even though writes are always little-endian.
func newDecoderOrder(buf []byte, startOffset int, order binary.ByteOrder) *decoder {
	return &decoder{buf: buf, offset: startOffset, order: order}
}

func (d *decoder) align(n int) error {
	pad := (n - d.offset%n) % n
	if d.pos+pad > len(d.buf) {
		return ErrMessageTooShort
	}
	d.pos += pad
	d.offset += pad
	return nil
}

func (d *decoder) readN(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.buf) {
		return nil, ErrMessageTooShort
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	d.offset += n
	return b, nil
}

func (d *decoder) readByte() (byte, error) {
	b, err := d.readN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) readUint32() (uint32, error) {
	if err := d.align(4); err != nil {
		return 0, err
	}
	b, err := d.readN(4)
	if err != nil {
		return 0, err
	}
	return d.order.Uint32(b), nil
}

func (d *decoder) readUint16() (uint16, error) {
	if err := d.align(2); err != nil {
		return 0, err
	}
	b, err := d.readN(2)
	if err != nil {
		return 0, err
	}
	return d.order.Uint16(b), nil
}

func (d *decoder) readUint64() (uint64, error) {
	if err := d.align(8); err != nil {
		return 0, err
	}
	b, err := d.readN(8)
	if err != nil {
		return 0, err
	}
	return d.order.Uint64(b), nil
}

func (d *decoder) readString() (string, error) {
	l, err := d.readUint32()
	if err != nil {
		return "", err
	}
	b, err := d.readN(int(l))
	if err != nil {
		return "", err
	}
	nul, err := d.readByte()
	if err != nil {
		return "", err
	}
	if nul != 0 {
		return "", ErrCorruptedMessage
	}
	if !utf8.Valid(b) {
		return "", ErrBadUTF8
	}
	return string(b), nil
}

func (d *decoder) readSignatureString() (string, error) {
	l, err := d.readByte()
	if err != nil {
		return "", err
	}
	b, err := d.readN(int(l))
	if err != nil {
		return "", err
	}
	nul, err := d.readByte()
	if err != nil {
		return "", err
	}
	if nul != 0 {
		return "", ErrCorruptedMessage
	}
	return string(b), nil
}

// splitOneType extracts exactly one complete type from the front of sig,
// returning it and whatever remains, per the grammar in SPEC_FULL.md §3.
func splitOneType(sig string) (one string, rest string, err error) {
	if sig == "" {
		return "", "", fmt.Errorf("dbus: %w: expected a type, got empty signature", ErrMismatchedParens)
	}
	switch sig[0] {
	case 'a':
		elem, after, err := splitOneType(sig[1:])
		if err != nil {
			return "", "", err
		}
		return "a" + elem, after, nil
	case '(':
		depth := 1
		i := 1
		for i < len(sig) && depth > 0 {
			switch sig[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
			i++
		}
		if depth != 0 {
			return "", "", ErrMismatchedParens
		}
		return sig[:i], sig[i:], nil
	case '{':
		depth := 1
		i := 1
		for i < len(sig) && depth > 0 {
			switch sig[i] {
			case '{':
				depth++
			case '}':
				depth--
			}
			i++
		}
		if depth != 0 {
			return "", "", ErrMismatchedParens
		}
		return sig[:i], sig[i:], nil
	default:
		return sig[:1], sig[1:], nil
	}
}

// decodeOne decodes exactly one complete type (typeSig must already be a
// single complete type, as produced by splitOneType).
func (d *decoder) decodeOne(typeSig string) (Value, error) {
	if typeSig == "" {
		return Value{}, ErrBadSignature
	}
	switch typeSig[0] {
	case 'y':
		b, err := d.readByte()
		return NewByte(b), err
	case 'b':
		// Alignment is 1 per the alignment table (spec.md §3) even
		// though the value itself is read as a 4-byte unsigned.
		b, err := d.readN(4)
		if err != nil {
			return Value{}, err
		}
		u := d.order.Uint32(b)
		if u != 0 && u != 1 {
			return Value{}, fmt.Errorf("dbus: %w: boolean value %d not in {0,1}", ErrCorruptedMessage, u)
		}
		return NewBoolean(u == 1), nil
	case 'n':
		n, err := d.readUint16()
		return NewInt16(int16(n)), err
	case 'q':
		n, err := d.readUint16()
		return NewUint16(n), err
	case 'i':
		n, err := d.readUint32()
		return NewInt32(int32(n)), err
	case 'u':
		n, err := d.readUint32()
		return NewUint32(n), err
	case 'x':
		n, err := d.readUint64()
		return NewInt64(int64(n)), err
	case 't':
		n, err := d.readUint64()
		return NewUint64(n), err
	case 'd':
		n, err := d.readUint64()
		if err != nil {
			return Value{}, err
		}
		return NewDouble(math.Float64frombits(n)), nil
	case 's':
		s, err := d.readString()
		return NewString(s), err
	case 'o':
		s, err := d.readString()
		return NewObjectPath(ObjectPath(s)), err
	case 'g':
		s, err := d.readSignatureString()
		return NewSignature(Signature(s)), err
	case 'a':
		return d.decodeArray(typeSig[1:])
	case '(':
		return d.decodeStruct(typeSig[1 : len(typeSig)-1])
	case 'v':
		return d.decodeVariant()
	default:
		return Value{}, fmt.Errorf("dbus: %w: unknown type character %q", ErrBadSignature, typeSig[0])
	}
}

func (d *decoder) decodeArray(elemType string) (Value, error) {
	if elemType == "" {
		return Value{}, ErrBadSignature
	}
	l, err := d.readUint32()
	if err != nil {
		return Value{}, err
	}
	if l > maxArrayLength {
		return Value{}, ErrElementTooBig
	}

	elemAlign := Alignment(elemType[0])
	if err := d.align(elemAlign); err != nil {
		return Value{}, err
	}
	start := d.offset

	isDict := elemType[0] == '{'
	var keyType, valType string
	if isDict {
		var extra string
		keyType, valType, err = splitOneType(elemType[1 : len(elemType)-1])
		if err == nil {
			valType, extra, err = splitOneType(valType)
		}
		if err != nil || !IsBasicType(keyType[0]) || extra != "" {
			return Value{}, fmt.Errorf("dbus: %w: dict entry %q is not one basic key type and one value type", ErrBadSignature, elemType)
		}
	}
	var elements []Value
	var entries []DictEntry

	for d.offset-start < int(l) {
		if err := d.align(elemAlign); err != nil {
			return Value{}, err
		}
		if isDict {
			key, err := d.decodeOne(keyType)
			if err != nil {
				return Value{}, err
			}
			val, err := d.decodeOne(valType)
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, DictEntry{Key: key, Val: val})
		} else {
			el, err := d.decodeOne(elemType)
			if err != nil {
				return Value{}, err
			}
			elements = append(elements, el)
		}
	}
	if d.offset-start != int(l) {
		return Value{}, fmt.Errorf("dbus: %w: array content did not align to declared length", ErrCorruptedMessage)
	}

	if isDict {
		return NewDictionary(Signature("a"+elemType), entries), nil
	}
	return NewArray(Signature("a"+elemType), elements), nil
}

func (d *decoder) decodeStruct(inner string) (Value, error) {
	if err := d.align(8); err != nil {
		return Value{}, err
	}
	var fields []Value
	remaining := inner
	for remaining != "" {
		one, rest, err := splitOneType(remaining)
		if err != nil {
			return Value{}, err
		}
		v, err := d.decodeOne(one)
		if err != nil {
			return Value{}, err
		}
		fields = append(fields, v)
		remaining = rest
	}
	return NewStruct(Signature("("+inner+")"), fields), nil
}

func (d *decoder) decodeVariant() (Value, error) {
	sig, err := d.readSignatureString()
	if err != nil {
		return Value{}, err
	}
	one, rest, err := splitOneType(sig)
	if err != nil {
		return Value{}, err
	}
	if rest != "" {
		return Value{}, fmt.Errorf("dbus: %w: variant signature %q is not a single complete type", ErrBadSignature, sig)
	}
	inner, err := d.decodeOne(one)
	if err != nil {
		return Value{}, err
	}
	return NewVariant(Signature(sig), inner), nil
}

// DemarshalValue decodes exactly one complete type typeSig from buf,
// starting at absolute offset startOffset, and returns the decoded value
// along with the offset immediately past it. Multi-byte integers are read
// little-endian; see DemarshalValueOrder for big-endian messages.
func DemarshalValue(buf []byte, startOffset int, typeSig string) (Value, int, error) {
	return DemarshalValueOrder(buf, startOffset, typeSig, binary.LittleEndian)
}

// DemarshalValueOrder is DemarshalValue with an explicit byte order, for
// decoding messages received with the 'B' (big-endian) endian flag --
// spec.md §3 requires reads to accept both, even though this library's
// writes are always little-endian.
func DemarshalValueOrder(buf []byte, startOffset int, typeSig string, order binary.ByteOrder) (Value, int, error) {
	one, rest, err := splitOneType(typeSig)
	if err != nil {
		return Value{}, startOffset, err
	}
	if rest != "" {
		return Value{}, startOffset, fmt.Errorf("dbus: %w: %q is not a single complete type", ErrBadSignature, typeSig)
	}
	d := newDecoderOrder(buf, startOffset, order)
	v, err := d.decodeOne(one)
	if err != nil {
		return Value{}, startOffset, err
	}
	return v, d.offset, nil
}

// DemarshalSequence decodes a concatenation of zero or more complete types
// described by sig (e.g. a message body signature like "is"), returning
// the decoded values in order. Multi-byte integers are read little-endian;
// see DemarshalSequenceOrder for big-endian messages.
func DemarshalSequence(buf []byte, startOffset int, sig string) ([]Value, int, error) {
	return DemarshalSequenceOrder(buf, startOffset, sig, binary.LittleEndian)
}

// DemarshalSequenceOrder is DemarshalSequence with an explicit byte order.
func DemarshalSequenceOrder(buf []byte, startOffset int, sig string, order binary.ByteOrder) ([]Value, int, error) {
	d := newDecoderOrder(buf, startOffset, order)
	var values []Value
	remaining := sig
	for remaining != "" {
		one, rest, err := splitOneType(remaining)
		if err != nil {
			return nil, d.offset, err
		}
		v, err := d.decodeOne(one)
		if err != nil {
			return nil, d.offset, err
		}
		values = append(values, v)
		remaining = rest
	}
	return values, d.offset, nil
}
