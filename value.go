package dbus

import (
	"fmt"
)

// Signature is a D-Bus type signature string, e.g. "a{sv}".
type Signature string

// ObjectPath is a D-Bus object path, e.g. "/org/freedesktop/DBus".
type ObjectPath string

// Kind identifies which variant of Value is populated.
type Kind int

const (
	KindByte Kind = iota
	KindBoolean
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindDouble
	KindString
	KindObjectPath
	KindSignature
	KindArray
	KindStruct
	KindDictionary
	KindVariant
)

func (k Kind) String() string {
	switch k {
	case KindByte:
		return "byte"
	case KindBoolean:
		return "boolean"
	case KindInt16:
		return "int16"
	case KindUint16:
		return "uint16"
	case KindInt32:
		return "int32"
	case KindUint32:
		return "uint32"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindObjectPath:
		return "object_path"
	case KindSignature:
		return "signature"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindDictionary:
		return "dictionary"
	case KindVariant:
		return "variant"
	default:
		return "unknown"
	}
}

// DictEntry is one key/value pair of a Dictionary value. Keys are always a
// basic (non-container) Value.
type DictEntry struct {
	Key Value
	Val Value
}

// Value is the explicit tagged-union D-Bus value model required by the core
// library (see SPEC_FULL.md §3). Only the field(s) relevant to Kind are
// populated; Sig carries the full container signature for Array, Struct,
// Dictionary and Variant.
type Value struct {
	Kind Kind

	b    byte
	boln bool
	i16  int16
	u16  uint16
	i32  int32
	u32  uint32
	i64  int64
	u64  uint64
	dbl  float64
	str  string

	Sig      Signature
	Elements []Value
	Fields   []Value
	Entries  []DictEntry
	Inner    *Value
}

// Encodable lets a user type provide its own Value for add_arg, per
// SPEC_FULL.md §6.
type Encodable interface {
	ToValue() Value
}

func NewByte(v byte) Value      { return Value{Kind: KindByte, b: v} }
func NewBoolean(v bool) Value   { return Value{Kind: KindBoolean, boln: v} }
func NewInt16(v int16) Value    { return Value{Kind: KindInt16, i16: v} }
func NewUint16(v uint16) Value  { return Value{Kind: KindUint16, u16: v} }
func NewInt32(v int32) Value    { return Value{Kind: KindInt32, i32: v} }
func NewUint32(v uint32) Value  { return Value{Kind: KindUint32, u32: v} }
func NewInt64(v int64) Value    { return Value{Kind: KindInt64, i64: v} }
func NewUint64(v uint64) Value  { return Value{Kind: KindUint64, u64: v} }
func NewDouble(v float64) Value { return Value{Kind: KindDouble, dbl: v} }
func NewString(v string) Value  { return Value{Kind: KindString, str: v} }

func NewObjectPath(v ObjectPath) Value {
	return Value{Kind: KindObjectPath, str: string(v)}
}

func NewSignature(v Signature) Value {
	return Value{Kind: KindSignature, str: string(v)}
}

func NewArray(sig Signature, elems []Value) Value {
	return Value{Kind: KindArray, Sig: sig, Elements: elems}
}

func NewStruct(sig Signature, fields []Value) Value {
	return Value{Kind: KindStruct, Sig: sig, Fields: fields}
}

func NewDictionary(sig Signature, entries []DictEntry) Value {
	return Value{Kind: KindDictionary, Sig: sig, Entries: entries}
}

func NewVariant(sig Signature, inner Value) Value {
	return Value{Kind: KindVariant, Sig: sig, Inner: &inner}
}

// Typed accessors coerce a Value into the requested native type (spec.md
// §6's "decode helper"). Each returns an error if Kind doesn't match.

func (v Value) Byte() (byte, error) {
	if v.Kind != KindByte {
		return 0, fmt.Errorf("dbus: value is %s, not byte", v.Kind)
	}
	return v.b, nil
}

func (v Value) Boolean() (bool, error) {
	if v.Kind != KindBoolean {
		return false, fmt.Errorf("dbus: value is %s, not boolean", v.Kind)
	}
	return v.boln, nil
}

func (v Value) Int16() (int16, error) {
	if v.Kind != KindInt16 {
		return 0, fmt.Errorf("dbus: value is %s, not int16", v.Kind)
	}
	return v.i16, nil
}

func (v Value) Uint16() (uint16, error) {
	if v.Kind != KindUint16 {
		return 0, fmt.Errorf("dbus: value is %s, not uint16", v.Kind)
	}
	return v.u16, nil
}

func (v Value) Int32() (int32, error) {
	if v.Kind != KindInt32 {
		return 0, fmt.Errorf("dbus: value is %s, not int32", v.Kind)
	}
	return v.i32, nil
}

func (v Value) Uint32() (uint32, error) {
	if v.Kind != KindUint32 {
		return 0, fmt.Errorf("dbus: value is %s, not uint32", v.Kind)
	}
	return v.u32, nil
}

func (v Value) Int64() (int64, error) {
	if v.Kind != KindInt64 {
		return 0, fmt.Errorf("dbus: value is %s, not int64", v.Kind)
	}
	return v.i64, nil
}

func (v Value) Uint64() (uint64, error) {
	if v.Kind != KindUint64 {
		return 0, fmt.Errorf("dbus: value is %s, not uint64", v.Kind)
	}
	return v.u64, nil
}

func (v Value) Double() (float64, error) {
	if v.Kind != KindDouble {
		return 0, fmt.Errorf("dbus: value is %s, not double", v.Kind)
	}
	return v.dbl, nil
}

func (v Value) String() (string, error) {
	switch v.Kind {
	case KindString, KindObjectPath, KindSignature:
		return v.str, nil
	default:
		return "", fmt.Errorf("dbus: value is %s, not string-like", v.Kind)
	}
}

func (v Value) ObjectPath() (ObjectPath, error) {
	if v.Kind != KindObjectPath {
		return "", fmt.Errorf("dbus: value is %s, not object_path", v.Kind)
	}
	return ObjectPath(v.str), nil
}

func (v Value) Signature() (Signature, error) {
	if v.Kind != KindSignature {
		return "", fmt.Errorf("dbus: value is %s, not signature", v.Kind)
	}
	return Signature(v.str), nil
}

// Alignment returns the alignment in bytes required for a type whose
// signature begins with typeChar, per SPEC_FULL.md §3's alignment table.
func Alignment(typeChar byte) int {
	switch typeChar {
	case 'y', 'g', 'b':
		return 1
	case 'n', 'q':
		return 2
	case 'i', 'u', 's', 'o':
		return 4
	case 'x', 't', 'd', '(', '{':
		return 8
	case 'a':
		return 4
	case 'v':
		return 1
	default:
		return 1
	}
}

// IsBasicType reports whether c is one of the basic (non-container) type
// characters, valid as a dictionary key type per spec.md §3.
func IsBasicType(c byte) bool {
	switch c {
	case 'y', 'b', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g':
		return true
	default:
		return false
	}
}
