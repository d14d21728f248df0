package cmd

import (
	"fmt"
	"strings"

	dbus "github.com/z3ntu/go-dbus"
)

// describeValue renders v as a single human-readable line, recursing into
// containers. It is best-effort formatting for the CLI, not a codec.
func describeValue(v dbus.Value) string {
	switch v.Kind {
	case dbus.KindByte:
		b, _ := v.Byte()
		return fmt.Sprintf("%d", b)
	case dbus.KindBoolean:
		b, _ := v.Boolean()
		return fmt.Sprintf("%t", b)
	case dbus.KindInt16:
		n, _ := v.Int16()
		return fmt.Sprintf("%d", n)
	case dbus.KindUint16:
		n, _ := v.Uint16()
		return fmt.Sprintf("%d", n)
	case dbus.KindInt32:
		n, _ := v.Int32()
		return fmt.Sprintf("%d", n)
	case dbus.KindUint32:
		n, _ := v.Uint32()
		return fmt.Sprintf("%d", n)
	case dbus.KindInt64:
		n, _ := v.Int64()
		return fmt.Sprintf("%d", n)
	case dbus.KindUint64:
		n, _ := v.Uint64()
		return fmt.Sprintf("%d", n)
	case dbus.KindDouble:
		d, _ := v.Double()
		return fmt.Sprintf("%g", d)
	case dbus.KindString, dbus.KindObjectPath, dbus.KindSignature:
		s, _ := v.String()
		return s
	case dbus.KindArray:
		parts := make([]string, len(v.Elements))
		for i, e := range v.Elements {
			parts[i] = describeValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case dbus.KindStruct:
		parts := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			parts[i] = describeValue(f)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case dbus.KindDictionary:
		parts := make([]string, len(v.Entries))
		for i, e := range v.Entries {
			parts[i] = describeValue(e.Key) + ": " + describeValue(e.Val)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case dbus.KindVariant:
		if v.Inner == nil {
			return "<nil variant>"
		}
		return describeValue(*v.Inner)
	default:
		return "<unknown>"
	}
}
