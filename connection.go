package dbus

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrorKind classifies a Connection-level failure, per spec.md §4.4/§7.
type ErrorKind int

const (
	KindDisconnected ErrorKind = iota
	KindIOError
	KindDemarshalError
	KindAddressError
	KindBadData
	KindAuthFailed
	KindNoEnvironment
)

func (k ErrorKind) String() string {
	switch k {
	case KindDisconnected:
		return "Disconnected"
	case KindIOError:
		return "IOError"
	case KindDemarshalError:
		return "DemarshalError"
	case KindAddressError:
		return "AddressError"
	case KindBadData:
		return "BadData"
	case KindAuthFailed:
		return "AuthFailed"
	case KindNoEnvironment:
		return "NoEnvironment"
	default:
		return "UnknownError"
	}
}

// Error is the Connection-level error type from spec.md §4.4/§7. Disconnected
// is produced whenever a read returns fewer bytes than requested -- a
// terminal state; the library does not auto-reconnect.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dbus: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("dbus: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

const defaultSystemBusAddress = "unix:path=/var/run/dbus/system_bus_socket"

// Connection owns one bidirectional stream socket, the outgoing serial
// counter, and the FIFO receive queue, per spec.md §3/§4.4/§5. All methods
// are synchronous and block the caller; a mutex guards the shared bundle
// so a single Connection can be used from multiple goroutines without
// interleaving wire bytes, without this package itself spawning any
// goroutines (spec.md §5 hard requirement -- see SPEC_FULL.md §5).
type Connection struct {
	mu         sync.Mutex
	conn       net.Conn
	nextSerial uint32
	queue      []*Message
	log        *logrus.Logger
}

// Connect parses address and performs the full handshake sequence of
// spec.md §4.4: NUL byte, SASL auth (EXTERNAL, then DBUS_COOKIE_SHA1, then
// ANONYMOUS), BEGIN, then a Hello call whose reply is discarded.
func Connect(address string) (*Connection, error) {
	conn, err := Dial(address)
	if err != nil {
		if addrErr, ok := err.(*AddressError); ok {
			return nil, newError(KindAddressError, addrErr)
		}
		return nil, newError(KindIOError, err)
	}

	c := &Connection{conn: conn, nextSerial: 1, log: logrus.StandardLogger()}
	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// ConnectSystem connects to the system bus, honoring
// DBUS_SYSTEM_BUS_ADDRESS with the standard default, per spec.md §4.4/§6.
func ConnectSystem() (*Connection, error) {
	addr := os.Getenv("DBUS_SYSTEM_BUS_ADDRESS")
	if addr == "" {
		addr = defaultSystemBusAddress
	}
	return Connect(addr)
}

// ConnectSession connects to the session bus using DBUS_SESSION_BUS_ADDRESS,
// failing with NoEnvironment if it is unset, per spec.md §4.4/§6.
func ConnectSession() (*Connection, error) {
	addr, ok := os.LookupEnv("DBUS_SESSION_BUS_ADDRESS")
	if !ok {
		return nil, newError(KindNoEnvironment, fmt.Errorf("DBUS_SESSION_BUS_ADDRESS not set"))
	}
	return Connect(addr)
}

func (c *Connection) handshake() error {
	if _, err := c.conn.Write([]byte{0}); err != nil {
		return newError(KindIOError, err)
	}
	if err := authenticate(c.conn); err != nil {
		return newError(KindAuthFailed, err)
	}
	c.log.Debug("dbus: SASL handshake complete")

	hello := NewMethodCall("org.freedesktop.DBus", "/org/freedesktop/DBus", "org.freedesktop.DBus", "Hello")
	if _, err := c.CallSync(hello); err != nil {
		return err
	}
	return nil
}

// Send assigns the next serial number, encodes, and writes message, per
// spec.md §4.4. Returns the assigned serial.
func (c *Connection) Send(message *Message) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(message)
}

func (c *Connection) sendLocked(message *Message) (uint32, error) {
	serial := c.nextSerial
	c.nextSerial++
	if c.nextSerial == 0 {
		// Wraps silently; no reuse check, per spec.md §9.
		c.nextSerial = 1
	}
	message.Serial = serial

	data, err := message.MarshalBinary()
	if err != nil {
		return 0, newError(KindBadData, err)
	}
	if _, err := c.conn.Write(data); err != nil {
		return 0, newError(KindIOError, err)
	}
	return serial, nil
}

func readExactly(r io.Reader, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadMessage returns the next message: the front of the receive queue if
// non-empty, else the next message parsed from the socket, per
// spec.md §4.4.
func (c *Connection) ReadMessage() (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readMessageLocked()
}

func (c *Connection) readMessageLocked() (*Message, error) {
	if len(c.queue) > 0 {
		m := c.queue[0]
		c.queue = c.queue[1:]
		return m, nil
	}
	return c.readFromSocketLocked()
}

func (c *Connection) readFromSocketLocked() (*Message, error) {
	fixed, err := readExactly(c.conn, 12)
	if err != nil {
		return nil, newError(KindDisconnected, err)
	}
	// The endian flag is the message's own first byte; every multi-byte
	// field that follows (in this message only) must be read with that
	// order, per spec.md §3 ("reads accept both; writes are
	// little-endian").
	order := binary.ByteOrder(binary.LittleEndian)
	if len(fixed) > 0 && fixed[0] == 'B' {
		order = binary.BigEndian
	}

	fixedVal, _, err := DemarshalValueOrder(fixed, 0, "(yyyyuu)", order)
	if err != nil {
		return nil, newError(KindDemarshalError, err)
	}
	f := fixedVal.Fields
	endian, _ := f[0].Byte()
	msgType, _ := f[1].Byte()
	flags, _ := f[2].Byte()
	version, _ := f[3].Byte()
	bodyLen, _ := f[4].Uint32()
	serial, _ := f[5].Uint32()

	arrLenBytes, err := readExactly(c.conn, 4)
	if err != nil {
		return nil, newError(KindDisconnected, err)
	}
	arrLenVal, _, err := DemarshalValueOrder(arrLenBytes, 12, "u", order)
	if err != nil {
		return nil, newError(KindDemarshalError, err)
	}
	arrLen, _ := arrLenVal.Uint32()

	arrContent, err := readExactly(c.conn, int(arrLen))
	if err != nil {
		return nil, newError(KindDisconnected, err)
	}
	full := append(append([]byte{}, arrLenBytes...), arrContent...)

	headerFieldsVal, afterOffset, err := DemarshalValueOrder(full, 12, "a(yv)", order)
	if err != nil {
		return nil, newError(KindDemarshalError, err)
	}
	headerFields, err := headerFieldsFromValue(headerFieldsVal)
	if err != nil {
		return nil, newError(KindDemarshalError, err)
	}

	pad := (8 - afterOffset%8) % 8
	if pad > 0 {
		if _, err := readExactly(c.conn, pad); err != nil {
			return nil, newError(KindDisconnected, err)
		}
	}

	var body []byte
	if bodyLen > 0 {
		body, err = readExactly(c.conn, int(bodyLen))
		if err != nil {
			return nil, newError(KindDisconnected, err)
		}
	}

	return &Message{
		Endianness: endian,
		Type:       MessageType(msgType),
		Flags:      flags,
		Version:    version,
		Serial:     serial,
		Headers:    headerFields,
		body:       body,
	}, nil
}

// CallSync sends message and blocks until the matching reply arrives, per
// spec.md §4.4. Calling it on a non-MethodCall message, or one with
// NO_REPLY_EXPECTED set, is a programmer error and panics rather than
// returning an Error, per spec.md §7.
func (c *Connection) CallSync(message *Message) ([]Value, error) {
	if message.Type != TypeMethodCall {
		panic("dbus: CallSync requires a MethodCall message")
	}
	if message.Flags&FlagNoReplyExpected != 0 {
		panic("dbus: CallSync requires NO_REPLY_EXPECTED to be clear")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	serial, err := c.sendLocked(message)
	if err != nil {
		return nil, err
	}

	var pending []*Message
	for {
		m, err := c.readMessageLocked()
		if err != nil {
			return nil, err
		}
		if replySerial, ok := m.HeaderUint32(FieldReplySerial); ok && replySerial == serial {
			// Preserve original arrival order: the unrelated
			// messages collected while waiting go back to the
			// front of the queue, per spec.md §5/§9.
			c.queue = append(pending, c.queue...)
			return m.GetBody()
		}
		pending = append(pending, m)
	}
}

// SetLogger overrides the connection's logger (default
// logrus.StandardLogger()), per SPEC_FULL.md §7.
func (c *Connection) SetLogger(log *logrus.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = log
}
