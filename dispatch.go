package dbus

import (
	"github.com/sirupsen/logrus"
)

// Sender is the subset of *Connection the dispatcher needs to synthesize
// and send reply messages.
type Sender interface {
	Send(message *Message) (uint32, error)
}

// MethodRetValKind distinguishes the three outcomes a method handler may
// produce, per spec.md §4.5 (originally Rust's MethodRetVal enum).
type MethodRetValKind int

const (
	RetNoReply MethodRetValKind = iota
	RetEmptyReply
	RetReply
)

// MethodRetVal is a method handler's result.
type MethodRetVal struct {
	Kind   MethodRetValKind
	Values []Value
}

// NoReply means the handler sends nothing back, even if a reply was
// expected.
func NoReply() MethodRetVal { return MethodRetVal{Kind: RetNoReply} }

// EmptyReply synthesizes a MethodReturn with no body.
func EmptyReply() MethodRetVal { return MethodRetVal{Kind: RetEmptyReply} }

// Reply synthesizes a MethodReturn whose body is values, in order.
func Reply(values ...Value) MethodRetVal {
	return MethodRetVal{Kind: RetReply, Values: values}
}

// MethodHandler handles one matched method call.
type MethodHandler func(sender string, call *Message) (MethodRetVal, error)

// SignalHandler handles one matched signal.
type SignalHandler func(sender string, signal *Message) error

// matchKey is the (path, interface, member) dispatch key of spec.md §4.5.
type matchKey struct {
	Path      ObjectPath
	Interface string
	Member    string
}

// Outcome is the three-way result of HandleMessage, per spec.md §4.5:
// handled successfully, locally failed with a reason, or unmatched (so the
// original message can be chained to another dispatcher).
type Outcome int

const (
	OutcomeHandled Outcome = iota
	OutcomeFailed
	OutcomeUnmatched
)

// HandlerResult is the return value of HandleMessage.
type HandlerResult struct {
	Outcome Outcome
	Reason  string   // set when Outcome == OutcomeFailed
	Message *Message // set when Outcome == OutcomeUnmatched
}

// MessageHandler is implemented by anything HandleMessage-able: a
// Dispatcher, a NoMatchHandler, or a chain of either, per spec.md §4.5 and
// original_source's HandlerChain trait.
type MessageHandler interface {
	HandleMessage(sender string, message *Message) HandlerResult
}

// Dispatcher routes incoming messages to registered method/signal
// handlers keyed by (path, interface, member), per spec.md §4.5. Grounded
// directly on original_source/src/dispatch/mod.rs's MessageDispatcher.
type Dispatcher struct {
	sender         Sender
	methodHandlers map[matchKey]MethodHandler
	signalHandlers map[matchKey]SignalHandler
	log            *logrus.Logger
}

// NewDispatcher creates a Dispatcher that sends synthesized replies
// through sender.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{
		sender:         sender,
		methodHandlers: make(map[matchKey]MethodHandler),
		signalHandlers: make(map[matchKey]SignalHandler),
		log:            logrus.StandardLogger(),
	}
}

// HandleMethod registers a method handler for (path, interface, member).
func (d *Dispatcher) HandleMethod(path ObjectPath, iface, member string, h MethodHandler) {
	d.methodHandlers[matchKey{path, iface, member}] = h
}

// HandleSignal registers a signal handler for (path, interface, member).
func (d *Dispatcher) HandleSignal(path ObjectPath, iface, member string, h SignalHandler) {
	d.signalHandlers[matchKey{path, iface, member}] = h
}

const (
	errInconsistentMessage = "org.freedesktop.DBus.Error.InconsistentMessage"
	errInvalidSignature    = "org.freedesktop.DBus.Error.InvalidSignature"
	errUnknownObject       = "org.freedesktop.DBus.Error.UnknownObject"
)

func (d *Dispatcher) sendErrorReply(msg *Message, name string) {
	if d.sender == nil {
		return
	}
	if _, err := d.sender.Send(NewError(name, msg.Serial)); err != nil {
		d.log.WithError(err).Warn("dbus: failed to send dispatcher error reply")
	}
}

// HandleMessage decodes message into one of MethodCall/MethodReturn/
// Signal/Error and dispatches it, per spec.md §4.5.
func (d *Dispatcher) HandleMessage(sender string, message *Message) HandlerResult {
	switch message.Type {
	case TypeSignal:
		return d.handleSignal(sender, message)
	case TypeMethodCall:
		return d.handleMethodCall(sender, message)
	case TypeMethodReturn, TypeError:
		// Not dispatched by this layer, per spec.md §4.5.
		return HandlerResult{Outcome: OutcomeUnmatched, Message: message}
	default:
		d.sendErrorReply(message, errInconsistentMessage)
		return HandlerResult{Outcome: OutcomeFailed, Reason: "unknown message type"}
	}
}

func (d *Dispatcher) handleSignal(sender string, message *Message) HandlerResult {
	path, okPath := message.HeaderString(FieldPath)
	iface, okIface := message.HeaderString(FieldInterface)
	member, okMember := message.HeaderString(FieldMember)
	if !okPath || !okIface || !okMember {
		d.sendErrorReply(message, errInconsistentMessage)
		return HandlerResult{Outcome: OutcomeFailed, Reason: "signal missing required header field"}
	}

	h, found := d.signalHandlers[matchKey{ObjectPath(path), iface, member}]
	if !found {
		return HandlerResult{Outcome: OutcomeUnmatched, Message: message}
	}
	if err := h(sender, message); err != nil {
		return HandlerResult{Outcome: OutcomeFailed, Reason: err.Error()}
	}
	return HandlerResult{Outcome: OutcomeHandled}
}

func (d *Dispatcher) handleMethodCall(sender string, message *Message) HandlerResult {
	path, okPath := message.HeaderString(FieldPath)
	member, okMember := message.HeaderString(FieldMember)
	if !okPath || !okMember {
		d.sendErrorReply(message, errInconsistentMessage)
		return HandlerResult{Outcome: OutcomeFailed, Reason: "method call missing required header field"}
	}
	iface, _ := message.HeaderString(FieldInterface)

	h, found := d.methodHandlers[matchKey{ObjectPath(path), iface, member}]
	if !found {
		return HandlerResult{Outcome: OutcomeUnmatched, Message: message}
	}

	ret, err := h(sender, message)
	if err != nil {
		return HandlerResult{Outcome: OutcomeFailed, Reason: err.Error()}
	}

	noReplyExpected := message.Flags&FlagNoReplyExpected != 0
	switch ret.Kind {
	case RetNoReply:
		// send nothing
	case RetEmptyReply:
		if !noReplyExpected {
			reply := NewMethodReturn(message.Serial)
			if _, err := d.sender.Send(reply); err != nil {
				d.log.WithError(err).Warn("dbus: failed to send method return")
			}
		}
	case RetReply:
		if !noReplyExpected {
			reply := NewMethodReturn(message.Serial)
			for _, v := range ret.Values {
				if err := reply.AddArg(v); err != nil {
					d.sendErrorReply(message, errInvalidSignature)
					return HandlerResult{Outcome: OutcomeFailed, Reason: err.Error()}
				}
			}
			if _, err := d.sender.Send(reply); err != nil {
				d.log.WithError(err).Warn("dbus: failed to send method return")
			}
		}
	}
	return HandlerResult{Outcome: OutcomeHandled}
}

// NoMatchHandler is a terminal MessageHandler that replies to any message
// with org.freedesktop.DBus.Error.UnknownObject, per spec.md §4.5.
type NoMatchHandler struct {
	sender Sender
}

func NewNoMatchHandler(sender Sender) *NoMatchHandler {
	return &NoMatchHandler{sender: sender}
}

func (n *NoMatchHandler) HandleMessage(sender string, message *Message) HandlerResult {
	if _, err := n.sender.Send(NewError(errUnknownObject, message.Serial)); err != nil {
		return HandlerResult{Outcome: OutcomeFailed, Reason: err.Error()}
	}
	return HandlerResult{Outcome: OutcomeHandled}
}

// chainedHandler falls through to next only when first reports
// OutcomeUnmatched, per original_source's HandlerChain/.or_else().
type chainedHandler struct {
	first MessageHandler
	next  MessageHandler
}

// Chain composes two handlers: next only runs if first is unmatched.
func Chain(first, next MessageHandler) MessageHandler {
	return &chainedHandler{first: first, next: next}
}

func (c *chainedHandler) HandleMessage(sender string, message *Message) HandlerResult {
	res := c.first.HandleMessage(sender, message)
	if res.Outcome == OutcomeUnmatched {
		return c.next.HandleMessage(sender, message)
	}
	return res
}
