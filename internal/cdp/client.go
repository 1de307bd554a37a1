package cdp

import "context"

// Event is a CDP notification delivered to an event subscriber: the method
// name plus its raw params, left for the caller to unmarshal into the
// concrete event type it expects (PausedEvent, ScriptParsedEvent, ...).
type Event struct {
	Method string
	Params []byte
}

// RpcClient is the collaborator interface the adapter calls for every
// southbound CDP operation. Spec §1 marks the physical transport itself —
// websocket framing, reconnection — as an external, out-of-scope
// collaborator; this interface is the seam. internal/cdp also ships one
// concrete implementation, WebSocketRpcClient, grounded on
// spencerandtheteagues-apex-build-platform's websocket hub/client and
// daabr-chrome-vision's session message pump, but callers of
// internal/adapter may substitute a fake for testing (the adapter's own
// tests do exactly that).
type RpcClient interface {
	// Call sends a CDP command (e.g. "Debugger.setBreakpoint") with the
	// given JSON params and unmarshals the result into out (which must be
	// a pointer, or nil if the command has no meaningful result).
	Call(ctx context.Context, method string, params any, out any) error

	// Subscribe registers ch to receive every Event whose Method equals
	// method. The returned func unregisters ch. Multiple subscribers per
	// method are permitted (spec §3: "zero or more subscribers per event
	// type", grounded on daabr-chrome-vision's eventSubscribers map).
	Subscribe(method string, ch chan<- Event) (unsubscribe func())

	// OnClose registers fn to run exactly once, with the error that killed
	// the transport (nil for a caller-initiated Close), the moment the
	// connection dies — spec §4.1's "Transport Inspector.detached, close,
	// error → terminateSession(reason)" row. Only the most recently
	// registered fn fires; the Adapter registers one when it handles attach.
	OnClose(fn func(err error))

	// Close tears down the underlying transport. Idempotent.
	Close() error
}
