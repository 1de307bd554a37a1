package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-dap"

	"github.com/dapbridge/dap-cdp-bridge/internal/cdp"
)

// fakeRPC is a minimal cdp.RpcClient fake: onCall intercepts Call, emit
// fans a synthetic event out to every current Subscribe-r of a method.
type fakeRPC struct {
	mu      sync.Mutex
	onCall  func(method string, params any, out any) error
	subs    map[string][]chan<- cdp.Event
	onClose func(error)
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{subs: make(map[string][]chan<- cdp.Event)}
}

func (f *fakeRPC) Call(ctx context.Context, method string, params, out any) error {
	if f.onCall != nil {
		return f.onCall(method, params, out)
	}
	return nil
}

func (f *fakeRPC) Subscribe(method string, ch chan<- cdp.Event) func() {
	f.mu.Lock()
	f.subs[method] = append(f.subs[method], ch)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeRPC) OnClose(fn func(error)) {
	f.mu.Lock()
	f.onClose = fn
	f.mu.Unlock()
}

func (f *fakeRPC) Close() error { return nil }

// dropTransport simulates the CDP websocket dying underneath the adapter.
func (f *fakeRPC) dropTransport(cause error) {
	f.mu.Lock()
	fn := f.onClose
	f.mu.Unlock()
	if fn != nil {
		fn(cause)
	}
}

func (f *fakeRPC) emit(method string, params any) {
	raw, _ := json.Marshal(params)
	f.mu.Lock()
	chans := append([]chan<- cdp.Event(nil), f.subs[method]...)
	f.mu.Unlock()
	for _, ch := range chans {
		ch <- cdp.Event{Method: method, Params: raw}
	}
}

// fakeSink records every DAP event the Adapter sends.
type fakeSink struct {
	mu     sync.Mutex
	events []dap.EventMessage
}

func (f *fakeSink) SendEvent(e dap.EventMessage) error {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
	return nil
}

func (f *fakeSink) wait(t *testing.T, pred func(dap.EventMessage) bool) dap.EventMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, e := range f.events {
			if pred(e) {
				f.mu.Unlock()
				return e
			}
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for expected event")
	return nil
}

func TestInitializeCapabilitiesShape(t *testing.T) {
	a := New(newFakeRPC(), &fakeSink{})
	caps, err := a.Initialize(dap.InitializeRequestArguments{})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !caps.SupportsConfigurationDoneRequest || !caps.SupportsSetVariable ||
		!caps.SupportsConditionalBreakpoints || !caps.SupportsCompletionsRequest {
		t.Fatalf("capabilities missing expected flags: %+v", caps)
	}
	if len(caps.ExceptionBreakpointFilters) != 2 {
		t.Fatalf("got %d exception filters, want 2", len(caps.ExceptionBreakpointFilters))
	}
}

func TestInitializeRejectsNonPathFormat(t *testing.T) {
	a := New(newFakeRPC(), &fakeSink{})
	_, err := a.Initialize(dap.InitializeRequestArguments{PathFormat: "uri"})
	de, ok := err.(*DomainError)
	if !ok || de.Code != CodePathFormat {
		t.Fatalf("got %v, want DomainError{pathFormat}", err)
	}
}

func TestAttachRequiresPort(t *testing.T) {
	a := New(newFakeRPC(), &fakeSink{})
	err := a.Attach(map[string]interface{}{})
	de, ok := err.(*DomainError)
	if !ok || de.Code != CodeAttachPortRequired {
		t.Fatalf("got %v, want DomainError{attach.portRequired}", err)
	}
}

func TestThreadsIsAlwaysTheSingletonThread(t *testing.T) {
	a := New(newFakeRPC(), &fakeSink{})
	body, err := a.Threads()
	if err != nil {
		t.Fatalf("Threads: %v", err)
	}
	if len(body.Threads) != 1 || body.Threads[0].Id != 1 {
		t.Fatalf("got %+v, want exactly one thread with id 1", body.Threads)
	}
}

func attachedAdapter(t *testing.T) (*Adapter, *fakeRPC, *fakeSink) {
	t.Helper()
	rpc := newFakeRPC()
	sink := &fakeSink{}
	a := New(rpc, sink)
	if err := a.Attach(map[string]interface{}{"port": float64(9222)}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return a, rpc, sink
}

func TestSetBreakpointsUnverifiedThenResolvedAfterScriptParsed(t *testing.T) {
	a, rpc, sink := attachedAdapter(t)

	resp, err := a.SetBreakpoints(dap.SetBreakpointsArguments{
		Source:      dap.Source{Path: "/foo.js"},
		Breakpoints: []dap.SourceBreakpoint{{Line: 10}},
	})
	if err != nil {
		t.Fatalf("SetBreakpoints: %v", err)
	}
	if len(resp.Breakpoints) != 1 || resp.Breakpoints[0].Verified {
		t.Fatalf("got %+v, want one unverified breakpoint", resp.Breakpoints)
	}

	rpc.emit("Debugger.scriptParsed", cdp.ScriptParsedEvent{ScriptID: "1", URL: "file:///foo.js"})

	sink.wait(t, func(e dap.EventMessage) bool {
		be, ok := e.(*dap.BreakpointEvent)
		return ok && be.Body.Reason == "new"
	})
}

func TestStoppedOnHitBreakpoint(t *testing.T) {
	a, rpc, sink := attachedAdapter(t)

	rpc.emit("Debugger.paused", cdp.PausedEvent{
		CallFrames:     []cdp.CallFrame{{CallFrameID: "cf1"}},
		HitBreakpoints: []string{"bp1"},
	})

	evt := sink.wait(t, func(e dap.EventMessage) bool {
		_, ok := e.(*dap.StoppedEvent)
		return ok
	})
	se := evt.(*dap.StoppedEvent)
	if se.Body.Reason != "breakpoint" || se.Body.ThreadId != threadID {
		t.Fatalf("got %+v, want reason=breakpoint thread=%d", se.Body, threadID)
	}
}

func TestStoppedOnExceptionExposesExceptionScope(t *testing.T) {
	a, rpc, sink := attachedAdapter(t)

	exc := cdp.RemoteObject{Type: cdp.TypeObject, ClassName: "Error", Description: "boom"}
	excRaw, _ := json.Marshal(exc)

	rpc.emit("Debugger.paused", cdp.PausedEvent{
		Reason:     "exception",
		CallFrames: []cdp.CallFrame{{CallFrameID: "cf1"}},
		Data:       excRaw,
	})

	sink.wait(t, func(e dap.EventMessage) bool {
		se, ok := e.(*dap.StoppedEvent)
		return ok && se.Body.Reason == "exception"
	})

	body, err := a.StackTrace(dap.StackTraceArguments{})
	if err != nil {
		t.Fatalf("StackTrace: %v", err)
	}
	if len(body.StackFrames) != 1 {
		t.Fatalf("got %d frames, want 1", len(body.StackFrames))
	}

	scopesBody, err := a.Scopes(dap.ScopesArguments{FrameId: body.StackFrames[0].Id})
	if err != nil {
		t.Fatalf("Scopes: %v", err)
	}
	if len(scopesBody.Scopes) == 0 || scopesBody.Scopes[0].Name != "Exception" {
		t.Fatalf("got %+v, want leading Exception scope", scopesBody.Scopes)
	}
}

func TestStackTraceGivesMalformedCallFrameHandleZero(t *testing.T) {
	a, rpc, _ := attachedAdapter(t)

	rpc.emit("Debugger.paused", cdp.PausedEvent{
		CallFrames: []cdp.CallFrame{{}},
	})
	time.Sleep(20 * time.Millisecond)

	body, err := a.StackTrace(dap.StackTraceArguments{})
	if err != nil {
		t.Fatalf("StackTrace: %v", err)
	}
	if len(body.StackFrames) != 1 || body.StackFrames[0].Id != 0 {
		t.Fatalf("got %+v, want one frame with id 0", body.StackFrames)
	}

	_, err = a.Scopes(dap.ScopesArguments{FrameId: 0})
	if err == nil {
		t.Fatal("want a lookup failure for the malformed frame's handle")
	}
}

func TestDroppedTransportEmitsTerminated(t *testing.T) {
	_, rpc, sink := attachedAdapter(t)

	rpc.dropTransport(errors.New("read tcp: connection reset"))

	sink.wait(t, func(e dap.EventMessage) bool {
		_, ok := e.(*dap.TerminatedEvent)
		return ok
	})

	// A second drop (e.g. the explicit rpc.Close() terminateSession issues)
	// must not emit a second Terminated.
	rpc.dropTransport(nil)
	time.Sleep(10 * time.Millisecond)

	sink.mu.Lock()
	count := 0
	for _, e := range sink.events {
		if _, ok := e.(*dap.TerminatedEvent); ok {
			count++
		}
	}
	sink.mu.Unlock()
	if count != 1 {
		t.Fatalf("got %d TerminatedEvents, want exactly 1", count)
	}
}

func TestSourceAlwaysRejectsIllegalHandle(t *testing.T) {
	a := New(newFakeRPC(), &fakeSink{})
	_, err := a.Source(dap.SourceArguments{SourceReference: 1})
	de, ok := err.(*DomainError)
	if !ok || de.Code != CodeSourceRequestIllegalHandle {
		t.Fatalf("got %v, want DomainError{sourceRequestIllegalHandle}", err)
	}
}
