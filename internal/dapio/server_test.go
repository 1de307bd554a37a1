package dapio

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-dap"
)

// stubHandler implements Handler with minimal behavior for wire-level tests.
type stubHandler struct{}

func (stubHandler) Initialize(args dap.InitializeRequestArguments) (dap.Capabilities, error) {
	return dap.Capabilities{SupportsConditionalBreakpoints: true}, nil
}
func (stubHandler) Launch(args map[string]interface{}) error { return nil }
func (stubHandler) Attach(args map[string]interface{}) error { return nil }
func (stubHandler) Disconnect(args dap.DisconnectArguments) error { return nil }
func (stubHandler) SetBreakpoints(args dap.SetBreakpointsArguments) (dap.SetBreakpointsResponseBody, error) {
	return dap.SetBreakpointsResponseBody{}, nil
}
func (stubHandler) SetExceptionBreakpoints(args dap.SetExceptionBreakpointsArguments) error {
	return nil
}
func (stubHandler) ConfigurationDone() error { return nil }
func (stubHandler) Continue(args dap.ContinueArguments) (dap.ContinueResponseBody, error) {
	return dap.ContinueResponseBody{AllThreadsContinued: true}, nil
}
func (stubHandler) Next(args dap.NextArguments) error       { return nil }
func (stubHandler) StepIn(args dap.StepInArguments) error   { return nil }
func (stubHandler) StepOut(args dap.StepOutArguments) error { return nil }
func (stubHandler) Pause(args dap.PauseArguments) error     { return nil }
func (stubHandler) StackTrace(args dap.StackTraceArguments) (dap.StackTraceResponseBody, error) {
	return dap.StackTraceResponseBody{}, nil
}
func (stubHandler) Scopes(args dap.ScopesArguments) (dap.ScopesResponseBody, error) {
	return dap.ScopesResponseBody{}, nil
}
func (stubHandler) Variables(args dap.VariablesArguments) (dap.VariablesResponseBody, error) {
	return dap.VariablesResponseBody{}, nil
}
func (stubHandler) SetVariable(args dap.SetVariableArguments) (dap.SetVariableResponseBody, error) {
	return dap.SetVariableResponseBody{}, nil
}
func (stubHandler) Source(args dap.SourceArguments) (dap.SourceResponseBody, error) {
	return dap.SourceResponseBody{}, nil
}
func (stubHandler) Threads() (dap.ThreadsResponseBody, error) {
	return dap.ThreadsResponseBody{Threads: []dap.Thread{{Id: 1, Name: "main"}}}, nil
}
func (stubHandler) Evaluate(args dap.EvaluateArguments) (dap.EvaluateResponseBody, error) {
	return dap.EvaluateResponseBody{}, nil
}
func (stubHandler) Completions(args dap.CompletionsArguments) (dap.CompletionsResponseBody, error) {
	return dap.CompletionsResponseBody{}, nil
}

type erroringHandler struct{ stubHandler }

func (erroringHandler) Threads() (dap.ThreadsResponseBody, error) {
	return dap.ThreadsResponseBody{}, fmt.Errorf("no target attached")
}

// newPipe returns both ends of an in-memory net.Pipe; the first serves as
// the Server's io.ReadWriteCloser, the second as the test's client side.
func newPipe() (net.Conn, net.Conn) {
	return net.Pipe()
}

func TestInitializeRoundTrip(t *testing.T) {
	serverSide, clientSide := newPipe()
	defer clientSide.Close()

	srv := NewServer(serverSide, stubHandler{})
	go srv.Serve()

	writeRequest(t, clientSide, &dap.InitializeRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"}, Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{},
	})

	resp := readResponse(t, clientSide)
	initResp, ok := resp.(*dap.InitializeResponse)
	if !ok {
		t.Fatalf("got %T, want *dap.InitializeResponse", resp)
	}
	if !initResp.Success {
		t.Fatal("expected Success=true")
	}
	if !initResp.Body.SupportsConditionalBreakpoints {
		t.Fatal("expected SupportsConditionalBreakpoints=true")
	}
	if initResp.RequestSeq != 1 {
		t.Fatalf("got RequestSeq=%d, want 1", initResp.RequestSeq)
	}
}

func TestThreadsAlwaysReturnsSingletonThread(t *testing.T) {
	serverSide, clientSide := newPipe()
	defer clientSide.Close()

	srv := NewServer(serverSide, stubHandler{})
	go srv.Serve()

	writeRequest(t, clientSide, &dap.ThreadsRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 2, Type: "request"}, Command: "threads"},
	})

	resp := readResponse(t, clientSide)
	tr, ok := resp.(*dap.ThreadsResponse)
	if !ok {
		t.Fatalf("got %T", resp)
	}
	if len(tr.Body.Threads) != 1 || tr.Body.Threads[0].Id != 1 {
		t.Fatalf("got %+v, want exactly one thread with id 1", tr.Body.Threads)
	}
}

func TestHandlerErrorBecomesErrorResponse(t *testing.T) {
	serverSide, clientSide := newPipe()
	defer clientSide.Close()

	srv := NewServer(serverSide, erroringHandler{})
	go srv.Serve()

	writeRequest(t, clientSide, &dap.ThreadsRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 3, Type: "request"}, Command: "threads"},
	})

	resp := readResponse(t, clientSide)
	errResp, ok := resp.(*dap.ErrorResponse)
	if !ok {
		t.Fatalf("got %T, want *dap.ErrorResponse", resp)
	}
	if errResp.Success {
		t.Fatal("error response must have Success=false")
	}
	if errResp.Message != "no target attached" {
		t.Fatalf("got message %q", errResp.Message)
	}
}

func TestSendEventWritesOutOfBand(t *testing.T) {
	serverSide, clientSide := newPipe()
	defer clientSide.Close()

	srv := NewServer(serverSide, stubHandler{})
	go srv.Serve()

	done := make(chan struct{})
	go func() {
		_ = srv.SendEvent(&dap.StoppedEvent{
			Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: "stopped"},
			Body:  dap.StoppedEventBody{Reason: "breakpoint", ThreadId: 1},
		})
		close(done)
	}()

	msg := readAnyMessage(t, clientSide)
	evt, ok := msg.(*dap.StoppedEvent)
	if !ok {
		t.Fatalf("got %T, want *dap.StoppedEvent", msg)
	}
	if evt.Body.Reason != "breakpoint" {
		t.Fatalf("got reason %q", evt.Body.Reason)
	}
	<-done
}

func writeRequest(t *testing.T, w io.Writer, req dap.RequestMessage) {
	t.Helper()
	if err := dap.WriteProtocolMessage(w, req); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

func readAnyMessage(t *testing.T, r io.Reader) dap.Message {
	t.Helper()
	br := bufio.NewReader(r)
	type result struct {
		msg dap.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := dap.ReadProtocolMessage(br)
		ch <- result{m, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("read message: %v", res.err)
		}
		return res.msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func readResponse(t *testing.T, r io.Reader) dap.ResponseMessage {
	t.Helper()
	msg := readAnyMessage(t, r)
	resp, ok := msg.(dap.ResponseMessage)
	if !ok {
		t.Fatalf("got %T, want a ResponseMessage", msg)
	}
	return resp
}
