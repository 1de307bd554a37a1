// Package dapio implements the bridge's northbound DAP transport: a server
// loop built on github.com/google/go-dap that decodes dap.Request messages,
// dispatches them to a Handler, and encodes dap.Response/dap.Event
// messages back.
//
// Grounded on the teacher (go-delve-mcp-dap-server)'s ReadMessage/dispatch
// loop, mirrored from the client direction to the server direction: the
// teacher calls client.ReadMessage() in a loop and type-switches on
// dap.ResponseMessage/dap.EventMessage; here the server reads
// dap.RequestMessage and writes dap.ResponseMessage/dap.EventMessage.
// other_examples/docker-buildx's dap-adapter.go confirms the general shape
// of a production go-dap server (per-command dispatch methods), though its
// own Handler/Server plumbing wasn't present in the retrieved file, so this
// loop is built directly on go-dap's ReadProtocolMessage/WriteProtocolMessage.
package dapio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/go-dap"

	"github.com/dapbridge/dap-cdp-bridge/internal/bridgelog"
)

// Handler is everything the Adapter exposes to the DAP transport. Each
// method receives the already-typed request and returns either a response
// body or an error; dapio is responsible only for wire framing and
// sequencing, never for protocol semantics (those live in internal/adapter,
// spec §4.1).
type Handler interface {
	Initialize(args dap.InitializeRequestArguments) (dap.Capabilities, error)
	Launch(args map[string]interface{}) error
	Attach(args map[string]interface{}) error
	Disconnect(args dap.DisconnectArguments) error
	SetBreakpoints(args dap.SetBreakpointsArguments) (dap.SetBreakpointsResponseBody, error)
	SetExceptionBreakpoints(args dap.SetExceptionBreakpointsArguments) error
	ConfigurationDone() error
	Continue(args dap.ContinueArguments) (dap.ContinueResponseBody, error)
	Next(args dap.NextArguments) error
	StepIn(args dap.StepInArguments) error
	StepOut(args dap.StepOutArguments) error
	Pause(args dap.PauseArguments) error
	StackTrace(args dap.StackTraceArguments) (dap.StackTraceResponseBody, error)
	Scopes(args dap.ScopesArguments) (dap.ScopesResponseBody, error)
	Variables(args dap.VariablesArguments) (dap.VariablesResponseBody, error)
	SetVariable(args dap.SetVariableArguments) (dap.SetVariableResponseBody, error)
	Source(args dap.SourceArguments) (dap.SourceResponseBody, error)
	Threads() (dap.ThreadsResponseBody, error)
	Evaluate(args dap.EvaluateArguments) (dap.EvaluateResponseBody, error)
	Completions(args dap.CompletionsArguments) (dap.CompletionsResponseBody, error)
}

// Server is the DAP-facing wire endpoint: one per session.
type Server struct {
	rw      io.ReadWriteCloser
	reader  *bufio.Reader
	handler Handler

	writeMu sync.Mutex
	seq     int
}

// NewServer wraps rw (a stdio pipe or an accepted TCP connection) and
// begins dispatching to handler once Serve is called.
func NewServer(rw io.ReadWriteCloser, handler Handler) *Server {
	return &Server{
		rw:      rw,
		reader:  bufio.NewReader(rw),
		handler: handler,
	}
}

// SetHandler (re)binds the Handler a Server dispatches to. Exists for
// callers that need the Server constructed (to use as an EventSink) before
// its Handler — typically the Adapter, which itself requires an EventSink —
// is available.
func (s *Server) SetHandler(handler Handler) {
	s.handler = handler
}

// Serve reads requests until the connection closes or a fatal decode error
// occurs, dispatching each to the Handler and writing back its response.
func (s *Server) Serve() error {
	for {
		msg, err := dap.ReadProtocolMessage(s.reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("dapio: read request: %w", err)
		}
		req, ok := msg.(dap.RequestMessage)
		if !ok {
			bridgelog.L().Warn("dapio: ignoring non-request message")
			continue
		}
		s.dispatch(req)
	}
}

// SendEvent writes a DAP event to the client out of band, used by the
// Adapter for Stopped/Continued/Breakpoint/Output/Terminated/Initialized
// events (spec §4.1's CDP event handling table).
func (s *Server) SendEvent(event dap.EventMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return dap.WriteProtocolMessage(s.rw, event)
}

func (s *Server) nextSeq() int {
	s.seq++
	return s.seq
}

func (s *Server) writeResponse(resp dap.ResponseMessage) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := dap.WriteProtocolMessage(s.rw, resp); err != nil {
		bridgelog.L().Warn("dapio: write response failed", bridgelog.Err(err))
	}
}

func (s *Server) dispatch(req dap.RequestMessage) {
	switch r := req.(type) {
	case *dap.InitializeRequest:
		caps, err := s.handler.Initialize(r.Arguments)
		resp := &dap.InitializeResponse{Response: *baseResponse(r)}
		s.respond(resp, err, func(resp *dap.InitializeResponse) { resp.Body = caps })

	case *dap.LaunchRequest:
		var args map[string]interface{}
		_ = json.Unmarshal(r.Arguments, &args)
		err := s.handler.Launch(args)
		s.respondEmpty(&dap.LaunchResponse{Response: *baseResponse(r)}, err)

	case *dap.AttachRequest:
		var args map[string]interface{}
		_ = json.Unmarshal(r.Arguments, &args)
		err := s.handler.Attach(args)
		s.respondEmpty(&dap.AttachResponse{Response: *baseResponse(r)}, err)

	case *dap.DisconnectRequest:
		err := s.handler.Disconnect(r.Arguments)
		s.respondEmpty(&dap.DisconnectResponse{Response: *baseResponse(r)}, err)

	case *dap.SetBreakpointsRequest:
		body, err := s.handler.SetBreakpoints(r.Arguments)
		resp := &dap.SetBreakpointsResponse{Response: *baseResponse(r), Body: body}
		s.writeTypedResponse(resp, err)

	case *dap.SetExceptionBreakpointsRequest:
		err := s.handler.SetExceptionBreakpoints(r.Arguments)
		s.respondEmpty(&dap.SetExceptionBreakpointsResponse{Response: *baseResponse(r)}, err)

	case *dap.ConfigurationDoneRequest:
		err := s.handler.ConfigurationDone()
		s.respondEmpty(&dap.ConfigurationDoneResponse{Response: *baseResponse(r)}, err)

	case *dap.ContinueRequest:
		body, err := s.handler.Continue(r.Arguments)
		s.writeTypedResponse(&dap.ContinueResponse{Response: *baseResponse(r), Body: body}, err)

	case *dap.NextRequest:
		err := s.handler.Next(r.Arguments)
		s.respondEmpty(&dap.NextResponse{Response: *baseResponse(r)}, err)

	case *dap.StepInRequest:
		err := s.handler.StepIn(r.Arguments)
		s.respondEmpty(&dap.StepInResponse{Response: *baseResponse(r)}, err)

	case *dap.StepOutRequest:
		err := s.handler.StepOut(r.Arguments)
		s.respondEmpty(&dap.StepOutResponse{Response: *baseResponse(r)}, err)

	case *dap.PauseRequest:
		err := s.handler.Pause(r.Arguments)
		s.respondEmpty(&dap.PauseResponse{Response: *baseResponse(r)}, err)

	case *dap.StackTraceRequest:
		body, err := s.handler.StackTrace(r.Arguments)
		s.writeTypedResponse(&dap.StackTraceResponse{Response: *baseResponse(r), Body: body}, err)

	case *dap.ScopesRequest:
		body, err := s.handler.Scopes(r.Arguments)
		s.writeTypedResponse(&dap.ScopesResponse{Response: *baseResponse(r), Body: body}, err)

	case *dap.VariablesRequest:
		body, err := s.handler.Variables(r.Arguments)
		s.writeTypedResponse(&dap.VariablesResponse{Response: *baseResponse(r), Body: body}, err)

	case *dap.SetVariableRequest:
		body, err := s.handler.SetVariable(r.Arguments)
		s.writeTypedResponse(&dap.SetVariableResponse{Response: *baseResponse(r), Body: body}, err)

	case *dap.SourceRequest:
		body, err := s.handler.Source(r.Arguments)
		s.writeTypedResponse(&dap.SourceResponse{Response: *baseResponse(r), Body: body}, err)

	case *dap.ThreadsRequest:
		body, err := s.handler.Threads()
		s.writeTypedResponse(&dap.ThreadsResponse{Response: *baseResponse(r), Body: body}, err)

	case *dap.EvaluateRequest:
		body, err := s.handler.Evaluate(r.Arguments)
		s.writeTypedResponse(&dap.EvaluateResponse{Response: *baseResponse(r), Body: body}, err)

	case *dap.CompletionsRequest:
		body, err := s.handler.Completions(r.Arguments)
		s.writeTypedResponse(&dap.CompletionsResponse{Response: *baseResponse(r), Body: body}, err)

	default:
		cmd := req.GetRequest().Command
		bridgelog.L().Warn("dapio: unhandled request", bridgelog.Err(fmt.Errorf("unsupported command %q", cmd)))
		s.writeResponse(newErrorResponse(req, "unsupported request"))
	}
}

func baseResponse(req dap.RequestMessage) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: 0, Type: "response"},
		RequestSeq:      req.GetSeq(),
		Success:         true,
		Command:         req.GetRequest().Command,
	}
}

func newErrorResponse(req dap.RequestMessage, message string) *dap.ErrorResponse {
	return &dap.ErrorResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Type: "response"},
			RequestSeq:      req.GetSeq(),
			Success:         false,
			Command:         req.GetRequest().Command,
			Message:         message,
		},
		Body: dap.ErrorResponseBody{
			Error: &dap.ErrorMessage{Format: message},
		},
	}
}

// respond is used for the one case (Initialize) whose body is built inline
// rather than by the caller constructing the whole response struct.
func (s *Server) respond(resp *dap.InitializeResponse, err error, setBody func(*dap.InitializeResponse)) {
	if err != nil {
		base := resp.GetResponse()
		s.writeResponse(errorResponseFrom(base.RequestSeq, base.Command, err))
		return
	}
	setBody(resp)
	s.writeTypedResponse(resp, nil)
}

func (s *Server) respondEmpty(resp dap.ResponseMessage, err error) {
	s.writeTypedResponse(resp, err)
}

func (s *Server) writeTypedResponse(resp dap.ResponseMessage, err error) {
	base := resp.GetResponse()
	if err != nil {
		s.writeResponse(errorResponseFrom(base.RequestSeq, base.Command, err))
		return
	}
	base.Seq = s.nextSeq()
	base.Success = true
	s.writeResponse(resp)
}

func errorResponseFrom(requestSeq int, command string, err error) *dap.ErrorResponse {
	return &dap.ErrorResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Type: "response"},
			RequestSeq:      requestSeq,
			Success:         false,
			Command:         command,
			Message:         err.Error(),
		},
		Body: dap.ErrorResponseBody{
			Error: &dap.ErrorMessage{Format: err.Error()},
		},
	}
}
