// Package adapter implements the Adapter session state machine (spec
// §4.1): the central 35%-share component translating between the
// northbound DAP editor and the southbound CDP runtime.
//
// Grounded on spec.md §4.1 end-to-end; the teacher (go-delve-mcp-dap-server)'s
// debuggerSession struct (session-scoped mutable state) is generalized here
// into attachMode/clientAttached/hasTerminated/smartStep/etc. per spec.md's
// Data Model, and its getFullContext fan-out (stack trace → scopes →
// variables) is generalized into the stackTrace/scopes/variables DAP
// handlers in requests.go.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/go-dap"
	"go.uber.org/zap"

	"github.com/dapbridge/dap-cdp-bridge/internal/bridgelog"
	"github.com/dapbridge/dap-cdp-bridge/internal/breakpoints"
	"github.com/dapbridge/dap-cdp-bridge/internal/cdp"
	"github.com/dapbridge/dap-cdp-bridge/internal/handles"
	"github.com/dapbridge/dap-cdp-bridge/internal/step"
	"github.com/dapbridge/dap-cdp-bridge/internal/transform"
	"github.com/dapbridge/dap-cdp-bridge/internal/variables"
)

// threadID is the bridge's single virtual thread (spec §4.1: "exactly one
// virtual thread, id = 1").
const threadID = 1

// EventSink is what the Adapter emits DAP events through; satisfied by
// *dapio.Server, kept as an interface here so the Adapter stays testable
// against a fake.
type EventSink interface {
	SendEvent(event dap.EventMessage) error
}

// Adapter is the session state machine. One Adapter per DAP connection.
type Adapter struct {
	rpc       cdp.RpcClient
	transform *transform.Pipeline
	vars      *variables.Engine
	bp        *breakpoints.Engine
	step      *step.Controller
	sink      EventSink
	log       *zap.Logger

	frames *handles.Registry[cdp.CallFrame]
	bpIDs  *handles.BiRegistry

	mu sync.Mutex

	attachMode     bool
	clientAttached bool
	hasTerminated  bool
	inShutdown     bool

	smartStep      bool
	smartStepCount int

	scriptsByID  map[string]cdp.Script
	scriptsByURL map[string]cdp.Script

	currentStack     []cdp.CallFrame
	currentStackSet  bool
	currentException *cdp.RemoteObject
	topFrameHandle   uint32

	exceptionFilterAll      bool
	exceptionFilterUncaught bool

	overlayDebounce   time.Duration
	overlayTimer      *time.Timer
	pendingOverlayMsg string
}

// Options configures the behavior config.Config exposes as flags and
// environment variables (spec §4.1 smart-step, §4.1/§4.2 timeouts, §5
// overlay debounce). The zero value reproduces every default spec.md names.
type Options struct {
	SmartStep         bool
	StepTimeout       time.Duration
	BreakpointTimeout time.Duration
	OverlayDebounce   time.Duration
}

// New wires a fresh Adapter around the given CDP collaborator and DAP event
// sink, using every spec-default Option. The Adapter owns its own handle
// registries and breakpoint/variable/step engines; rpc is the only
// externally-supplied dependency.
func New(rpc cdp.RpcClient, sink EventSink) *Adapter {
	return NewWithOptions(rpc, sink, Options{})
}

// NewWithOptions is New with config.Config's tunables threaded through to
// the engines and overlay debounce that otherwise hardcode the spec's
// defaults — wired from cmd/bridged's flags/env overlay.
func NewWithOptions(rpc cdp.RpcClient, sink EventSink, opts Options) *Adapter {
	frames := handles.New[cdp.CallFrame]()
	bpIDs := handles.NewBiRegistry()

	log := bridgelog.L()
	if tagged, ok := rpc.(interface{ ConnID() string }); ok {
		log = log.With(zap.String("conn", tagged.ConnID()))
	}

	overlayDebounce := opts.OverlayDebounce
	if overlayDebounce <= 0 {
		overlayDebounce = defaultOverlayDebounce
	}

	a := &Adapter{
		rpc:                     rpc,
		transform:               transform.NewDefaultPipeline(),
		bp:                      breakpoints.NewWithTimeout(rpc, bpIDs, opts.BreakpointTimeout),
		step:                    step.NewWithTimeout(rpc, opts.StepTimeout),
		sink:                    sink,
		log:                     log,
		frames:                  frames,
		bpIDs:                   bpIDs,
		smartStep:               opts.SmartStep,
		scriptsByID:             make(map[string]cdp.Script),
		scriptsByURL:            make(map[string]cdp.Script),
		exceptionFilterUncaught: true,
		overlayDebounce:         overlayDebounce,
	}
	a.vars = variables.New(rpc, frames)
	return a
}

// Initialize implements dapio.Handler. Spec §4.1: validates path-format
// sources and returns the fixed capabilities record.
func (a *Adapter) Initialize(args dap.InitializeRequestArguments) (dap.Capabilities, error) {
	if args.PathFormat != "" && args.PathFormat != "path" {
		return dap.Capabilities{}, errPathFormat()
	}
	return dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsSetVariable:              true,
		SupportsConditionalBreakpoints:   true,
		SupportsCompletionsRequest:       true,
		ExceptionBreakpointFilters: []dap.ExceptionBreakpointsFilter{
			{Filter: "all", Label: "All Exceptions", Default: false},
			{Filter: "uncaught", Label: "Uncaught Exceptions", Default: true},
		},
	}, nil
}

// Launch implements dapio.Handler: propagates args to the transformer
// pipeline. Launching a target process is out of scope (spec §1 Non-goals);
// the bridge only attaches to an already-running CDP endpoint.
func (a *Adapter) Launch(args map[string]interface{}) error {
	a.transform.Launch(args)
	return nil
}

// Attach implements dapio.Handler: enables the Debugger/Runtime domains,
// hooks events, and emits Initialized. It does not open a CDP connection:
// rpc is already connected when the Adapter is built, and the port (and any
// address) in args is only checked for presence, not dialed. Fails with
// attach.portRequired when port is absent (spec §4.1).
func (a *Adapter) Attach(args map[string]interface{}) error {
	port, ok := args["port"]
	if !ok || port == nil {
		return errAttachPortRequired()
	}

	a.mu.Lock()
	a.attachMode = true
	a.clientAttached = true
	if sm, ok := args["smartStep"].(bool); ok {
		a.smartStep = sm
	}
	a.mu.Unlock()

	a.transform.Attach(args)

	ctx := context.Background()
	if err := a.rpc.Call(ctx, "Debugger.enable", struct{}{}, nil); err != nil {
		return fmt.Errorf("adapter: enable Debugger domain: %w", err)
	}
	if err := a.rpc.Call(ctx, "Runtime.enable", struct{}{}, nil); err != nil {
		return fmt.Errorf("adapter: enable Runtime domain: %w", err)
	}

	a.subscribeEvents()
	a.rpc.OnClose(a.onTransportClosed)

	return a.sink.SendEvent(&dap.InitializedEvent{
		Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: "initialized"},
	})
}

// Disconnect implements dapio.Handler: terminates the session per the
// fatal-error propagation policy (spec §7).
func (a *Adapter) Disconnect(args dap.DisconnectArguments) error {
	a.terminateSession("disconnect requested", false)
	return nil
}

// ConfigurationDone implements dapio.Handler. Nothing further is required
// once the editor signals it has finished its initial configuration
// requests; breakpoints set beforehand are already committed.
func (a *Adapter) ConfigurationDone() error { return nil }

// Threads implements dapio.Handler: always the single virtual thread (spec
// §4.1, testable property #6).
func (a *Adapter) Threads() (dap.ThreadsResponseBody, error) {
	return dap.ThreadsResponseBody{Threads: []dap.Thread{{Id: threadID, Name: "Thread 1"}}}, nil
}

// SetExceptionBreakpoints implements dapio.Handler: maps filters to CDP's
// Debugger.setPauseOnExceptions state, "all" dominating "uncaught" (spec §6).
func (a *Adapter) SetExceptionBreakpoints(args dap.SetExceptionBreakpointsArguments) error {
	all, uncaught := false, false
	for _, f := range args.Filters {
		switch f {
		case "all":
			all = true
		case "uncaught":
			uncaught = true
		}
	}

	a.mu.Lock()
	a.exceptionFilterAll = all
	a.exceptionFilterUncaught = uncaught
	a.mu.Unlock()

	state := "none"
	switch {
	case all:
		state = "all"
	case uncaught:
		state = "uncaught"
	}
	return a.rpc.Call(context.Background(), "Debugger.setPauseOnExceptions", cdp.SetPauseOnExceptionsParams{State: state}, nil)
}

// terminateSession implements spec §7's fatal-error handling: emits
// TerminatedEvent once, closes the CDP connection, and latches hasTerminated
// so further error emissions are suppressed.
func (a *Adapter) terminateSession(reason string, restart bool) {
	a.mu.Lock()
	if a.hasTerminated {
		a.mu.Unlock()
		return
	}
	a.hasTerminated = true
	a.inShutdown = true
	a.mu.Unlock()

	a.log.Warn("adapter: terminating session", zap.String("reason", reason))

	_ = a.sink.SendEvent(&dap.TerminatedEvent{
		Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: "terminated"},
		Body:  dap.TerminatedEventBody{Restart: restart},
	})
	_ = a.rpc.Close()
}

// onTransportClosed implements spec §4.1's "Transport Inspector.detached,
// close, error → terminateSession(reason)" row: registered against the CDP
// collaborator's OnClose at Attach time, so a dropped websocket surfaces to
// the editor as a Terminated event instead of silently hanging the session.
func (a *Adapter) onTransportClosed(cause error) {
	reason := "cdp transport closed"
	if cause != nil {
		reason = fmt.Sprintf("cdp transport closed: %v", cause)
	}
	a.terminateSession(reason, false)
}

// resolveScript implements the ScriptKnown lookup the BreakpointEngine
// needs: a DAP source path resolves to a target URL when a matching script
// has already been recorded via scriptParsed.
func (a *Adapter) resolveScript(path string) (string, bool) {
	url := a.transform.GetTargetPathFromClientPath(path)
	a.mu.Lock()
	defer a.mu.Unlock()
	if url != "" {
		if _, ok := a.scriptsByURL[url]; ok {
			return url, true
		}
	}
	for u := range a.scriptsByURL {
		if u == path {
			return u, true
		}
	}
	return "", false
}

func isExtensionURL(url string) bool {
	return strings.HasPrefix(url, "extensions::") || strings.HasPrefix(url, "chrome-extension://")
}

func stringifyJSONOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return string(raw)
}
