package adapter

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/go-dap"
	"go.uber.org/zap"

	"github.com/dapbridge/dap-cdp-bridge/internal/cdp"
)

// defaultOverlayDebounce is Options.OverlayDebounce's fallback when unset
// (spec §5: "debounced at 200 ms to avoid flicker" during rapid pause/resume
// cycles).
const defaultOverlayDebounce = 200 * time.Millisecond

// pauseOverlayMessage is the fixed text spec §5/§6's Page.configureOverlay
// call sets while paused.
const pauseOverlayMessage = "Paused in Visual Studio Code"

// scheduleOverlay coalesces rapid pause/resume cycles into a single
// Page.configureOverlay call: each call resets the debounce timer, so only
// the last message requested within the debounce window is ever sent.
func (a *Adapter) scheduleOverlay(message string) {
	a.mu.Lock()
	a.pendingOverlayMsg = message
	if a.overlayTimer == nil {
		a.overlayTimer = time.AfterFunc(a.overlayDebounce, a.flushOverlay)
	} else {
		a.overlayTimer.Reset(a.overlayDebounce)
	}
	a.mu.Unlock()
}

func (a *Adapter) flushOverlay() {
	a.mu.Lock()
	message := a.pendingOverlayMsg
	a.mu.Unlock()

	if err := a.rpc.Call(context.Background(), "Page.configureOverlay", cdp.ConfigureOverlayParams{Message: message}, nil); err != nil {
		a.log.Debug("adapter: configureOverlay", bridgelogErr(err))
	}
}

// subscribeEvents registers the Adapter's CDP event handlers, one goroutine
// per event channel, mirroring spec §4.1's CDP event handling table.
func (a *Adapter) subscribeEvents() {
	paused := make(chan cdp.Event, 16)
	resumed := make(chan cdp.Event, 16)
	scriptParsed := make(chan cdp.Event, 64)
	globalCleared := make(chan cdp.Event, 4)
	bpResolved := make(chan cdp.Event, 16)
	consoleCalled := make(chan cdp.Event, 64)

	a.rpc.Subscribe("Debugger.paused", paused)
	a.rpc.Subscribe("Debugger.resumed", resumed)
	a.rpc.Subscribe("Debugger.scriptParsed", scriptParsed)
	a.rpc.Subscribe("Debugger.globalObjectCleared", globalCleared)
	a.rpc.Subscribe("Debugger.breakpointResolved", bpResolved)
	a.rpc.Subscribe("Runtime.consoleAPICalled", consoleCalled)

	go a.eventLoop(paused, a.onPaused)
	go a.eventLoop(resumed, a.onResumed)
	go a.eventLoop(scriptParsed, a.onScriptParsed)
	go a.eventLoop(globalCleared, a.onGlobalObjectCleared)
	go a.eventLoop(bpResolved, a.onBreakpointResolved)
	go a.eventLoop(consoleCalled, a.onConsoleAPICalled)
}

func (a *Adapter) eventLoop(ch chan cdp.Event, handle func(cdp.Event)) {
	for evt := range ch {
		a.mu.Lock()
		shuttingDown := a.inShutdown
		a.mu.Unlock()
		if shuttingDown {
			continue
		}
		handle(evt)
	}
}

// onPaused implements the Debugger.paused row of spec §4.1's event table:
// reset frame and variable-container handles, pick the stop reason, optionally
// smart-step, then emit Stopped once the inducing request's completion
// token settles (bounded 300ms).
func (a *Adapter) onPaused(evt cdp.Event) {
	var p cdp.PausedEvent
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		a.log.Warn("adapter: malformed Debugger.paused", bridgelogErr(err))
		return
	}

	a.frames.Reset()
	a.vars.ResetContainers()

	a.mu.Lock()
	a.currentStack = p.CallFrames
	a.currentStackSet = true
	a.currentException = nil
	a.mu.Unlock()

	var exception *cdp.RemoteObject
	if p.Reason == "exception" {
		var data cdp.RemoteObject
		if len(p.Data) > 0 {
			_ = json.Unmarshal(p.Data, &data)
		}
		exception = &data
		a.mu.Lock()
		a.currentException = exception
		a.mu.Unlock()
	}

	reason := a.selectStopReason(p)

	if reason == "step" {
		a.mu.Lock()
		smartStep := a.smartStep
		a.mu.Unlock()
		if smartStep {
			a.mu.Lock()
			count := a.smartStepCount
			a.mu.Unlock()

			if count < maxSmartStepSkips && a.shouldSmartStepSkip(len(p.CallFrames)) {
				a.mu.Lock()
				a.smartStepCount++
				a.mu.Unlock()
				_, _ = a.step.StepIn(context.Background())
				return
			}

			a.mu.Lock()
			skipped := a.smartStepCount
			a.smartStepCount = 0
			a.mu.Unlock()
			if skipped > 0 {
				if skipped >= maxSmartStepSkips {
					a.log.Warn("adapter: smart-step gave up without finding an authored mapping", zap.Int("skipped", skipped))
				} else {
					a.log.Debug("adapter: smart-step resumed", zap.Int("skipped", skipped))
				}
			}
		}
	}

	token := a.step.CurrentStep()
	a.step.AwaitCompletion(token)

	a.scheduleOverlay(pauseOverlayMessage)

	_ = a.sink.SendEvent(&dap.StoppedEvent{
		Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: "stopped"},
		Body: dap.StoppedEventBody{
			Reason:            reason,
			ThreadId:          threadID,
			AllThreadsStopped: true,
		},
	})
}

// selectStopReason implements spec §4.1's stop-reason selection algorithm.
func (a *Adapter) selectStopReason(p cdp.PausedEvent) string {
	if p.Reason == "exception" {
		return "exception"
	}
	if len(p.HitBreakpoints) > 0 {
		return "breakpoint"
	}
	if reason, ok := a.step.ConsumeExpectingStopReason(); ok {
		return reason
	}
	return "debugger"
}

// maxSmartStepSkips bounds how many consecutive stepIns smart-step will
// issue looking for an authored-source mapping before giving up and
// stopping anyway. Without this, a session with no real source-map
// collaborator wired in (spec §1 Non-goal) never finds a mapping and
// smart-step would stepIn forever, never emitting Stopped.
const maxSmartStepSkips = 25

// shouldSmartStepSkip asks the source-map transformer whether the top
// frame's position maps to an authored location; an empty mapping means
// "keep smart-stepping" (spec §4.1's Smart-step section). The default
// pipeline's MapToAuthored (LineColumn + Noop SourceMap + Path, none of
// which override it) always returns an empty mapping, so this always
// returns true unless a caller substitutes a mapping-aware transformer —
// onPaused's maxSmartStepSkips cap is what keeps that degenerate case from
// stepping forever.
func (a *Adapter) shouldSmartStepSkip(frameCount int) bool {
	if frameCount == 0 {
		return false
	}
	a.mu.Lock()
	top := a.currentStack[0]
	a.mu.Unlock()
	mapping := a.transform.MapToAuthored(top.URL, top.Location.LineNumber, top.Location.ColumnNumber)
	return !mapping.Ok
}

// onResumed implements the Debugger.resumed row: clear the current stack;
// emit Continued unless suppressed by expectingResumedEvent.
func (a *Adapter) onResumed(evt cdp.Event) {
	a.mu.Lock()
	a.currentStack = nil
	a.currentStackSet = false
	a.mu.Unlock()

	a.scheduleOverlay("")

	if a.step.ConsumeExpectingResumedEvent() {
		return
	}

	_ = a.sink.SendEvent(&dap.ContinuedEvent{
		Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: "continued"},
		Body:  dap.ContinuedEventBody{ThreadId: threadID, AllThreadsContinued: true},
	})
}

// onScriptParsed implements the Debugger.scriptParsed row: ignores
// extension scripts, synthesizes a placeholder URL when none is reported,
// records the script by id and url, asks the transformer for authored
// sources, and resolves any pending breakpoint for a now-known authored
// path. A reported URL is recorded as given; it is not normalized (no
// drive-letter fix).
func (a *Adapter) onScriptParsed(evt cdp.Event) {
	var sp cdp.ScriptParsedEvent
	if err := json.Unmarshal(evt.Params, &sp); err != nil {
		a.log.Warn("adapter: malformed Debugger.scriptParsed", bridgelogErr(err))
		return
	}
	if isExtensionURL(sp.URL) {
		return
	}

	url := sp.URL
	if url == "" {
		url = cdp.PlaceholderURL(sp.ScriptID)
	}

	script := cdp.Script{ScriptID: sp.ScriptID, URL: url, SourceMapURL: sp.SourceMapURL}
	a.mu.Lock()
	a.scriptsByID[sp.ScriptID] = script
	a.scriptsByURL[url] = script
	a.mu.Unlock()

	authored := a.transform.ScriptParsed(url, sp.SourceMapURL)
	paths := authored
	if len(paths) == 0 {
		paths = []string{a.transform.GetClientPathFromTargetPath(url)}
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		results, ok := a.bp.Rebind(context.Background(), path, url)
		if !ok {
			continue
		}
		for _, bpResult := range results {
			a.emitBreakpointEvent("new", bpResult, path)
		}
	}
}

// onGlobalObjectCleared implements the Debugger.globalObjectCleared row:
// drops all scripts and committed breakpoint records and clears the
// transformers' target context. setBreakpoints requests already waiting on
// the BreakpointEngine are not cancelled; they still run in turn.
func (a *Adapter) onGlobalObjectCleared(evt cdp.Event) {
	a.mu.Lock()
	a.scriptsByID = make(map[string]cdp.Script)
	a.scriptsByURL = make(map[string]cdp.Script)
	a.mu.Unlock()

	a.bp.ClearAll()
	a.transform.ClearTargetContext()
}

// onBreakpointResolved implements the Debugger.breakpointResolved row.
func (a *Adapter) onBreakpointResolved(evt cdp.Event) {
	var br cdp.BreakpointResolvedEvent
	if err := json.Unmarshal(evt.Params, &br); err != nil {
		a.log.Warn("adapter: malformed Debugger.breakpointResolved", bridgelogErr(err))
		return
	}

	a.mu.Lock()
	script, ok := a.scriptsByID[br.Location.ScriptID]
	a.mu.Unlock()
	if !ok {
		return
	}

	handle, ok := a.bp.BreakpointResolved(br.BreakpointID)
	if !ok {
		return
	}

	path := a.transform.GetClientPathFromTargetPath(script.URL)
	bp := dap.Breakpoint{
		Id:       int(handle),
		Verified: true,
		Line:     br.Location.LineNumber,
		Column:   br.Location.ColumnNumber,
		Source:   &dap.Source{Path: path},
	}
	a.emitBreakpointEvent("new", bp, path)
}

func (a *Adapter) emitBreakpointEvent(reason string, bp dap.Breakpoint, path string) {
	a.transform.BreakpointResolved(bp, path)
	_ = a.sink.SendEvent(&dap.BreakpointEvent{
		Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: "breakpoint"},
		Body:  dap.BreakpointEventBody{Reason: reason, Breakpoint: bp},
	})
}

// onConsoleAPICalled implements the Runtime.consoleAPICalled row: formats
// the message and emits an Output event.
func (a *Adapter) onConsoleAPICalled(evt cdp.Event) {
	var c cdp.ConsoleAPICalledEvent
	if err := json.Unmarshal(evt.Params, &c); err != nil {
		a.log.Warn("adapter: malformed Runtime.consoleAPICalled", bridgelogErr(err))
		return
	}

	category := "stdout"
	if c.Type == "error" || c.Type == "warning" {
		category = "stderr"
	}

	var parts []string
	for _, arg := range c.Args {
		parts = append(parts, consoleArgString(arg))
	}
	text := strings.Join(parts, " ") + "\n"

	_ = a.sink.SendEvent(&dap.OutputEvent{
		Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: "output"},
		Body:  dap.OutputEventBody{Category: category, Output: text},
	})
}

func consoleArgString(obj cdp.RemoteObject) string {
	if obj.Description != "" {
		return obj.Description
	}
	return stringifyJSONOrEmpty(obj.Value)
}

func bridgelogErr(err error) zap.Field { return zap.Error(err) }
