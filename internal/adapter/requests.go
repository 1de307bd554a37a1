package adapter

import (
	"context"
	"fmt"

	"github.com/google/go-dap"

	"github.com/dapbridge/dap-cdp-bridge/internal/cdp"
)

// SetBreakpoints implements dapio.Handler: the BreakpointEngine does the
// real work (spec §4.2); this method only resolves the DAP source to a
// client path and runs the transformer pipeline around the exchange.
func (a *Adapter) SetBreakpoints(args dap.SetBreakpointsArguments) (dap.SetBreakpointsResponseBody, error) {
	if args.Source.Path == "" {
		return dap.SetBreakpointsResponseBody{}, errPathFormat()
	}

	a.transform.SetBreakpoints(&args, 0)

	results, err := a.bp.Set(context.Background(), args.Source.Path, &args, a.resolveScript)
	if err != nil {
		return dap.SetBreakpointsResponseBody{}, fmt.Errorf("adapter: setBreakpoints: %w", err)
	}

	body := dap.SetBreakpointsResponseBody{Breakpoints: results}
	a.transform.SetBreakpointsResponse(&body, 0)
	return body, nil
}

// Continue implements dapio.Handler.
func (a *Adapter) Continue(args dap.ContinueArguments) (dap.ContinueResponseBody, error) {
	token, err := a.step.Continue(context.Background())
	if err != nil {
		return dap.ContinueResponseBody{}, fmt.Errorf("adapter: continue: %w", err)
	}
	a.step.Complete(token)
	return dap.ContinueResponseBody{AllThreadsContinued: true}, nil
}

// Next implements dapio.Handler.
func (a *Adapter) Next(args dap.NextArguments) error {
	token, err := a.step.Next(context.Background())
	if err != nil {
		return fmt.Errorf("adapter: next: %w", err)
	}
	a.step.Complete(token)
	return nil
}

// StepIn implements dapio.Handler.
func (a *Adapter) StepIn(args dap.StepInArguments) error {
	token, err := a.step.StepIn(context.Background())
	if err != nil {
		return fmt.Errorf("adapter: stepIn: %w", err)
	}
	a.step.Complete(token)
	return nil
}

// StepOut implements dapio.Handler.
func (a *Adapter) StepOut(args dap.StepOutArguments) error {
	token, err := a.step.StepOut(context.Background())
	if err != nil {
		return fmt.Errorf("adapter: stepOut: %w", err)
	}
	a.step.Complete(token)
	return nil
}

// Pause implements dapio.Handler.
func (a *Adapter) Pause(args dap.PauseArguments) error {
	token, err := a.step.Pause(context.Background())
	if err != nil {
		return fmt.Errorf("adapter: pause: %w", err)
	}
	a.step.Complete(token)
	return nil
}

// StackTrace implements dapio.Handler: mints a fresh frame handle per
// call frame (frame handles are reset on every pause, spec §4.3) and runs
// the transformer pipeline over the resulting line/column/path.
//
// A callFrame missing its CallFrameID is malformed. Rather than erroring
// the whole stack trace, it gets handle 0 — never a real registry handle,
// since handles start at 1 — so the frame still shows up in the trace but
// a later scopes() call against it fails the handle lookup (spec §9).
func (a *Adapter) StackTrace(args dap.StackTraceArguments) (dap.StackTraceResponseBody, error) {
	a.mu.Lock()
	if !a.currentStackSet {
		a.mu.Unlock()
		return dap.StackTraceResponseBody{}, nil
	}
	stack := append([]cdp.CallFrame(nil), a.currentStack...)
	a.mu.Unlock()

	frames := make([]dap.StackFrame, 0, len(stack))
	for i, cf := range stack {
		var handle uint32
		if cf.CallFrameID == "" {
			handle = 0
		} else {
			handle = a.frames.Create(cf)
		}
		if i == 0 {
			a.mu.Lock()
			a.topFrameHandle = handle
			a.mu.Unlock()
		}
		path := a.transform.GetClientPathFromTargetPath(cf.URL)
		frames = append(frames, dap.StackFrame{
			Id:     int(handle),
			Name:   cf.FunctionName,
			Source: &dap.Source{Path: path},
			Line:   cf.Location.LineNumber,
			Column: cf.Location.ColumnNumber,
		})
	}

	body := dap.StackTraceResponseBody{StackFrames: frames, TotalFrames: len(frames)}
	a.transform.StackTraceResponse(&body)
	return body, nil
}

// Scopes implements dapio.Handler, delegating to the VariableEngine (spec
// §4.4): the "Exception" scope is prepended only for the top frame of the
// last stack trace, where an exception is currently active.
func (a *Adapter) Scopes(args dap.ScopesArguments) (dap.ScopesResponseBody, error) {
	frame, ok := a.frames.Get(uint32(args.FrameId))
	if !ok {
		return dap.ScopesResponseBody{}, errCompletionsStackFrameNotValid()
	}

	a.mu.Lock()
	var exception *cdp.RemoteObject
	if uint32(args.FrameId) == a.topFrameHandle {
		exception = a.currentException
	}
	a.mu.Unlock()

	scopes := a.vars.Scopes(context.Background(), frame, exception)
	return dap.ScopesResponseBody{Scopes: scopes}, nil
}

// Variables implements dapio.Handler: paged expansion when start or count
// is nonzero, else full expansion (spec §4.4).
func (a *Adapter) Variables(args dap.VariablesArguments) (dap.VariablesResponseBody, error) {
	ref := uint32(args.VariablesReference)
	ctx := context.Background()

	if args.Start != 0 || args.Count != 0 {
		vars, err := a.vars.Paged(ctx, ref, args.Start, args.Count, args.Filter)
		if err != nil {
			return dap.VariablesResponseBody{}, fmt.Errorf("adapter: variables (paged): %w", err)
		}
		return dap.VariablesResponseBody{Variables: vars}, nil
	}

	vars, err := a.vars.Expand(ctx, ref)
	if err != nil {
		return dap.VariablesResponseBody{}, fmt.Errorf("adapter: variables: %w", err)
	}
	return dap.VariablesResponseBody{Variables: vars}, nil
}

// SetVariable implements dapio.Handler. Every VariablesReference, a scope's
// or an object's, resolves to a property container, and the value is set
// through the VariableEngine's synthesized-setter path (SetPropertyValue) on
// that container's object. Debugger.setVariableValue is not used, since the
// adapter does not track which scope number a reference belongs to. Any
// failure is reported as setValueNotSupported.
func (a *Adapter) SetVariable(args dap.SetVariableArguments) (dap.SetVariableResponseBody, error) {
	repr, err := a.vars.SetPropertyValue(context.Background(), uint32(args.VariablesReference), args.Name, args.Value)
	if err != nil {
		return dap.SetVariableResponseBody{}, errSetValueNotSupported()
	}
	return dap.SetVariableResponseBody{Value: repr}, nil
}

// Source implements dapio.Handler. The bridge never stores inline source
// text (scripts are addressed by URL, not sourceReference, per spec §3); a
// sourceReference-only request is always an illegal handle.
func (a *Adapter) Source(args dap.SourceArguments) (dap.SourceResponseBody, error) {
	return dap.SourceResponseBody{}, errSourceRequestIllegalHandle()
}

// Evaluate implements dapio.Handler, delegating to the VariableEngine.
func (a *Adapter) Evaluate(args dap.EvaluateArguments) (dap.EvaluateResponseBody, error) {
	hasFrame := args.FrameId != 0
	replContext := args.Context == "repl"

	v, err := a.vars.Evaluate(context.Background(), args.Expression, uint32(args.FrameId), hasFrame, replContext)
	if err != nil {
		return dap.EvaluateResponseBody{}, errFromEvaluate(err.Error())
	}
	return dap.EvaluateResponseBody{
		Result:             v.Value,
		VariablesReference: v.VariablesReference,
		NamedVariables:     v.NamedVariables,
		IndexedVariables:   v.IndexedVariables,
	}, nil
}

// Completions implements dapio.Handler, delegating to the VariableEngine.
func (a *Adapter) Completions(args dap.CompletionsArguments) (dap.CompletionsResponseBody, error) {
	hasFrame := args.FrameId != 0
	expr := args.Text
	if args.Column > 0 && args.Column <= len(expr) {
		expr = expr[:args.Column-1]
	}

	items, err := a.vars.Completions(context.Background(), expr, uint32(args.FrameId), hasFrame)
	if err != nil {
		return dap.CompletionsResponseBody{}, fmt.Errorf("adapter: completions: %w", err)
	}
	return dap.CompletionsResponseBody{Targets: items}, nil
}
