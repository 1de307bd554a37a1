// Package cdp models the subset of the Chrome DevTools Protocol the bridge
// needs: the Debugger and Runtime domain types, and the RpcClient
// collaborator interface that abstracts the physical transport (spec §6,
// "Out of scope: the physical CDP transport").
//
// Field names and JSON tags follow the upstream CDP spec, grounded on
// daabr-chrome-vision's generated pkg/devtools/{debugger,runtime} packages.
package cdp

import "encoding/json"

// Location identifies a position in a parsed script.
type Location struct {
	ScriptID     string `json:"scriptId"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber,omitempty"`
}

// Script is the adapter's record of a script reported via Debugger.scriptParsed.
// Spec §3: stored in two indices (by scriptId and by url); url is synthesized
// as placeholder://<scriptId> when the runtime reports none.
type Script struct {
	ScriptID     string
	URL          string
	SourceMapURL string
}

// PlaceholderURL returns the synthetic URL used for scripts the runtime
// reported without a url.
func PlaceholderURL(scriptID string) string {
	return "placeholder://" + scriptID
}

// CallFrame mirrors Debugger.CallFrame: one entry of a paused call stack.
type CallFrame struct {
	CallFrameID  string        `json:"callFrameId"`
	FunctionName string        `json:"functionName"`
	Location     Location      `json:"location"`
	URL          string        `json:"url"`
	ScopeChain   []Scope       `json:"scopeChain"`
	This         RemoteObject  `json:"this"`
	ReturnValue  *RemoteObject `json:"returnValue,omitempty"`
}

// Scope mirrors Debugger.Scope.
type Scope struct {
	Type          string       `json:"type"` // global, local, with, closure, catch, block, script, eval, module, wasm-expression-stack
	Object        RemoteObject `json:"object"`
	Name          string       `json:"name,omitempty"`
	StartLocation *Location    `json:"startLocation,omitempty"`
	EndLocation   *Location    `json:"endLocation,omitempty"`
}

// RemoteObjectType enumerates Runtime.RemoteObject.type.
type RemoteObjectType string

const (
	TypeObject    RemoteObjectType = "object"
	TypeFunction  RemoteObjectType = "function"
	TypeUndefined RemoteObjectType = "undefined"
	TypeString    RemoteObjectType = "string"
	TypeNumber    RemoteObjectType = "number"
	TypeBoolean   RemoteObjectType = "boolean"
	TypeSymbol    RemoteObjectType = "symbol"
	TypeBigint    RemoteObjectType = "bigint"
)

// RemoteObject mirrors Runtime.RemoteObject. Spec §9 models this as a
// tagged variant (Null, Undefined, Bool, Number, String, Function, Object);
// in Go, a single struct with the CDP field layout plays that role — the
// VariableEngine's logic (§4.4) is entirely a switch over Type/Subtype.
type RemoteObject struct {
	Type                RemoteObjectType `json:"type"`
	Subtype             string           `json:"subtype,omitempty"`
	ClassName           string           `json:"className,omitempty"`
	Value               json.RawMessage  `json:"value,omitempty"`
	UnserializableValue string           `json:"unserializableValue,omitempty"`
	Description         string           `json:"description,omitempty"`
	ObjectID            string           `json:"objectId,omitempty"`
	Preview             *ObjectPreview   `json:"preview,omitempty"`
}

// ObjectPreview mirrors Runtime.ObjectPreview.
type ObjectPreview struct {
	Type        RemoteObjectType  `json:"type"`
	Subtype     string            `json:"subtype,omitempty"`
	Description string            `json:"description,omitempty"`
	Overflow    bool              `json:"overflow"`
	Properties  []PropertyPreview `json:"properties"`
}

// PropertyPreview mirrors Runtime.PropertyPreview.
type PropertyPreview struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// PropertyDescriptor mirrors Runtime.PropertyDescriptor.
type PropertyDescriptor struct {
	Name         string        `json:"name"`
	Value        *RemoteObject `json:"value,omitempty"`
	Writable     bool          `json:"writable,omitempty"`
	Get          *RemoteObject `json:"get,omitempty"`
	Set          *RemoteObject `json:"set,omitempty"`
	Configurable bool          `json:"configurable"`
	Enumerable   bool          `json:"enumerable"`
	IsOwn        bool          `json:"isOwn,omitempty"`
}

// InternalPropertyDescriptor mirrors Runtime.InternalPropertyDescriptor.
type InternalPropertyDescriptor struct {
	Name  string        `json:"name"`
	Value *RemoteObject `json:"value,omitempty"`
}

// ExceptionDetails mirrors Runtime.ExceptionDetails.
type ExceptionDetails struct {
	ExceptionID  int           `json:"exceptionId"`
	Text         string        `json:"text"`
	LineNumber   int           `json:"lineNumber"`
	ColumnNumber int           `json:"columnNumber"`
	Exception    *RemoteObject `json:"exception,omitempty"`
}

// CallArgument mirrors Runtime.CallArgument.
type CallArgument struct {
	Value    json.RawMessage `json:"value,omitempty"`
	ObjectID string          `json:"objectId,omitempty"`
}

// --- Command params/results ---

// SetBreakpointParams is Debugger.setBreakpoint's params: used for scripts
// referenced only by placeholder URL (spec §4.2 "Add protocol").
type SetBreakpointParams struct {
	Location  Location `json:"location"`
	Condition string   `json:"condition,omitempty"`
}

// SetBreakpointResult is Debugger.setBreakpoint's result.
type SetBreakpointResult struct {
	BreakpointID   string   `json:"breakpointId"`
	ActualLocation Location `json:"actualLocation"`
}

// SetBreakpointByURLParams is Debugger.setBreakpointByUrl's params: used for
// scripts with a real URL, so the runtime rebinds across navigations.
type SetBreakpointByURLParams struct {
	LineNumber   int    `json:"lineNumber"`
	URLRegex     string `json:"urlRegex"`
	ColumnNumber int    `json:"columnNumber,omitempty"`
	Condition    string `json:"condition,omitempty"`
}

// SetBreakpointByURLResult is Debugger.setBreakpointByUrl's result.
type SetBreakpointByURLResult struct {
	BreakpointID string     `json:"breakpointId"`
	Locations    []Location `json:"locations"`
}

// GetPropertiesParams is Runtime.getProperties' params.
type GetPropertiesParams struct {
	ObjectID               string `json:"objectId"`
	OwnProperties          bool   `json:"ownProperties,omitempty"`
	AccessorPropertiesOnly bool   `json:"accessorPropertiesOnly,omitempty"`
	GeneratePreview        bool   `json:"generatePreview,omitempty"`
}

// ConfigureOverlayParams is Page.configureOverlay's params: the "Paused in
// Visual Studio Code" pause overlay (spec §5/§6). An empty Message clears
// the overlay on resume.
type ConfigureOverlayParams struct {
	Message string `json:"message,omitempty"`
}

// GetPropertiesResult is Runtime.getProperties' result.
type GetPropertiesResult struct {
	Result             []PropertyDescriptor         `json:"result"`
	InternalProperties []InternalPropertyDescriptor `json:"internalProperties,omitempty"`
	ExceptionDetails   *ExceptionDetails             `json:"exceptionDetails,omitempty"`
}

// CallFunctionOnParams is Runtime.callFunctionOn's params.
type CallFunctionOnParams struct {
	FunctionDeclaration string         `json:"functionDeclaration"`
	ObjectID            string         `json:"objectId,omitempty"`
	Arguments           []CallArgument `json:"arguments,omitempty"`
	Silent              bool           `json:"silent,omitempty"`
	ReturnByValue       bool           `json:"returnByValue,omitempty"`
}

// CallFunctionOnResult is Runtime.callFunctionOn's result.
type CallFunctionOnResult struct {
	Result           RemoteObject      `json:"result"`
	ExceptionDetails *ExceptionDetails `json:"exceptionDetails,omitempty"`
}

// EvaluateParams is Runtime.evaluate's params.
type EvaluateParams struct {
	Expression    string `json:"expression"`
	ContextID     int    `json:"contextId,omitempty"`
	ReturnByValue bool   `json:"returnByValue,omitempty"`
	Silent        bool   `json:"silent,omitempty"`
}

// EvaluateResult is Runtime.evaluate's result.
type EvaluateResult struct {
	Result           RemoteObject      `json:"result"`
	ExceptionDetails *ExceptionDetails `json:"exceptionDetails,omitempty"`
}

// EvaluateOnCallFrameParams is Debugger.evaluateOnCallFrame's params.
type EvaluateOnCallFrameParams struct {
	CallFrameID   string `json:"callFrameId"`
	Expression    string `json:"expression"`
	ReturnByValue bool   `json:"returnByValue,omitempty"`
	Silent        bool   `json:"silent,omitempty"`
}

// EvaluateOnCallFrameResult is Debugger.evaluateOnCallFrame's result.
type EvaluateOnCallFrameResult struct {
	Result           RemoteObject      `json:"result"`
	ExceptionDetails *ExceptionDetails `json:"exceptionDetails,omitempty"`
}

// SetVariableValueParams is Debugger.setVariableValue's params.
type SetVariableValueParams struct {
	ScopeNumber  int          `json:"scopeNumber"`
	VariableName string       `json:"variableName"`
	NewValue     CallArgument `json:"newValue"`
	CallFrameID  string       `json:"callFrameId"`
}

// SetPauseOnExceptionsParams is Debugger.setPauseOnExceptions' params.
type SetPauseOnExceptionsParams struct {
	State string `json:"state"` // "none" | "uncaught" | "all"
}

// --- Events ---

// PausedEvent mirrors Debugger.paused.
type PausedEvent struct {
	CallFrames     []CallFrame     `json:"callFrames"`
	Reason         string          `json:"reason"`
	Data           json.RawMessage `json:"data,omitempty"`
	HitBreakpoints []string        `json:"hitBreakpoints,omitempty"`
}

// ResumedEvent mirrors Debugger.resumed (empty payload).
type ResumedEvent struct{}

// ScriptParsedEvent mirrors Debugger.scriptParsed.
type ScriptParsedEvent struct {
	ScriptID     string `json:"scriptId"`
	URL          string `json:"url"`
	SourceMapURL string `json:"sourceMapURL,omitempty"`
}

// GlobalObjectClearedEvent mirrors Debugger.globalObjectCleared (empty payload).
type GlobalObjectClearedEvent struct{}

// BreakpointResolvedEvent mirrors Debugger.breakpointResolved.
type BreakpointResolvedEvent struct {
	BreakpointID string   `json:"breakpointId"`
	Location     Location `json:"location"`
}

// ConsoleAPICalledEvent mirrors Runtime.consoleAPICalled.
type ConsoleAPICalledEvent struct {
	Type string         `json:"type"` // "log", "error", "warning", ...
	Args []RemoteObject `json:"args"`
}
