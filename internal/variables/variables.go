// Package variables implements the VariableEngine (spec §4.4): translation
// of CDP RemoteObjects into DAP Variables, property-container expansion,
// scope construction, evaluate, and completions.
package variables

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-dap"

	"github.com/dapbridge/dap-cdp-bridge/internal/cdp"
	"github.com/dapbridge/dap-cdp-bridge/internal/handles"
)

// indexedName matches a decimal-integer property name (no leading zeros
// except the literal "0"), the set of names the array/indexed-variable
// paths treat as numeric indices.
var indexedName = regexp.MustCompile(`^(0|[1-9][0-9]*)$`)

// Container is what a property-container handle resolves to: the CDP
// objectId to expand plus the counts the DAP Variable carried when it was
// minted.
type Container struct {
	ObjectID         string
	IndexedVariables int
	NamedVariables   int

	// Extra carries synthetic entries merged in ahead of the object's own
	// properties on expansion — used for the first scope's "this" and
	// "returnValue" (spec §4.4).
	Extra []dap.Variable
}

// Engine is the VariableEngine. It owns the variable-container handle
// registry (the second of the handle domains, after frames) and talks to the runtime only
// through cdp.RpcClient, so it is independently testable against a fake.
type Engine struct {
	rpc        cdp.RpcClient
	containers *handles.Registry[Container]
	frames     *handles.Registry[cdp.CallFrame]
}

// New returns an Engine sharing the given frame registry (so Scopes can
// resolve a frame handle minted by the Adapter) and owning its own
// container registry.
func New(rpc cdp.RpcClient, frames *handles.Registry[cdp.CallFrame]) *Engine {
	return &Engine{
		rpc:        rpc,
		containers: handles.New[Container](),
		frames:     frames,
	}
}

// ResetContainers discards every property-container handle, called on every
// debugger pause per spec §4.3.
func (e *Engine) ResetContainers() {
	e.containers.Reset()
}

// ToVariable translates a CDP RemoteObject into a DAP Variable. name is the
// variable's display name (property name, scope slot, or "" for a bare
// evaluate result). stringify controls whether primitive values are
// JSON-stringified (the "unless caller opted out" carve-out in spec §4.4).
func (e *Engine) ToVariable(ctx context.Context, name string, obj cdp.RemoteObject, stringify bool) dap.Variable {
	v := dap.Variable{Name: name}

	switch obj.Type {
	case cdp.TypeUndefined:
		v.Value = "undefined"
		return v

	case cdp.TypeNumber:
		v.Value = obj.Description
		return v

	case cdp.TypeFunction:
		v.Value = formatFunctionDescription(obj.Description)
		if obj.ObjectID != "" {
			ref, indexed, named := e.openContainer(obj)
			v.VariablesReference = ref
			v.IndexedVariables = indexed
			v.NamedVariables = named
		}
		return v

	case cdp.TypeObject:
		switch obj.Subtype {
		case "null":
			v.Value = "null"
			return v
		case "internal#location":
			v.Value = "internal#location"
			return v
		}
		return e.objectVariable(ctx, name, obj)

	default:
		if stringify {
			v.Value = stringifyPrimitive(obj.Value)
		} else {
			v.Value = string(obj.Value)
		}
		return v
	}
}

func formatFunctionDescription(desc string) string {
	if i := strings.IndexByte(desc, '{'); i >= 0 {
		return desc[:i] + "{ … }"
	}
	if i := strings.Index(desc, "=>"); i >= 0 {
		return desc + " …"
	}
	return desc
}

func stringifyPrimitive(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(b)
}

func (e *Engine) objectVariable(ctx context.Context, name string, obj cdp.RemoteObject) dap.Variable {
	v := dap.Variable{Name: name}

	switch obj.Subtype {
	case "error":
		v.Value = firstLine(obj.Description)
	case "promise", "generator":
		status := previewStatus(obj.Preview)
		v.Value = obj.Description
		if status != "" {
			v.Value += " { " + status + " }"
		}
	default:
		v.Value = obj.Description
		if v.Value == "" {
			v.Value = obj.ClassName
		}
	}

	if obj.ObjectID == "" {
		return v
	}

	ref, indexed, named := e.openContainerForSubtype(ctx, obj)
	v.VariablesReference = ref
	v.IndexedVariables = indexed
	v.NamedVariables = named
	return v
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func previewStatus(p *cdp.ObjectPreview) string {
	if p == nil {
		return ""
	}
	for _, prop := range p.Properties {
		if prop.Name == "[[PromiseStatus]]" || prop.Name == "[[GeneratorStatus]]" {
			return prop.Value
		}
	}
	return ""
}

// openContainer mints a handle for obj.ObjectID without special counting
// (used for function variables, which don't get array/set/map counts).
func (e *Engine) openContainer(obj cdp.RemoteObject) (ref, indexed, named int) {
	h := e.containers.Create(Container{ObjectID: obj.ObjectID})
	return int(h), 0, 0
}

// openContainerForSubtype mints a container handle and computes
// (indexedVariables, namedVariables) per spec §4.4's per-subtype rules.
func (e *Engine) openContainerForSubtype(ctx context.Context, obj cdp.RemoteObject) (ref, indexed, named int) {
	return e.openContainerForSubtypeWithExtra(ctx, obj, nil)
}

// evalLengthFallback runs the "[this.length, Object.keys(this).length -
// this.length]" style fallback eval spec §4.4 specifies when no usable
// preview is present.
func (e *Engine) evalLengthFallback(ctx context.Context, objectID string) (length, extraKeys int) {
	var result cdp.CallFunctionOnResult
	err := e.rpc.Call(ctx, "Runtime.callFunctionOn", cdp.CallFunctionOnParams{
		FunctionDeclaration: "function(){return [this.length||0, Object.keys(this).length - (this.length||0)]}",
		ObjectID:            objectID,
		ReturnByValue:       true,
	}, &result)
	if err != nil {
		return 0, 0
	}
	var pair []int
	if err := json.Unmarshal(result.Result.Value, &pair); err != nil || len(pair) != 2 {
		return 0, 0
	}
	return pair[0], pair[1]
}

// Expand retrieves and merges a property container's own + accessor-only
// properties (spec §4.4's "two CDP calls... merge by name, later wins"),
// invoking getters via callFunctionOn, and returns the sorted Variables.
func (e *Engine) Expand(ctx context.Context, ref uint32) ([]dap.Variable, error) {
	container, ok := e.containers.Get(ref)
	if !ok {
		return nil, fmt.Errorf("variables: no container for reference %d", ref)
	}
	vars, err := e.expandObjectID(ctx, container.ObjectID)
	if err != nil {
		return nil, err
	}
	if len(container.Extra) > 0 {
		vars = append(append([]dap.Variable{}, container.Extra...), vars...)
	}
	return vars, nil
}

func (e *Engine) expandObjectID(ctx context.Context, objectID string) ([]dap.Variable, error) {
	var accessorOnly cdp.GetPropertiesResult
	if err := e.rpc.Call(ctx, "Runtime.getProperties", cdp.GetPropertiesParams{
		ObjectID:               objectID,
		OwnProperties:          false,
		AccessorPropertiesOnly: true,
	}, &accessorOnly); err != nil {
		return nil, fmt.Errorf("variables: get accessor properties: %w", err)
	}

	var own cdp.GetPropertiesResult
	if err := e.rpc.Call(ctx, "Runtime.getProperties", cdp.GetPropertiesParams{
		ObjectID:      objectID,
		OwnProperties: true,
	}, &own); err != nil {
		return nil, fmt.Errorf("variables: get own properties: %w", err)
	}

	merged := make(map[string]cdp.PropertyDescriptor, len(own.Result)+len(accessorOnly.Result))
	order := make([]string, 0, len(own.Result)+len(accessorOnly.Result))
	for _, p := range accessorOnly.Result {
		if _, seen := merged[p.Name]; !seen {
			order = append(order, p.Name)
		}
		merged[p.Name] = p
	}
	for _, p := range own.Result {
		if _, seen := merged[p.Name]; !seen {
			order = append(order, p.Name)
		}
		merged[p.Name] = p
	}

	out := make([]dap.Variable, 0, len(order)+len(own.InternalProperties))
	for _, name := range order {
		p := merged[name]
		out = append(out, e.propertyVariable(ctx, objectID, p))
	}
	for _, ip := range own.InternalProperties {
		if ip.Value == nil {
			continue
		}
		out = append(out, e.ToVariable(ctx, ip.Name, *ip.Value, true))
	}

	sort.SliceStable(out, func(i, j int) bool { return variableNameLess(out[i].Name, out[j].Name) })
	return out, nil
}

func (e *Engine) propertyVariable(ctx context.Context, parentObjectID string, p cdp.PropertyDescriptor) dap.Variable {
	if p.Value != nil {
		return e.ToVariable(ctx, p.Name, *p.Value, true)
	}
	if p.Get != nil && p.Get.Type != cdp.TypeUndefined {
		return e.invokeGetter(ctx, parentObjectID, p.Name)
	}
	if p.Set != nil {
		return dap.Variable{Name: p.Name, Value: "setter"}
	}
	return dap.Variable{Name: p.Name, Value: "undefined"}
}

// invokeGetter calls this[name] on the parent object. A thrown getter is
// not surfaced as an RPC error: its message becomes the Variable's value,
// per spec §4.4.
func (e *Engine) invokeGetter(ctx context.Context, parentObjectID, name string) dap.Variable {
	var result cdp.CallFunctionOnResult
	body, _ := json.Marshal(name)
	err := e.rpc.Call(ctx, "Runtime.callFunctionOn", cdp.CallFunctionOnParams{
		FunctionDeclaration: fmt.Sprintf("function(){return this[%s]}", string(body)),
		ObjectID:            parentObjectID,
	}, &result)
	if err != nil {
		return dap.Variable{Name: name, Value: err.Error()}
	}
	if result.ExceptionDetails != nil {
		msg := result.ExceptionDetails.Text
		if result.ExceptionDetails.Exception != nil && result.ExceptionDetails.Exception.Description != "" {
			msg = result.ExceptionDetails.Exception.Description
		}
		return dap.Variable{Name: name, Value: msg}
	}
	return e.ToVariable(ctx, name, result.Result, true)
}

// variableNameLess implements spec §4.4's comparator: indexed names before
// named names, indexed names compared numerically, named names compared
// lexicographically.
func variableNameLess(a, b string) bool {
	aIdx, aIsIdx := asIndex(a)
	bIdx, bIsIdx := asIndex(b)
	switch {
	case aIsIdx && bIsIdx:
		return aIdx < bIdx
	case aIsIdx && !bIsIdx:
		return true
	case !aIsIdx && bIsIdx:
		return false
	default:
		return a < b
	}
}

func asIndex(s string) (int, bool) {
	if !indexedName.MatchString(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Paged retrieves a page of indexed children via the helper-function eval
// spec §4.4 describes ("getIndexedVariables"/"getNamedVariablesFn").
func (e *Engine) Paged(ctx context.Context, ref uint32, start, count int, filter string) ([]dap.Variable, error) {
	container, ok := e.containers.Get(ref)
	if !ok {
		return nil, fmt.Errorf("variables: no container for reference %d", ref)
	}

	fn := "getIndexedVariables"
	if filter == "named" {
		fn = "getNamedVariablesFn"
	}
	decl := fmt.Sprintf(
		`function(){return (function %s(start,count){
			var own = this instanceof Array || ArrayBuffer.isView(this)
				? Array.from({length:count}, function(_,i){return String(start+i)})
				: Object.keys(this).slice(start, start+count);
			return own;
		}).call(this, %d, %d)}`, fn, start, count)

	var result cdp.CallFunctionOnResult
	if err := e.rpc.Call(ctx, "Runtime.callFunctionOn", cdp.CallFunctionOnParams{
		FunctionDeclaration: decl,
		ObjectID:            container.ObjectID,
		ReturnByValue:       true,
	}, &result); err != nil {
		return nil, fmt.Errorf("variables: paged eval: %w", err)
	}

	var names []string
	if err := json.Unmarshal(result.Result.Value, &names); err != nil {
		return nil, fmt.Errorf("variables: decode paged names: %w", err)
	}

	all, err := e.expandObjectID(ctx, container.ObjectID)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	out := make([]dap.Variable, 0, len(names))
	for _, v := range all {
		if wanted[v.Name] {
			if _, isIdx := asIndex(v.Name); !isIdx {
				continue
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// Scopes builds the DAP Scope list for a paused call frame, per spec §4.4:
// one Scope per scopeChain entry (name = CDP type, first letter
// upper-cased; expensive iff type is "global"), the first scope additionally
// carrying `this`/`returnValue`, with a synthetic "Exception" scope
// prepended when exception is non-nil.
func (e *Engine) Scopes(ctx context.Context, frame cdp.CallFrame, exception *cdp.RemoteObject) []dap.Scope {
	out := make([]dap.Scope, 0, len(frame.ScopeChain)+1)

	if exception != nil {
		ref, indexed, named := e.openContainerForSubtype(ctx, *exception)
		out = append(out, dap.Scope{
			Name:               "Exception",
			VariablesReference: ref,
			IndexedVariables:   indexed,
			NamedVariables:     named,
		})
	}

	for i, sc := range frame.ScopeChain {
		name := strings.ToUpper(sc.Type[:1]) + sc.Type[1:]

		var extra []dap.Variable
		if i == 0 {
			extra = append(extra, e.ToVariable(ctx, "this", frame.This, true))
			if frame.ReturnValue != nil {
				extra = append(extra, e.ToVariable(ctx, "returnValue", *frame.ReturnValue, true))
			}
		}

		ref, indexed, named := e.openContainerForSubtypeWithExtra(ctx, sc.Object, extra)
		out = append(out, dap.Scope{
			Name:               name,
			VariablesReference: ref,
			IndexedVariables:   indexed,
			NamedVariables:     named,
			Expensive:          sc.Type == "global",
		})
	}
	return out
}

// openContainerForSubtypeWithExtra mints a container handle, computing
// (indexedVariables, namedVariables) per spec §4.4's per-subtype rules, with
// synthetic entries (e.g. "this"/"returnValue") merged ahead of the object's
// own properties on expansion.
func (e *Engine) openContainerForSubtypeWithExtra(ctx context.Context, obj cdp.RemoteObject, extra []dap.Variable) (ref, indexed, named int) {
	var idx, nmd int

	switch obj.Subtype {
	case "array", "typedarray":
		if obj.Preview != nil && !obj.Preview.Overflow {
			idx = len(obj.Preview.Properties)
		} else {
			n, k := e.evalLengthFallback(ctx, obj.ObjectID)
			idx = n
			nmd = k
		}
	case "set", "map":
		if obj.Preview != nil && !obj.Preview.Overflow {
			idx = len(obj.Preview.Properties) + 1
		} else {
			_, keys := e.evalLengthFallback(ctx, obj.ObjectID)
			nmd = keys + 1
		}
	}
	nmd += len(extra)

	h := e.containers.Create(Container{
		ObjectID:         obj.ObjectID,
		IndexedVariables: idx,
		NamedVariables:   nmd,
		Extra:            extra,
	})
	return int(h), idx, nmd
}

// Evaluate implements spec §4.4's evaluate(expr, frameId?): evaluateOnCallFrame
// when frameID resolves to a live frame, else Runtime.evaluate in the global
// context.
func (e *Engine) Evaluate(ctx context.Context, expr string, frameID uint32, hasFrame, replContext bool) (dap.Variable, error) {
	var obj cdp.RemoteObject
	var exceptionDetails *cdp.ExceptionDetails

	if hasFrame {
		frame, ok := e.frames.Get(frameID)
		if !ok {
			return dap.Variable{}, fmt.Errorf("variables: no frame for reference %d", frameID)
		}
		var result cdp.EvaluateOnCallFrameResult
		if err := e.rpc.Call(ctx, "Debugger.evaluateOnCallFrame", cdp.EvaluateOnCallFrameParams{
			CallFrameID: frame.CallFrameID,
			Expression:  expr,
		}, &result); err != nil {
			return dap.Variable{}, fmt.Errorf("variables: evaluateOnCallFrame: %w", err)
		}
		obj, exceptionDetails = result.Result, result.ExceptionDetails
	} else {
		var result cdp.EvaluateResult
		if err := e.rpc.Call(ctx, "Runtime.evaluate", cdp.EvaluateParams{
			Expression: expr,
			ContextID:  1,
		}, &result); err != nil {
			return dap.Variable{}, fmt.Errorf("variables: evaluate: %w", err)
		}
		obj, exceptionDetails = result.Result, result.ExceptionDetails
	}

	if exceptionDetails != nil {
		msg := exceptionDetails.Text
		if exceptionDetails.Exception != nil {
			msg = exceptionDetails.Exception.Description
		}
		if !replContext && strings.HasPrefix(msg, "ReferenceError:") {
			msg = "not available"
		}
		return dap.Variable{}, fmt.Errorf("%s", msg)
	}

	return e.ToVariable(ctx, "", obj, true), nil
}

// SetVariable implements spec §4.4's setVariable/setVariableValue: evaluate
// the RHS silently in the frame context, then set the target via
// Debugger.setVariableValue.
func (e *Engine) SetVariable(ctx context.Context, frameID uint32, scopeNumber int, name, value string) (string, error) {
	frame, ok := e.frames.Get(frameID)
	if !ok {
		return "", fmt.Errorf("variables: no frame for reference %d", frameID)
	}

	rhs, err := e.evalSilent(ctx, frame.CallFrameID, value)
	if err != nil {
		return "", err
	}

	arg := cdp.CallArgument{}
	if rhs.ObjectID != "" {
		arg.ObjectID = rhs.ObjectID
	} else {
		arg.Value = rhs.Value
	}

	if err := e.rpc.Call(ctx, "Debugger.setVariableValue", cdp.SetVariableValueParams{
		ScopeNumber:  scopeNumber,
		VariableName: name,
		NewValue:     arg,
		CallFrameID:  frame.CallFrameID,
	}, nil); err != nil {
		return "", fmt.Errorf("variables: setVariableValue: %w", err)
	}

	return valueRepresentation(rhs), nil
}

// SetPropertyValue implements spec §4.4's setPropertyValue: a synthesized
// setter body run via Runtime.callFunctionOn.
func (e *Engine) SetPropertyValue(ctx context.Context, containerRef uint32, name, value string) (string, error) {
	container, ok := e.containers.Get(containerRef)
	if !ok {
		return "", fmt.Errorf("variables: no container for reference %d", containerRef)
	}

	rhs, err := e.evalSilentGlobal(ctx, value)
	if err != nil {
		return "", err
	}

	nameJSON, _ := json.Marshal(name)
	args := []cdp.CallArgument{{}}
	if rhs.ObjectID != "" {
		args[0].ObjectID = rhs.ObjectID
	} else {
		args[0].Value = rhs.Value
	}

	var result cdp.CallFunctionOnResult
	if err := e.rpc.Call(ctx, "Runtime.callFunctionOn", cdp.CallFunctionOnParams{
		FunctionDeclaration: fmt.Sprintf("function(v){this[%s]=v}", string(nameJSON)),
		ObjectID:            container.ObjectID,
		Arguments:           args,
	}, &result); err != nil {
		return "", fmt.Errorf("variables: setPropertyValue: %w", err)
	}

	return valueRepresentation(rhs), nil
}

func (e *Engine) evalSilent(ctx context.Context, callFrameID, expr string) (cdp.RemoteObject, error) {
	var result cdp.EvaluateOnCallFrameResult
	if err := e.rpc.Call(ctx, "Debugger.evaluateOnCallFrame", cdp.EvaluateOnCallFrameParams{
		CallFrameID: callFrameID,
		Expression:  expr,
		Silent:      true,
	}, &result); err != nil {
		return cdp.RemoteObject{}, fmt.Errorf("variables: evaluate rhs: %w", err)
	}
	return result.Result, nil
}

func (e *Engine) evalSilentGlobal(ctx context.Context, expr string) (cdp.RemoteObject, error) {
	var result cdp.EvaluateResult
	if err := e.rpc.Call(ctx, "Runtime.evaluate", cdp.EvaluateParams{
		Expression: expr,
		Silent:     true,
	}, &result); err != nil {
		return cdp.RemoteObject{}, fmt.Errorf("variables: evaluate rhs: %w", err)
	}
	return result.Result, nil
}

func valueRepresentation(obj cdp.RemoteObject) string {
	if obj.Description != "" {
		return obj.Description
	}
	return stringifyPrimitive(obj.Value)
}

// Completions implements spec §4.4's completions(expr, column, frameId?).
func (e *Engine) Completions(ctx context.Context, expr string, frameID uint32, hasFrame bool) ([]dap.CompletionItem, error) {
	if dot := strings.LastIndexByte(expr, '.'); dot >= 0 {
		left := expr[:dot]
		names, err := e.propertyChainNames(ctx, left, frameID, hasFrame)
		if err != nil {
			return nil, err
		}
		return completionItems(names), nil
	}

	if !hasFrame {
		return nil, nil
	}
	frame, ok := e.frames.Get(frameID)
	if !ok {
		return nil, fmt.Errorf("variables: no frame for reference %d", frameID)
	}
	seen := map[string]bool{}
	var names []string
	for _, sc := range frame.ScopeChain {
		if sc.Object.ObjectID == "" {
			continue
		}
		vars, err := e.expandObjectID(ctx, sc.Object.ObjectID)
		if err != nil {
			continue
		}
		for _, v := range vars {
			if seen[v.Name] {
				continue
			}
			seen[v.Name] = true
			names = append(names, v.Name)
		}
	}
	return completionItems(names), nil
}

const protoChainWalker = `function(x){var a=[];for(var o=x;o;o=o.__proto__)a.push(Object.getOwnPropertyNames(o));return a}`

func (e *Engine) propertyChainNames(ctx context.Context, left string, frameID uint32, hasFrame bool) ([]string, error) {
	expr := fmt.Sprintf("(%s)(%s)", protoChainWalker, left)

	var obj cdp.RemoteObject
	var exceptionDetails *cdp.ExceptionDetails
	if hasFrame {
		frame, ok := e.frames.Get(frameID)
		if !ok {
			return nil, fmt.Errorf("variables: no frame for reference %d", frameID)
		}
		var result cdp.EvaluateOnCallFrameResult
		if err := e.rpc.Call(ctx, "Debugger.evaluateOnCallFrame", cdp.EvaluateOnCallFrameParams{
			CallFrameID:   frame.CallFrameID,
			Expression:    expr,
			ReturnByValue: true,
		}, &result); err != nil {
			return nil, fmt.Errorf("variables: completions eval: %w", err)
		}
		obj, exceptionDetails = result.Result, result.ExceptionDetails
	} else {
		var result cdp.EvaluateResult
		if err := e.rpc.Call(ctx, "Runtime.evaluate", cdp.EvaluateParams{
			Expression:    expr,
			ReturnByValue: true,
		}, &result); err != nil {
			return nil, fmt.Errorf("variables: completions eval: %w", err)
		}
		obj, exceptionDetails = result.Result, result.ExceptionDetails
	}
	if exceptionDetails != nil {
		return nil, nil
	}

	var layers [][]string
	if err := json.Unmarshal(obj.Value, &layers); err != nil {
		return nil, fmt.Errorf("variables: decode completion layers: %w", err)
	}

	seen := map[string]bool{}
	var out []string
	for _, layer := range layers {
		for _, name := range layer {
			if seen[name] {
				continue
			}
			if _, isIdx := asIndex(name); isIdx {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

func completionItems(names []string) []dap.CompletionItem {
	out := make([]dap.CompletionItem, 0, len(names))
	for _, n := range names {
		out = append(out, dap.CompletionItem{Label: n, Type: "property"})
	}
	return out
}
