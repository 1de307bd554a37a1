package variables

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dapbridge/dap-cdp-bridge/internal/cdp"
	"github.com/dapbridge/dap-cdp-bridge/internal/handles"
)

type fakeRPC struct {
	calls   []string
	onCall  func(method string, params any, out any) error
}

func (f *fakeRPC) Call(ctx context.Context, method string, params any, out any) error {
	f.calls = append(f.calls, method)
	if f.onCall != nil {
		return f.onCall(method, params, out)
	}
	return nil
}
func (f *fakeRPC) Subscribe(method string, ch chan<- cdp.Event) func() { return func() {} }
func (f *fakeRPC) OnClose(fn func(error))                              {}
func (f *fakeRPC) Close() error                                       { return nil }

func newEngine(rpc cdp.RpcClient) *Engine {
	return New(rpc, handles.New[cdp.CallFrame]())
}

func TestToVariableNull(t *testing.T) {
	e := newEngine(&fakeRPC{})
	v := e.ToVariable(context.Background(), "x", cdp.RemoteObject{Type: cdp.TypeObject, Subtype: "null"}, true)
	if v.Value != "null" || v.VariablesReference != 0 {
		t.Fatalf("got %+v", v)
	}
}

func TestToVariableUndefined(t *testing.T) {
	e := newEngine(&fakeRPC{})
	v := e.ToVariable(context.Background(), "x", cdp.RemoteObject{Type: cdp.TypeUndefined}, true)
	if v.Value != "undefined" {
		t.Fatalf("got %q", v.Value)
	}
}

func TestToVariableNumberUsesDescription(t *testing.T) {
	e := newEngine(&fakeRPC{})
	v := e.ToVariable(context.Background(), "x", cdp.RemoteObject{Type: cdp.TypeNumber, Description: "Infinity"}, true)
	if v.Value != "Infinity" {
		t.Fatalf("got %q", v.Value)
	}
}

func TestToVariablePrimitiveStringifiesValue(t *testing.T) {
	e := newEngine(&fakeRPC{})
	v := e.ToVariable(context.Background(), "x", cdp.RemoteObject{Type: cdp.TypeString, Value: json.RawMessage(`"hi"`)}, true)
	if v.Value != `"hi"` {
		t.Fatalf("got %q", v.Value)
	}
}

func TestFormatFunctionDescriptionTruncatesAtBrace(t *testing.T) {
	got := formatFunctionDescription("function foo() { return 1; }")
	if got != "function foo() { … }" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatFunctionDescriptionArrow(t *testing.T) {
	got := formatFunctionDescription("x => x + 1")
	if got != "x => x + 1 …" {
		t.Fatalf("got %q", got)
	}
}

func TestVariableNameLessIndexedBeforeNamed(t *testing.T) {
	if !variableNameLess("0", "a") {
		t.Fatal("indexed names must sort before named names")
	}
	if variableNameLess("a", "0") {
		t.Fatal("named name must not sort before indexed name")
	}
}

func TestVariableNameLessNumericOrdering(t *testing.T) {
	if !variableNameLess("2", "10") {
		t.Fatal("indexed names must compare numerically, not lexicographically")
	}
}

func TestVariableNameLessNoLeadingZeros(t *testing.T) {
	if _, ok := asIndex("01"); ok {
		t.Fatal("\"01\" must not be treated as an indexed name")
	}
	if _, ok := asIndex("0"); !ok {
		t.Fatal("\"0\" must be treated as an indexed name")
	}
}

func TestExpandMergesAccessorAndOwnByName(t *testing.T) {
	rpc := &fakeRPC{}
	rpc.onCall = func(method string, params any, out any) error {
		switch method {
		case "Runtime.getProperties":
			p := params.(cdp.GetPropertiesParams)
			if p.AccessorPropertiesOnly {
				res := out.(*cdp.GetPropertiesResult)
				res.Result = []cdp.PropertyDescriptor{
					{Name: "a", Get: &cdp.RemoteObject{Type: cdp.TypeFunction}},
				}
				return nil
			}
			res := out.(*cdp.GetPropertiesResult)
			res.Result = []cdp.PropertyDescriptor{
				{Name: "a", Value: &cdp.RemoteObject{Type: cdp.TypeNumber, Description: "1"}},
				{Name: "b", Value: &cdp.RemoteObject{Type: cdp.TypeNumber, Description: "2"}},
			}
			return nil
		case "Runtime.callFunctionOn":
			res := out.(*cdp.CallFunctionOnResult)
			res.Result = cdp.RemoteObject{Type: cdp.TypeNumber, Description: "42"}
			return nil
		}
		return nil
	}

	e := newEngine(rpc)
	vars, err := e.expandObjectID(context.Background(), "obj-1")
	if err != nil {
		t.Fatalf("expandObjectID: %v", err)
	}
	if len(vars) != 2 {
		t.Fatalf("want 2 vars, got %d: %+v", len(vars), vars)
	}
	// "a" wins from the "own" pass (later wins), so its value is the own
	// property's "1", not the getter's "42".
	for _, v := range vars {
		if v.Name == "a" && v.Value != "1" {
			t.Fatalf("own property must win over accessor-only: got %q", v.Value)
		}
	}
}

func TestInvokeGetterSurfacesThrownMessageAsValue(t *testing.T) {
	rpc := &fakeRPC{onCall: func(method string, params any, out any) error {
		res := out.(*cdp.CallFunctionOnResult)
		res.ExceptionDetails = &cdp.ExceptionDetails{Text: "Uncaught TypeError: boom"}
		return nil
	}}
	e := newEngine(rpc)
	v := e.invokeGetter(context.Background(), "obj-1", "x")
	if v.Value != "Uncaught TypeError: boom" {
		t.Fatalf("got %q", v.Value)
	}
}

func TestEvaluateRewritesReferenceErrorOutsideRepl(t *testing.T) {
	rpc := &fakeRPC{onCall: func(method string, params any, out any) error {
		res := out.(*cdp.EvaluateResult)
		res.ExceptionDetails = &cdp.ExceptionDetails{Text: "ReferenceError: x is not defined"}
		return nil
	}}
	e := newEngine(rpc)
	_, err := e.Evaluate(context.Background(), "x", 0, false, false)
	if err == nil || err.Error() != "not available" {
		t.Fatalf("got %v", err)
	}
}

func TestEvaluateKeepsReferenceErrorInReplContext(t *testing.T) {
	rpc := &fakeRPC{onCall: func(method string, params any, out any) error {
		res := out.(*cdp.EvaluateResult)
		res.ExceptionDetails = &cdp.ExceptionDetails{Text: "ReferenceError: x is not defined"}
		return nil
	}}
	e := newEngine(rpc)
	_, err := e.Evaluate(context.Background(), "x", 0, false, true)
	if err == nil || err.Error() != "ReferenceError: x is not defined" {
		t.Fatalf("got %v", err)
	}
}
