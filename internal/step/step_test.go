package step

import (
	"context"
	"testing"
	"time"

	"github.com/dapbridge/dap-cdp-bridge/internal/cdp"
)

type fakeRPC struct {
	methods []string
}

func (f *fakeRPC) Call(ctx context.Context, method string, params, out any) error {
	f.methods = append(f.methods, method)
	return nil
}
func (f *fakeRPC) Subscribe(method string, ch chan<- cdp.Event) func() { return func() {} }
func (f *fakeRPC) OnClose(fn func(error))                              {}
func (f *fakeRPC) Close() error                                       { return nil }

func TestContinueSetsExpectingResumedEventOnly(t *testing.T) {
	c := New(&fakeRPC{})
	if _, err := c.Continue(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !c.ConsumeExpectingResumedEvent() {
		t.Fatal("continue must set expectingResumedEvent")
	}
	if _, ok := c.ConsumeExpectingStopReason(); ok {
		t.Fatal("continue must not set an expectingStopReason")
	}
}

func TestNextSetsBothFlags(t *testing.T) {
	c := New(&fakeRPC{})
	if _, err := c.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !c.ConsumeExpectingResumedEvent() {
		t.Fatal("next must set expectingResumedEvent")
	}
	reason, ok := c.ConsumeExpectingStopReason()
	if !ok || reason != "step" {
		t.Fatalf("got %q, %v; want \"step\", true", reason, ok)
	}
}

func TestPauseDoesNotSetExpectingResumedEvent(t *testing.T) {
	c := New(&fakeRPC{})
	if _, err := c.Pause(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.ConsumeExpectingResumedEvent() {
		t.Fatal("pause must NOT set expectingResumedEvent (spec §9 asymmetry, preserved faithfully)")
	}
	reason, ok := c.ConsumeExpectingStopReason()
	if !ok || reason != "user_request" {
		t.Fatalf("got %q, %v; want \"user_request\", true", reason, ok)
	}
}

func TestAwaitCompletionReturnsImmediatelyWhenCompleted(t *testing.T) {
	c := New(&fakeRPC{})
	token, _ := c.Continue(context.Background())
	c.Complete(token)

	start := time.Now()
	c.AwaitCompletion(token)
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("AwaitCompletion should return immediately once Complete was called")
	}
}

func TestAwaitCompletionTimesOutBoundedBy300ms(t *testing.T) {
	c := New(&fakeRPC{})
	token, _ := c.Continue(context.Background())

	start := time.Now()
	c.AwaitCompletion(token)
	elapsed := time.Since(start)
	if elapsed < CompletionBound {
		t.Fatalf("AwaitCompletion returned too early: %v", elapsed)
	}
	if elapsed > CompletionBound+100*time.Millisecond {
		t.Fatalf("AwaitCompletion took too long: %v", elapsed)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	c := New(&fakeRPC{})
	token, _ := c.Continue(context.Background())
	c.Complete(token)
	c.Complete(token) // must not panic on double-close
}

func TestIssuedCDPMethodNames(t *testing.T) {
	rpc := &fakeRPC{}
	c := New(rpc)
	ctx := context.Background()
	_, _ = c.Continue(ctx)
	_, _ = c.Next(ctx)
	_, _ = c.StepIn(ctx)
	_, _ = c.StepOut(ctx)
	_, _ = c.Pause(ctx)

	want := []string{"Debugger.resume", "Debugger.stepOver", "Debugger.stepInto", "Debugger.stepOut", "Debugger.pause"}
	if len(rpc.methods) != len(want) {
		t.Fatalf("got %v, want %v", rpc.methods, want)
	}
	for i := range want {
		if rpc.methods[i] != want[i] {
			t.Fatalf("got %v, want %v", rpc.methods, want)
		}
	}
}
