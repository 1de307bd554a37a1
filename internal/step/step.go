// Package step implements the StepController (spec §4.6): the five
// resume-family commands (continue, next, stepIn, stepOut, pause), the
// expectingResumedEvent/expectingStopReason coordination flags, and the
// single-slot completion-token rendezvous that orders a Stopped event after
// the DAP response to the command that induced the pause (spec §4.1
// "Ordering of Stopped relative to step response", §5).
package step

import (
	"context"
	"sync"
	"time"

	"github.com/dapbridge/dap-cdp-bridge/internal/cdp"
)

// CompletionBound is the timeout the Adapter waits for a step's completion
// token before emitting Stopped regardless (spec §4.1: "bounded by a 300 ms
// timeout").
const CompletionBound = 300 * time.Millisecond

// Token is a single-use completion signal: closed exactly once, by
// Complete, when the DAP response for the command that minted it has been
// sent.
type Token chan struct{}

func newToken() Token { return make(chan struct{}) }

// Controller issues the five CDP resume-family commands and tracks the
// session-wide coordination flags spec.md's Data Model lists under
// "Session-wide flags".
type Controller struct {
	rpc             cdp.RpcClient
	completionBound time.Duration

	mu                    sync.Mutex
	expectingResumedEvent bool
	expectingStopReason   string
	currentStep           Token
}

// New returns a Controller with no pending step, using CompletionBound as
// its completion-rendezvous timeout.
func New(rpc cdp.RpcClient) *Controller {
	return NewWithTimeout(rpc, CompletionBound)
}

// NewWithTimeout is New with the completion-rendezvous timeout overridden —
// wired from config.Config.StepTimeout in cmd/bridged instead of always
// using the spec's 300ms default.
func NewWithTimeout(rpc cdp.RpcClient, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = CompletionBound
	}
	return &Controller{rpc: rpc, completionBound: timeout}
}

// Continue issues Debugger.resume.
func (c *Controller) Continue(ctx context.Context) (Token, error) {
	return c.issue(ctx, "Debugger.resume", true, "")
}

// Next issues Debugger.stepOver.
func (c *Controller) Next(ctx context.Context) (Token, error) {
	return c.issue(ctx, "Debugger.stepOver", true, "step")
}

// StepIn issues Debugger.stepInto.
func (c *Controller) StepIn(ctx context.Context) (Token, error) {
	return c.issue(ctx, "Debugger.stepInto", true, "step")
}

// StepOut issues Debugger.stepOut.
func (c *Controller) StepOut(ctx context.Context) (Token, error) {
	return c.issue(ctx, "Debugger.stepOut", true, "step")
}

// Pause issues Debugger.pause. Per the faithfully-preserved spec §9 quirk,
// pause sets expectingStopReason but — unlike the other four commands —
// does NOT set expectingResumedEvent.
func (c *Controller) Pause(ctx context.Context) (Token, error) {
	return c.issue(ctx, "Debugger.pause", false, "user_request")
}

func (c *Controller) issue(ctx context.Context, method string, setResumedFlag bool, stopReason string) (Token, error) {
	c.mu.Lock()
	if setResumedFlag {
		c.expectingResumedEvent = true
	}
	if stopReason != "" {
		c.expectingStopReason = stopReason
	}
	token := newToken()
	c.currentStep = token
	c.mu.Unlock()

	if err := c.rpc.Call(ctx, method, struct{}{}, nil); err != nil {
		return token, err
	}
	return token, nil
}

// Complete signals that the DAP response for the command that minted token
// has been sent. Safe to call more than once or with a stale token.
func (c *Controller) Complete(token Token) {
	select {
	case <-token:
	default:
		close(token)
	}
}

// AwaitCompletion blocks until token is completed or the Controller's
// completion timeout (CompletionBound unless set via NewWithTimeout)
// elapses, whichever comes first — the Adapter calls this before emitting
// Stopped so the editor never sees Stopped before the step's own response.
func (c *Controller) AwaitCompletion(token Token) {
	if token == nil {
		return
	}
	select {
	case <-token:
	case <-time.After(c.completionBound):
	}
}

// ConsumeExpectingStopReason returns the pending stop reason set by the
// last step command, if any, and clears it (spec §4.1's stop-reason
// selection: "expectingStopReason ← cleared").
func (c *Controller) ConsumeExpectingStopReason() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reason := c.expectingStopReason
	c.expectingStopReason = ""
	return reason, reason != ""
}

// ConsumeExpectingResumedEvent reports whether the next Debugger.resumed
// event's Continued emission should be suppressed, and clears the flag.
func (c *Controller) ConsumeExpectingResumedEvent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.expectingResumedEvent
	c.expectingResumedEvent = false
	return v
}

// CurrentStep returns the token minted by the most recent step command,
// whether or not it has been completed yet; nil before the first command.
func (c *Controller) CurrentStep() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentStep
}
