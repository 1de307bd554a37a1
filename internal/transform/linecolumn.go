package transform

import "github.com/google/go-dap"

// LineColumnTransformer adjusts between DAP's 1-based lines/columns and
// CDP's 0-based lines/columns. It carries no state of its own: its
// SetBreakpoints, SetBreakpointsResponse and StackTraceResponse hooks
// rewrite positions in place, using the ToTarget/FromTarget helpers below,
// and the Adapter reaches it only through the Pipeline. Every other hook is
// the embedded Noop.
type LineColumnTransformer struct {
	Noop
}

// ToTargetLine converts a DAP (1-based) line to a CDP (0-based) line.
func (LineColumnTransformer) ToTargetLine(line int) int { return line - 1 }

// FromTargetLine converts a CDP (0-based) line to a DAP (1-based) line.
func (LineColumnTransformer) FromTargetLine(line int) int { return line + 1 }

// ToTargetColumn converts a DAP (1-based) column to a CDP (0-based) column.
func (LineColumnTransformer) ToTargetColumn(col int) int {
	if col <= 0 {
		return 0
	}
	return col - 1
}

// FromTargetColumn converts a CDP (0-based) column to a DAP (1-based) column.
func (LineColumnTransformer) FromTargetColumn(col int) int { return col + 1 }

// SetBreakpoints rewrites each source breakpoint's line/column into target
// (0-based) coordinates in place.
func (t LineColumnTransformer) SetBreakpoints(args *dap.SetBreakpointsArguments, requestSeq int) {
	for i := range args.Breakpoints {
		args.Breakpoints[i].Line = t.ToTargetLine(args.Breakpoints[i].Line)
		if args.Breakpoints[i].Column > 0 {
			args.Breakpoints[i].Column = t.ToTargetColumn(args.Breakpoints[i].Column)
		}
	}
}

// SetBreakpointsResponse rewrites each resulting breakpoint's line/column
// back into client (1-based) coordinates in place.
func (t LineColumnTransformer) SetBreakpointsResponse(body *dap.SetBreakpointsResponseBody, requestSeq int) {
	for i := range body.Breakpoints {
		if body.Breakpoints[i].Line > 0 {
			body.Breakpoints[i].Line = t.FromTargetLine(body.Breakpoints[i].Line)
		}
		if body.Breakpoints[i].Column > 0 {
			body.Breakpoints[i].Column = t.FromTargetColumn(body.Breakpoints[i].Column)
		}
	}
}

// StackTraceResponse rewrites every frame's line/column back into client
// coordinates in place.
func (t LineColumnTransformer) StackTraceResponse(body *dap.StackTraceResponseBody) {
	for i := range body.StackFrames {
		body.StackFrames[i].Line = t.FromTargetLine(body.StackFrames[i].Line)
		if body.StackFrames[i].Column > 0 {
			body.StackFrames[i].Column = t.FromTargetColumn(body.StackFrames[i].Column)
		}
	}
}
