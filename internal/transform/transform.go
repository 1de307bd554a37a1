// Package transform implements the three-stage transformer pipeline spec
// §4.5: line-column, source-map and path collaborators, each offering the
// same hook set and composed in a fixed order around every DAP request.
//
// Grounded on the teacher's (go-delve-mcp-dap-server) habit of keeping
// request/response shaping thin wrapper methods around dap.* structs; the
// pipeline shape itself mirrors docker-buildx's dap-adapter.go breakpointMap
// / sourceMap split between "what the client sent" and "what the runtime
// understands".
package transform

import "github.com/google/go-dap"

// Mapping is the result of translating a generated-code position to its
// authored-source position, or the zero value if no mapping exists.
type Mapping struct {
	Path   string
	Line   int
	Column int
	Ok     bool
}

// Transformer is the hook set every pipeline stage implements. Non-goal:
// spec §1 excludes implementing source-map parsing itself — the
// SourceMapTransformer stage below therefore has no authored sources of its
// own, but the seam stays in the pipeline so a real source-map collaborator
// can be substituted without touching the Adapter.
type Transformer interface {
	// ScriptParsed reports a newly parsed script and returns any authored
	// sources it maps to (empty for a transformer that doesn't split
	// generated code into authored files).
	ScriptParsed(url, sourceMapURL string) []string

	// GetGeneratedPathFromAuthoredPath maps an authored-source path back to
	// the generated path the runtime actually executes, or "" if unknown.
	GetGeneratedPathFromAuthoredPath(p string) string

	// GetTargetPathFromClientPath maps a DAP client-visible path to the
	// runtime-visible target path/URL, or "" if unchanged.
	GetTargetPathFromClientPath(p string) string

	// GetClientPathFromTargetPath is the inverse of GetTargetPathFromClientPath.
	GetClientPathFromTargetPath(p string) string

	// MapToAuthored maps a generated-code position to its authored-source
	// position.
	MapToAuthored(path string, line, column int) Mapping

	SetBreakpoints(args *dap.SetBreakpointsArguments, requestSeq int)
	SetBreakpointsResponse(body *dap.SetBreakpointsResponseBody, requestSeq int)
	BreakpointResolved(bp dap.Breakpoint, path string)
	StackTraceResponse(body *dap.StackTraceResponseBody)
	Launch(args map[string]interface{})
	Attach(args map[string]interface{})
	ClearTargetContext()
}

// Noop is a Transformer that performs no translation; every hook is a no-op
// or an identity passthrough. It is embedded by the concrete stages below so
// each only needs to override what it actually changes.
type Noop struct{}

func (Noop) ScriptParsed(url, sourceMapURL string) []string                   { return nil }
func (Noop) GetGeneratedPathFromAuthoredPath(p string) string                 { return "" }
func (Noop) GetTargetPathFromClientPath(p string) string                     { return "" }
func (Noop) GetClientPathFromTargetPath(p string) string                     { return "" }
func (Noop) MapToAuthored(path string, line, column int) Mapping             { return Mapping{} }
func (Noop) SetBreakpoints(args *dap.SetBreakpointsArguments, requestSeq int) {}
func (Noop) SetBreakpointsResponse(body *dap.SetBreakpointsResponseBody, requestSeq int) {
}
func (Noop) BreakpointResolved(bp dap.Breakpoint, path string) {}
func (Noop) StackTraceResponse(body *dap.StackTraceResponseBody) {}
func (Noop) Launch(args map[string]interface{})                 {}
func (Noop) Attach(args map[string]interface{})                 {}
func (Noop) ClearTargetContext()                                {}

// Pipeline composes the three collaborators in spec §4.5's fixed order:
// line-column, then source-map, then path. Forward (request-leg) calls run
// in that order; inverse (response-leg) calls run in the same order since
// every hook here is idempotent-per-stage rather than strictly
// forward/inverse paired.
type Pipeline struct {
	LineColumn Transformer
	SourceMap  Transformer
	Path       Transformer
}

// NewDefaultPipeline returns the pipeline the adapter uses when the caller
// hasn't supplied its own collaborators: a LineColumnTransformer, a
// no-op SourceMapTransformer (source-map parsing is out of scope), and a
// PathTransformer.
func NewDefaultPipeline() *Pipeline {
	return &Pipeline{
		LineColumn: &LineColumnTransformer{},
		SourceMap:  &SourceMapTransformer{},
		Path:       NewPathTransformer(),
	}
}

func (p *Pipeline) stages() []Transformer {
	return []Transformer{p.LineColumn, p.SourceMap, p.Path}
}

// ScriptParsed runs every stage and concatenates whatever authored sources
// each reports.
func (p *Pipeline) ScriptParsed(url, sourceMapURL string) []string {
	var out []string
	for _, s := range p.stages() {
		out = append(out, s.ScriptParsed(url, sourceMapURL)...)
	}
	return out
}

// GetClientPathFromTargetPath asks each stage in order, passing every stage
// the original path; the first stage that returns a nonempty path wins,
// matching the teacher's general mapping-collaborator pattern of "first hit
// stops the chain". If no stage maps it, path is returned unchanged.
func (p *Pipeline) GetClientPathFromTargetPath(path string) string {
	for _, s := range p.stages() {
		if mapped := s.GetClientPathFromTargetPath(path); mapped != "" {
			return mapped
		}
	}
	return path
}

// GetTargetPathFromClientPath is GetClientPathFromTargetPath's inverse.
func (p *Pipeline) GetTargetPathFromClientPath(path string) string {
	for _, s := range p.stages() {
		if mapped := s.GetTargetPathFromClientPath(path); mapped != "" {
			return mapped
		}
	}
	return path
}

// MapToAuthored tries each stage in order and returns the first mapping hit.
func (p *Pipeline) MapToAuthored(path string, line, column int) Mapping {
	for _, s := range p.stages() {
		if m := s.MapToAuthored(path, line, column); m.Ok {
			return m
		}
	}
	return Mapping{}
}

func (p *Pipeline) SetBreakpoints(args *dap.SetBreakpointsArguments, requestSeq int) {
	for _, s := range p.stages() {
		s.SetBreakpoints(args, requestSeq)
	}
}

func (p *Pipeline) SetBreakpointsResponse(body *dap.SetBreakpointsResponseBody, requestSeq int) {
	for _, s := range p.stages() {
		s.SetBreakpointsResponse(body, requestSeq)
	}
}

func (p *Pipeline) BreakpointResolved(bp dap.Breakpoint, path string) {
	for _, s := range p.stages() {
		s.BreakpointResolved(bp, path)
	}
}

func (p *Pipeline) StackTraceResponse(body *dap.StackTraceResponseBody) {
	for _, s := range p.stages() {
		s.StackTraceResponse(body)
	}
}

func (p *Pipeline) Launch(args map[string]interface{}) {
	for _, s := range p.stages() {
		s.Launch(args)
	}
}

func (p *Pipeline) Attach(args map[string]interface{}) {
	for _, s := range p.stages() {
		s.Attach(args)
	}
}

func (p *Pipeline) ClearTargetContext() {
	for _, s := range p.stages() {
		s.ClearTargetContext()
	}
}
