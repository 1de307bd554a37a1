package transform

import (
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/go-dap"
)

// PathTransformer converts between DAP client-visible local filesystem
// paths and the file:// URLs the runtime reports in Debugger.scriptParsed.
// placeholder:// URLs (internal/cdp.PlaceholderURL) pass through unchanged:
// a script with no url has no local file to map to.
type PathTransformer struct {
	Noop

	mu        sync.Mutex
	pathToURL map[string]string
	urlToPath map[string]string
}

// NewPathTransformer returns an empty PathTransformer.
func NewPathTransformer() *PathTransformer {
	return &PathTransformer{
		pathToURL: make(map[string]string),
		urlToPath: make(map[string]string),
	}
}

// ScriptParsed records the url↔path association for a freshly parsed
// script so later lookups in either direction are O(1) instead of
// re-deriving the conversion.
func (t *PathTransformer) ScriptParsed(url_, sourceMapURL string) []string {
	if strings.HasPrefix(url_, "placeholder://") {
		return nil
	}
	p := t.urlToLocalPath(url_)
	if p == "" {
		return nil
	}
	t.mu.Lock()
	t.pathToURL[p] = url_
	t.urlToPath[url_] = p
	t.mu.Unlock()
	return nil
}

// GetTargetPathFromClientPath maps a local filesystem path to the file://
// URL the runtime would report for it.
func (t *PathTransformer) GetTargetPathFromClientPath(p string) string {
	t.mu.Lock()
	if u, ok := t.pathToURL[p]; ok {
		t.mu.Unlock()
		return u
	}
	t.mu.Unlock()
	return t.localPathToURL(p)
}

// GetClientPathFromTargetPath maps a file:// URL back to a local filesystem
// path.
func (t *PathTransformer) GetClientPathFromTargetPath(u string) string {
	if strings.HasPrefix(u, "placeholder://") {
		return ""
	}
	t.mu.Lock()
	if p, ok := t.urlToPath[u]; ok {
		t.mu.Unlock()
		return p
	}
	t.mu.Unlock()
	return t.urlToLocalPath(u)
}

func (t *PathTransformer) localPathToURL(p string) string {
	if p == "" {
		return ""
	}
	abs := filepath.ToSlash(p)
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}
	return "file://" + abs
}

func (t *PathTransformer) urlToLocalPath(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme != "file" {
		return ""
	}
	return filepath.FromSlash(parsed.Path)
}

// BreakpointResolved does nothing: it records no path and does not set the
// Breakpoint's Source, so the Breakpoint event carries whatever Source the
// caller already put on it.
func (t *PathTransformer) BreakpointResolved(bp dap.Breakpoint, path string) {}

// ClearTargetContext drops every url/path association recorded so far,
// called when the runtime's global object is cleared (navigation, reload).
func (t *PathTransformer) ClearTargetContext() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pathToURL = make(map[string]string)
	t.urlToPath = make(map[string]string)
}
