// Package diag carries structured diagnostics from request resolution to the
// surrounding build. Diagnostics describe recoverable problems: the affected
// request still compiles, usually to code that throws when it is executed.
package diag

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Span locates a diagnostic in source. Line and Column are 1-based; Start and
// End are byte offsets.
type Span struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Start  int    `json:"start,omitempty"`
	End    int    `json:"end,omitempty"`
}

func (s Span) IsZero() bool {
	return s == Span{}
}

func (s Span) String() string {
	if s.File == "" {
		return ""
	}
	if s.Line == 0 {
		return s.File
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Hint     string   `json:"hint,omitempty"`
	Span     Span     `json:"span"`
}

func (d Diagnostic) String() string {
	msg := d.Message
	if d.Code != "" {
		msg = fmt.Sprintf("[%s] %s", d.Code, msg)
	}
	if location := d.Span.String(); location != "" {
		msg = location + ": " + msg
	}
	return d.Severity.String() + ": " + msg
}

// Sink receives diagnostics. Implementations must be safe for concurrent use.
type Sink interface {
	Report(d Diagnostic)
}

type nopSink struct{}

func (nopSink) Report(Diagnostic) {}

// Nop discards every diagnostic.
var Nop Sink = nopSink{}

type spanSink struct {
	next Sink
	span Span
}

func (s spanSink) Report(d Diagnostic) {
	if d.Span.IsZero() {
		d.Span = s.span
	}
	s.next.Report(d)
}

// WithSpan fills in span on diagnostics that carry no location of their own.
func WithSpan(next Sink, span Span) Sink {
	if next == nil {
		next = Nop
	}
	return spanSink{next: next, span: span}
}

type teeSink []Sink

func (t teeSink) Report(d Diagnostic) {
	for _, sink := range t {
		sink.Report(d)
	}
}

func Tee(sinks ...Sink) Sink {
	out := make(teeSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	return out
}

// Collector accumulates diagnostics for later reporting.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, d)
}

// Diagnostics returns a copy ordered by file, position, code and message.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	out := append([]Diagnostic(nil), c.items...)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Span.File != b.Span.File {
			return a.Span.File < b.Span.File
		}
		if a.Span.Line != b.Span.Line {
			return a.Span.Line < b.Span.Line
		}
		if a.Span.Column != b.Span.Column {
			return a.Span.Column < b.Span.Column
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
	return out
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Collector) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range c.items {
		if item.Severity >= SeverityError {
			return true
		}
	}
	return false
}

// Summary renders one line per diagnostic.
func Summary(items []Diagnostic) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, item.String())
	}
	return strings.Join(lines, "\n")
}
