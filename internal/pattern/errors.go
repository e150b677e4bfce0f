package pattern

import "strings"

// Phase indicates where the error occurred.
type Phase string

const (
	PhaseResolve    Phase = "resolve"
	PhaseSynthesize Phase = "synthesize"
)

// ErrorKind categorizes the error.
type ErrorKind string

const (
	KindUnsupportedComplexExpression ErrorKind = "unsupported-complex-expression"
	KindInvalidLoadingStrategy       ErrorKind = "invalid-loading-strategy"
	KindNilMapping                   ErrorKind = "nil-mapping"
)

// Error is returned for conditions that must stop the build. Problems with a
// single request are not errors; they resolve to Invalid.
type Error struct {
	Phase  Phase
	Kind   ErrorKind
	Detail string
	Cause  error
}

var (
	ErrUnsupportedComplexExpression = &Error{Phase: PhaseSynthesize, Kind: KindUnsupportedComplexExpression}
	ErrInvalidLoadingStrategy       = &Error{Phase: PhaseResolve, Kind: KindInvalidLoadingStrategy}
	ErrNilMapping                   = &Error{Phase: PhaseSynthesize, Kind: KindNilMapping}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same phase and kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}
