package graph

import "fmt"

// DefID names one declared item (function, method, interface method)
// within a unit.
type DefID string

// NodeID names one node of the program representation, e.g. a call site.
type NodeID string

// Span is a source range. A zero Span is a synthetic placeholder.
type Span struct {
	File      string `json:"file" yaml:"file"`
	StartLine int    `json:"start_line" yaml:"start_line"`
	StartCol  int    `json:"start_col" yaml:"start_col"`
	EndLine   int    `json:"end_line" yaml:"end_line"`
	EndCol    int    `json:"end_col" yaml:"end_col"`

	// FromExpansion marks code the user did not write by hand
	// (generated files, //line remapped regions).
	FromExpansion bool `json:"-" yaml:"-"`
}

// IsDummy reports whether s carries no source position.
func (s Span) IsDummy() bool {
	return s.File == "" && s.StartLine == 0
}

func (s Span) String() string {
	if s.IsDummy() {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d-%d:%d", s.File, s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// Less orders spans by file, then start, then end.
func (s Span) Less(o Span) bool {
	if s.File != o.File {
		return s.File < o.File
	}
	if s.StartLine != o.StartLine {
		return s.StartLine < o.StartLine
	}
	if s.StartCol != o.StartCol {
		return s.StartCol < o.StartCol
	}
	if s.EndLine != o.EndLine {
		return s.EndLine < o.EndLine
	}
	return s.EndCol < o.EndCol
}

// CallKind classifies a call edge.
type CallKind int

const (
	// Static calls resolve to one concrete implementation.
	Static CallKind = iota
	// Dynamic calls resolve only to an interface method declaration.
	Dynamic
)

func (k CallKind) String() string {
	switch k {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("CallKind(%d)", int(k))
	}
}

// Function is a function or method with a body.
type Function struct {
	ID   DefID `json:"id" yaml:"id"`
	Span Span  `json:"span" yaml:"span"`
}

// Call is a directed edge from the enclosing function of a call site to
// its callee. Caller is empty when the site is outside any function
// (package-level initializers).
type Call struct {
	Site       NodeID   `json:"site" yaml:"site"`
	SiteSpan   Span     `json:"site_span" yaml:"site_span"`
	Caller     DefID    `json:"caller,omitempty" yaml:"caller,omitempty"`
	CallerSpan Span     `json:"caller_span" yaml:"caller_span"`
	Callee     DefID    `json:"callee" yaml:"callee"`
	CalleeSpan Span     `json:"callee_span" yaml:"callee_span"`
	Kind       CallKind `json:"-" yaml:"-"`
}

// HasCaller reports whether the call occurs inside a tracked function.
func (c Call) HasCaller() bool {
	return c.Caller != ""
}

func (c Call) less(o Call) bool {
	if c.SiteSpan != o.SiteSpan {
		return c.SiteSpan.Less(o.SiteSpan)
	}
	if c.Site != o.Site {
		return c.Site < o.Site
	}
	if c.Caller != o.Caller {
		return c.Caller < o.Caller
	}
	if c.Callee != o.Callee {
		return c.Callee < o.Callee
	}
	if c.CallerSpan != o.CallerSpan {
		return c.CallerSpan.Less(o.CallerSpan)
	}
	return c.CalleeSpan.Less(o.CalleeSpan)
}
