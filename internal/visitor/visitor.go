// Package visitor builds the call graph of one type-checked unit in a single
// top-down pass over its item tree.
//
// The walk tracks the innermost enclosing function on an explicit stack:
// entering a function-shaped item pushes its definition, leaving pops it.
// Every call recorded while the stack is non-empty is attributed to the top
// entry; calls outside any function (package-level initializers) have no
// caller.
package visitor

import (
	"io"

	"github.com/sirupsen/logrus"

	"go-callgraph/internal/graph"
	"go-callgraph/internal/unit"
)

// Visitor walks the items of a unit.Host and fills a graph.Registry.
type Visitor struct {
	host unit.Host
	log  logrus.FieldLogger
}

// Option configures a Visitor.
type Option func(*Visitor)

// WithLogger sets the logger used for debug traces.
func WithLogger(l logrus.FieldLogger) Option {
	return func(v *Visitor) {
		if l != nil {
			v.log = l
		}
	}
}

// New creates a Visitor for host.
func New(host unit.Host, opts ...Option) *Visitor {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	v := &Visitor{host: host, log: quiet}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Analyze runs one traversal over host and returns its dump. On error no
// report is produced.
func Analyze(host unit.Host, opts ...Option) (*graph.Report, error) {
	reg, err := New(host, opts...).Run()
	if err != nil {
		return nil, err
	}
	return reg.Dump(), nil
}

// Run walks every item once and returns the filled registry. Each call
// starts from an empty registry and an empty scope.
func (v *Visitor) Run() (*graph.Registry, error) {
	w := &walker{
		host: v.host,
		log:  v.log,
		reg:  graph.NewRegistry(),
	}
	for _, item := range v.host.Items() {
		if err := w.visit(item); err != nil {
			return nil, err
		}
	}
	return w.reg, nil
}

// frame is one entry of the enclosing-function stack.
type frame struct {
	def  graph.DefID
	span graph.Span
}

type walker struct {
	host  unit.Host
	log   logrus.FieldLogger
	reg   *graph.Registry
	scope []frame
}

// current returns the innermost enclosing function, if any.
func (w *walker) current() (frame, bool) {
	if len(w.scope) == 0 {
		return frame{}, false
	}
	return w.scope[len(w.scope)-1], true
}

func (w *walker) enter(def graph.DefID, span graph.Span) {
	w.scope = append(w.scope, frame{def: def, span: span})
}

func (w *walker) leave() {
	w.scope = w.scope[:len(w.scope)-1]
}

// within walks children with def as the enclosing function.
func (w *walker) within(def graph.DefID, span graph.Span, children []*unit.Node) error {
	w.enter(def, span)
	defer w.leave()
	return w.visitAll(children)
}

func (w *walker) visitAll(nodes []*unit.Node) error {
	for _, n := range nodes {
		if err := w.visit(n); err != nil {
			return err
		}
	}
	return nil
}

// generated reports whether span belongs to code the user did not write.
func generated(span graph.Span) bool {
	return span.FromExpansion || span.IsDummy()
}

func (w *walker) visit(n *unit.Node) error {
	if n == nil {
		return nil
	}
	if generated(n.Span) {
		w.log.WithFields(logrus.Fields{"node": n.ID, "kind": n.Kind}).Debug("skipping generated subtree")
		return nil
	}

	switch n.Kind {
	case unit.ItemFn:
		w.reg.AddFunction(n.Def, n.Span)
		return w.within(n.Def, n.Span, n.Children)

	case unit.ItemTraitMethod:
		w.reg.AddMethodDecl(n.Def, n.Span)
		if !n.HasBody {
			return w.visitAll(n.Children)
		}
		// A default body is both a declaration and its own implementation.
		w.reg.AddFunction(n.Def, n.Span)
		w.reg.AddMethodImpl(n.Def, n.Def)
		return w.within(n.Def, n.Span, n.Children)

	case unit.ItemImplMethod:
		w.reg.AddFunction(n.Def, n.Span)
		w.link(n)
		return w.within(n.Def, n.Span, n.Children)

	case unit.ExprPath:
		w.recordPath(n)
		return w.visitAll(n.Children)

	case unit.ExprMethodCall:
		if err := w.recordMethodCall(n); err != nil {
			return err
		}
		return w.visitAll(n.Children)

	default:
		return w.visitAll(n.Children)
	}
}
