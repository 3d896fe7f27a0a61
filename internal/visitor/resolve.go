package visitor

import (
	"github.com/sirupsen/logrus"

	"go-callgraph/internal/graph"
	"go-callgraph/internal/unit"
)

// recordPath records a Static call for a path that resolves to a
// definition. Unresolved paths are ignored.
func (w *walker) recordPath(n *unit.Node) {
	if n.Def == "" {
		return
	}
	w.addCall(n, n.Def, graph.Static)
}

// recordMethodCall asks the instance resolver for the target of a method
// call and records the classified edge.
func (w *walker) recordMethodCall(n *unit.Node) error {
	if n.Call == nil || n.Call.Method == "" {
		return &AnalysisError{Node: n.ID, Span: n.Span, Err: ErrMalformedQuery}
	}

	env := n.Call.Env
	if env == "" {
		if cur, ok := w.current(); ok {
			env = cur.def
		}
	}
	inst, ok := w.host.Resolve(unit.Query{
		Site:   n.ID,
		Method: n.Call.Method,
		Env:    env,
		Args:   n.Call.Args,
	})
	if !ok {
		w.log.WithFields(logrus.Fields{"site": n.ID, "method": n.Call.Method}).Debug("method call not resolvable")
		return nil
	}

	kind, err := classify(inst)
	if err != nil {
		return &AnalysisError{Node: n.ID, Span: n.Span, Err: err}
	}
	w.addCall(n, inst.Def, kind)
	return nil
}

// classify maps a resolved instance to a call kind. A local trait method
// means the resolver could only name the declaration, so the call is
// dispatched at runtime.
func classify(inst unit.Instance) (graph.CallKind, error) {
	switch inst.Shape {
	case unit.ShapeTraitMethod:
		if inst.Local {
			return graph.Dynamic, nil
		}
		return graph.Static, nil
	case unit.ShapeImplMethod, unit.ShapeFreeItem, unit.ShapeForeign:
		return graph.Static, nil
	default:
		return 0, shapeError(inst)
	}
}

func (w *walker) addCall(n *unit.Node, callee graph.DefID, kind graph.CallKind) {
	c := graph.Call{
		Site:       n.ID,
		SiteSpan:   n.Span,
		Callee:     callee,
		CalleeSpan: w.host.DefSpan(callee),
		Kind:       kind,
	}
	if cur, ok := w.current(); ok {
		c.Caller = cur.def
		c.CallerSpan = cur.span
	}
	w.reg.AddCall(c)
}
