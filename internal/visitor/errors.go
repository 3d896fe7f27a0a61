package visitor

import (
	"errors"
	"fmt"

	"go-callgraph/internal/graph"
	"go-callgraph/internal/unit"
)

var (
	// ErrUnexpectedShape is returned when the instance resolver yields a
	// definition the classifier has no rule for.
	ErrUnexpectedShape = errors.New("unexpected resolved definition shape")
	// ErrMalformedQuery is returned when a method call node lacks the
	// type-dependent data needed to resolve it.
	ErrMalformedQuery = errors.New("method call without type-dependent definition")
)

// AnalysisError aborts the analysis of a unit at a specific node.
type AnalysisError struct {
	Node graph.NodeID
	Span graph.Span
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis aborted at %s (%s): %v", e.Node, e.Span, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

func shapeError(inst unit.Instance) error {
	return fmt.Errorf("%w: %s resolved to %s", ErrUnexpectedShape, inst.Def, inst.Shape)
}
