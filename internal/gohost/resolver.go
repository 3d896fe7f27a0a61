package gohost

import (
	"go/types"

	"go-callgraph/internal/unit"
)

// Resolve implements unit.InstanceResolver using the selection the type
// checker recorded for the call site.
//
// A receiver whose type is a type parameter has no concrete implementation
// until instantiation and is reported as not resolvable. A selection of an
// interface method resolves to the declaration only.
func (h *Host) Resolve(q unit.Query) (unit.Instance, bool) {
	sel, ok := h.sites[q.Site]
	if !ok {
		return unit.Instance{}, false
	}
	if _, isParam := deref(sel.Recv()).(*types.TypeParam); isParam {
		return unit.Instance{}, false
	}

	fn, ok := sel.Obj().(*types.Func)
	if !ok {
		return unit.Instance{Def: q.Method, Shape: unit.ShapeUnknown}, true
	}
	fn = fn.Origin()
	def := h.idOf(fn)
	h.remember(def, fn)

	inst := unit.Instance{Def: def, Local: h.local(fn)}
	switch {
	case isInterfaceMethod(fn):
		inst.Shape = unit.ShapeTraitMethod
	case inst.Local:
		inst.Shape = unit.ShapeImplMethod
	default:
		inst.Shape = unit.ShapeForeign
	}
	return inst, true
}
