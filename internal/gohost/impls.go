package gohost

import (
	"go/ast"
	"go/types"
	"sort"

	"go-callgraph/internal/graph"
	"go-callgraph/internal/unit"
)

type localIface struct {
	id  graph.DefID
	typ *types.Interface
}

// indexImpls records, for every method declared in the package, the local
// interfaces its receiver type implements through T or *T.
//
// Generic receivers and generic interfaces are not checked: Implements is
// unspecified for uninstantiated types, so their methods stay unlinked.
func (h *Host) indexImpls() {
	ifaces := h.localInterfaces()

	cache := make(map[*types.Named][]graph.DefID)
	for _, f := range h.pkg.Files {
		for _, decl := range f.Decls {
			d, ok := decl.(*ast.FuncDecl)
			if !ok || d.Recv == nil {
				continue
			}
			fn, ok := h.pkg.Info.Defs[d.Name].(*types.Func)
			if !ok {
				continue
			}
			named := receiverNamed(fn.Type().(*types.Signature).Recv().Type())
			if named == nil {
				continue
			}
			traits, seen := cache[named]
			if !seen {
				traits = implemented(named, ifaces)
				cache[named] = traits
			}
			h.impls[h.idOf(fn)] = unit.Impl{Self: string(typeID(named.Obj())), Traits: traits}
		}
	}
}

// localInterfaces returns the non-empty, non-generic named interfaces of
// the package, including those declared in function bodies, sorted by id.
func (h *Host) localInterfaces() []localIface {
	var out []localIface
	scope := h.pkg.Types.Scope()
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || tn.IsAlias() {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok || named.TypeParams().Len() > 0 {
			continue
		}
		iface, ok := named.Underlying().(*types.Interface)
		if !ok || iface.NumMethods() == 0 {
			continue
		}
		out = append(out, localIface{id: typeID(tn), typ: iface})
	}
	for _, li := range h.scopedIfaces {
		if li.typ.NumMethods() > 0 {
			out = append(out, li)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func implemented(named *types.Named, ifaces []localIface) []graph.DefID {
	if named.TypeParams().Len() > 0 {
		return nil
	}
	if types.IsInterface(named) {
		return nil
	}
	var out []graph.DefID
	ptr := types.NewPointer(named)
	for _, iface := range ifaces {
		if types.Implements(named, iface.typ) || types.Implements(ptr, iface.typ) {
			out = append(out, iface.id)
		}
	}
	return out
}
