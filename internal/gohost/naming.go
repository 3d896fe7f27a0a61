package gohost

import (
	"go/types"

	"go-callgraph/internal/graph"
)

// funcID names a function or method as pkgpath.Func or
// pkgpath.Recv.Method. Pointer receivers and type arguments are dropped,
// so (*T).M and T[K].M are both pkgpath.T.M.
func funcID(fn *types.Func) graph.DefID {
	if fn.Pkg() == nil {
		return graph.DefID(fn.FullName())
	}
	pkgPath := fn.Pkg().Path()

	sig := fn.Type().(*types.Signature)
	if recv := sig.Recv(); recv != nil {
		if named := receiverNamed(recv.Type()); named != nil {
			return graph.DefID(pkgPath + "." + named.Obj().Name() + "." + fn.Name())
		}
		return graph.DefID(fn.FullName())
	}
	return graph.DefID(pkgPath + "." + fn.Name())
}

// typeID names a declared type as pkgpath.Name.
func typeID(obj *types.TypeName) graph.DefID {
	if obj.Pkg() == nil {
		return graph.DefID(obj.Name())
	}
	return graph.DefID(obj.Pkg().Path() + "." + obj.Name())
}

// receiverNamed returns the named type behind T or *T.
func receiverNamed(t types.Type) *types.Named {
	t = deref(t)
	named, _ := t.(*types.Named)
	return named
}

func deref(t types.Type) types.Type {
	t = types.Unalias(t)
	if ptr, ok := t.(*types.Pointer); ok {
		return types.Unalias(ptr.Elem())
	}
	return t
}

// isInterfaceMethod reports whether fn is declared by an interface.
func isInterfaceMethod(fn *types.Func) bool {
	recv := fn.Type().(*types.Signature).Recv()
	if recv == nil {
		return false
	}
	return types.IsInterface(recv.Type())
}
