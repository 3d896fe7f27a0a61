package gohost

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"

	"go-callgraph/internal/graph"
	"go-callgraph/internal/unit"
)

// builder converts the syntax of one package into unit nodes.
type builder struct {
	host   *Host
	inits  int
	blanks int
	// scoped counts function-scoped type ids already handed out.
	scoped map[graph.DefID]int

	// per file
	generated bool
	env       graph.DefID
	// local is set while converting function bodies and initializers.
	local bool
}

func (b *builder) file(f *ast.File) []*unit.Node {
	b.generated = ast.IsGenerated(f)
	var items []*unit.Node
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if n := b.funcDecl(d); n != nil {
				items = append(items, n)
			}
		case *ast.GenDecl:
			items = append(items, b.genDecl(d)...)
		}
	}
	return items
}

func (b *builder) funcDecl(d *ast.FuncDecl) *unit.Node {
	h := b.host
	fn, ok := h.pkg.Info.Defs[d.Name].(*types.Func)
	if !ok {
		return nil
	}
	switch {
	case d.Recv == nil && d.Name.Name == "init":
		b.inits++
		h.ids[fn] = graph.DefID(fmt.Sprintf("%s.init#%d", h.pkg.Path, b.inits))
	case d.Name.Name == "_":
		b.blanks++
		h.ids[fn] = graph.DefID(fmt.Sprintf("%s#%d", funcID(fn), b.blanks))
	}
	def := h.idOf(fn)

	n := &unit.Node{
		ID:   h.nodeID(d.Pos()),
		Kind: unit.ItemFn,
		Span: h.span(d, b.generated),
		Def:  def,
		Name: d.Name.Name,
	}
	h.spans[def] = n.Span
	if d.Body == nil {
		// Implemented outside Go, e.g. in assembly.
		return &unit.Node{ID: n.ID, Kind: unit.ItemOther, Span: n.Span}
	}
	if d.Recv != nil {
		n.Kind = unit.ItemImplMethod
	}

	b.env = def
	n.Children = b.exprs(d.Body)
	b.env = ""
	return n
}

func (b *builder) genDecl(d *ast.GenDecl) []*unit.Node {
	h := b.host
	var items []*unit.Node
	switch d.Tok {
	case token.TYPE:
		for _, spec := range d.Specs {
			if n := b.interfaceSpec(spec.(*ast.TypeSpec)); n != nil {
				items = append(items, n)
			}
		}
	case token.VAR, token.CONST:
		for _, spec := range d.Specs {
			vs := spec.(*ast.ValueSpec)
			n := &unit.Node{
				ID:   h.nodeID(vs.Pos()),
				Kind: unit.ItemOther,
				Span: h.span(vs, b.generated),
			}
			for _, v := range vs.Values {
				n.Children = append(n.Children, b.exprs(v)...)
			}
			items = append(items, n)
		}
	}
	return items
}

// interfaceSpec turns a named interface into a trait item with one method
// declaration per explicitly declared method. Interfaces declared inside a
// function body are named after that function.
func (b *builder) interfaceSpec(ts *ast.TypeSpec) *unit.Node {
	h := b.host
	it, ok := ts.Type.(*ast.InterfaceType)
	if !ok {
		return nil
	}
	obj, ok := h.pkg.Info.Defs[ts.Name].(*types.TypeName)
	if !ok {
		return nil
	}
	iface, ok := obj.Type().Underlying().(*types.Interface)
	if !ok {
		return nil
	}
	trait := typeID(obj)
	if b.local {
		trait = b.scopedID(obj.Name())
		h.scopedIfaces = append(h.scopedIfaces, localIface{id: trait, typ: iface})
	}
	n := &unit.Node{
		ID:   h.nodeID(ts.Pos()),
		Kind: unit.ItemTrait,
		Span: h.span(ts, b.generated),
		Def:  trait,
		Name: ts.Name.Name,
	}
	h.spans[trait] = n.Span

	for _, field := range it.Methods.List {
		for _, name := range field.Names {
			fn, ok := h.pkg.Info.Defs[name].(*types.Func)
			if !ok {
				continue
			}
			if b.local {
				h.ids[fn] = trait + "." + graph.DefID(name.Name)
			}
			def := h.idOf(fn)
			m := &unit.Node{
				ID:   h.nodeID(name.Pos()),
				Kind: unit.ItemTraitMethod,
				Span: h.span(field, b.generated),
				Def:  def,
				Name: name.Name,
			}
			h.spans[def] = m.Span
			n.Children = append(n.Children, m)
		}
	}
	h.traits[trait] = b.traitItems(iface)
	return n
}

// scopedID names a type declared in the body of the current function, or
// of a function literal in a package-level initializer (pkg.func.Name).
// Repeated names in one scope get a #N suffix.
func (b *builder) scopedID(name string) graph.DefID {
	scope := b.env
	if scope == "" {
		scope = graph.DefID(b.host.pkg.Path + ".func")
	}
	id := scope + "." + graph.DefID(name)
	b.scoped[id]++
	if n := b.scoped[id]; n > 1 {
		id = graph.DefID(fmt.Sprintf("%s#%d", id, n))
	}
	return id
}

// traitItems lists explicit methods first, in id order, then methods
// promoted from embedded interfaces of this package. Methods promoted from
// other packages have no declaration in the unit and are left out.
func (b *builder) traitItems(iface *types.Interface) []unit.TraitItem {
	h := b.host
	var items []unit.TraitItem
	explicit := make(map[*types.Func]bool)
	for i := 0; i < iface.NumExplicitMethods(); i++ {
		m := iface.ExplicitMethod(i)
		explicit[m] = true
		items = append(items, unit.TraitItem{Name: m.Name(), Def: h.idOf(m)})
	}
	for i := 0; i < iface.NumMethods(); i++ {
		m := iface.Method(i)
		if explicit[m] || m.Pkg() != h.pkg.Types {
			continue
		}
		def := h.idOf(m)
		h.remember(def, m)
		items = append(items, unit.TraitItem{Name: m.Name(), Def: def})
	}
	return items
}

// exprs collects the path and method-call nodes under root, nested the
// way they nest in the syntax tree.
func (b *builder) exprs(root ast.Node) []*unit.Node {
	b.local = true
	defer func() { b.local = false }()

	var top []*unit.Node
	// parents[i] is the innermost unit node enclosing the i-th open AST node.
	var parents []*unit.Node

	ast.Inspect(root, func(n ast.Node) bool {
		if n == nil {
			parents = parents[:len(parents)-1]
			return false
		}
		var parent *unit.Node
		if len(parents) > 0 {
			parent = parents[len(parents)-1]
		}
		un := b.expr(n)
		if un != nil {
			if parent == nil {
				top = append(top, un)
			} else {
				parent.Children = append(parent.Children, un)
			}
			if un.Kind == unit.ItemTrait {
				// Method signatures hold no calls.
				return false
			}
			parent = un
		}
		parents = append(parents, parent)
		return true
	})
	return top
}

// expr returns the unit node for n, or nil when n is neither a function
// reference nor a method selection.
func (b *builder) expr(n ast.Node) *unit.Node {
	h := b.host
	info := h.pkg.Info

	switch e := n.(type) {
	case *ast.Ident:
		fn, ok := info.Uses[e].(*types.Func)
		if !ok || fn.Type().(*types.Signature).Recv() != nil {
			return nil
		}
		return b.path(e, e, fn)

	case *ast.SelectorExpr:
		sel, ok := info.Selections[e]
		if !ok {
			// Qualified identifiers are handled through their Sel ident.
			return nil
		}
		fn, ok := sel.Obj().(*types.Func)
		if !ok {
			return nil
		}
		switch sel.Kind() {
		case types.MethodExpr:
			return b.path(e, e.Sel, fn)
		case types.MethodVal:
			return b.methodCall(e, sel, fn)
		}

	case *ast.TypeSpec:
		return b.interfaceSpec(e)

	case *ast.FuncLit:
		return &unit.Node{
			ID:   h.nodeID(e.Pos()),
			Kind: unit.ExprOther,
			Span: h.span(e, b.generated),
		}
	}
	return nil
}

func (b *builder) path(e ast.Expr, name *ast.Ident, fn *types.Func) *unit.Node {
	h := b.host
	fn = fn.Origin()
	def := h.idOf(fn)
	h.remember(def, fn)
	return &unit.Node{
		ID:   h.nodeID(name.Pos()),
		Kind: unit.ExprPath,
		Span: h.span(e, b.generated),
		Def:  def,
	}
}

func (b *builder) methodCall(e *ast.SelectorExpr, sel *types.Selection, fn *types.Func) *unit.Node {
	h := b.host
	id := h.nodeID(e.Sel.Pos())
	h.sites[id] = sel
	return &unit.Node{
		ID:   id,
		Kind: unit.ExprMethodCall,
		Span: h.span(e, b.generated),
		Call: &unit.MethodCall{
			Method: h.idOf(fn.Origin()),
			Env:    b.env,
			Args:   typeArgs(h.pkg.Types, sel.Recv()),
		},
	}
}

// typeArgs renders the receiver type followed by its type arguments.
func typeArgs(pkg *types.Package, recv types.Type) []string {
	qual := types.RelativeTo(pkg)
	args := []string{types.TypeString(recv, qual)}
	if named := receiverNamed(recv); named != nil {
		targs := named.TypeArgs()
		for i := 0; i < targs.Len(); i++ {
			args = append(args, types.TypeString(targs.At(i), qual))
		}
	}
	return args
}
