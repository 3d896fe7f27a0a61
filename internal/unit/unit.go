// Package unit describes the type-checked program representation that the
// call graph visitor reads. A host (such as the Go type checker adapter in
// gohost) builds the node tree and answers the queries below; the visitor
// never mutates it.
package unit

import "go-callgraph/internal/graph"

// Kind tags a node of the program tree.
type Kind int

const (
	// ItemFn is a free function with a body.
	ItemFn Kind = iota
	// ItemTrait groups interface method declarations.
	ItemTrait
	// ItemTraitMethod is an interface method, optionally with a default body.
	ItemTraitMethod
	// ItemImpl groups the methods of one receiver type.
	ItemImpl
	// ItemImplMethod is a method with a body bound to a receiver type.
	ItemImplMethod
	// ItemOther is any other item (types, package-level var/const).
	ItemOther
	// ExprPath is a reference to a declared item by name.
	ExprPath
	// ExprMethodCall is a receiver.method selection.
	ExprMethodCall
	// ExprOther is any other expression worth descending into.
	ExprOther
)

var kindNames = [...]string{
	ItemFn:          "fn",
	ItemTrait:       "trait",
	ItemTraitMethod: "trait-method",
	ItemImpl:        "impl",
	ItemImplMethod:  "impl-method",
	ItemOther:       "item",
	ExprPath:        "path",
	ExprMethodCall:  "method-call",
	ExprOther:       "expr",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Node is one item-like or expression node.
type Node struct {
	ID   graph.NodeID
	Kind Kind
	Span graph.Span

	// Def is the declared item for Item* kinds and the resolved target for
	// ExprPath. An unresolved path has an empty Def.
	Def graph.DefID

	// Name is the declared name for items.
	Name string

	// HasBody is set on trait methods that carry a default body.
	HasBody bool

	// Call is set on ExprMethodCall nodes.
	Call *MethodCall

	Children []*Node
}

// MethodCall carries the type-dependent data of a method call site.
type MethodCall struct {
	// Method is the method selected by the type checker.
	Method graph.DefID
	// Env is the item whose generic environment applies at the site.
	Env graph.DefID
	// Args are the substituted type arguments, receiver first.
	Args []string
}

// TraitItem is an associated item of a trait.
type TraitItem struct {
	Name string
	Def  graph.DefID
}

// Impl is the block enclosing an impl method.
type Impl struct {
	// Self names the receiver type.
	Self string
	// Traits lists the traits the block implements; empty for an inherent
	// block.
	Traits []graph.DefID
}

// Shape classifies a resolved definition.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeTraitMethod is a trait method declaration; no implementor is known.
	ShapeTraitMethod
	// ShapeImplMethod is a concrete method body.
	ShapeImplMethod
	// ShapeFreeItem is a free function.
	ShapeFreeItem
	// ShapeForeign is an item defined outside the unit.
	ShapeForeign
)

func (s Shape) String() string {
	switch s {
	case ShapeTraitMethod:
		return "trait-method"
	case ShapeImplMethod:
		return "impl-method"
	case ShapeFreeItem:
		return "free-item"
	case ShapeForeign:
		return "foreign"
	default:
		return "unknown"
	}
}

// Query asks the instance resolver for the implementation selected at a
// method call site.
type Query struct {
	Site   graph.NodeID
	Method graph.DefID
	Env    graph.DefID
	Args   []string
}

// Instance is a resolved call target.
type Instance struct {
	Def   graph.DefID
	Shape Shape
	// Local is set when Def is declared in the unit under analysis.
	Local bool
}

// InstanceResolver resolves method call sites to concrete definitions.
type InstanceResolver interface {
	// Resolve returns false when the call cannot be resolved, e.g. because
	// the receiver type is not concrete yet.
	Resolve(q Query) (Instance, bool)
}

// Host is a fully type-checked unit.
type Host interface {
	InstanceResolver

	// Items returns the top-level item-like nodes in source order.
	Items() []*Node
	// DefSpan returns the declaration span of def, or a zero Span when def
	// has no known position.
	DefSpan(def graph.DefID) graph.Span
	// EnclosingImpl returns the block that declares the impl method def.
	EnclosingImpl(def graph.DefID) (Impl, bool)
	// TraitItems returns the associated items of trait in declaration order.
	TraitItems(trait graph.DefID) []TraitItem
}
