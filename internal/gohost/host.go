package gohost

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
	"strings"

	"go-callgraph/internal/graph"
	"go-callgraph/internal/unit"
)

// Host serves one Package to the visitor.
type Host struct {
	pkg  *Package
	root string

	items  []*unit.Node
	spans  map[graph.DefID]graph.Span
	sites  map[graph.NodeID]*types.Selection
	impls  map[graph.DefID]unit.Impl
	traits map[graph.DefID][]unit.TraitItem

	// scopedIfaces are the interfaces declared inside function bodies.
	scopedIfaces []localIface

	// ids overrides funcID for objects that share a name (init and blank
	// functions, methods of function-scoped interfaces).
	ids map[types.Object]graph.DefID
}

var _ unit.Host = (*Host)(nil)

// Option configures Build.
type Option func(*Host)

// WithRoot reports file names relative to root.
func WithRoot(root string) Option {
	return func(h *Host) { h.root = root }
}

// Build converts pkg into a unit.Host.
func Build(pkg *Package, opts ...Option) *Host {
	h := &Host{
		pkg:    pkg,
		spans:  make(map[graph.DefID]graph.Span),
		sites:  make(map[graph.NodeID]*types.Selection),
		impls:  make(map[graph.DefID]unit.Impl),
		traits: make(map[graph.DefID][]unit.TraitItem),
		ids:    make(map[types.Object]graph.DefID),
	}
	for _, opt := range opts {
		opt(h)
	}
	b := &builder{host: h, scoped: make(map[graph.DefID]int)}
	for _, f := range pkg.Files {
		h.items = append(h.items, b.file(f)...)
	}
	h.indexImpls()
	return h
}

// Package returns the unit the host serves.
func (h *Host) Package() *Package { return h.pkg }

// Items implements unit.Host.
func (h *Host) Items() []*unit.Node { return h.items }

// DefSpan implements unit.Host.
func (h *Host) DefSpan(def graph.DefID) graph.Span { return h.spans[def] }

// EnclosingImpl implements unit.Host.
func (h *Host) EnclosingImpl(def graph.DefID) (unit.Impl, bool) {
	impl, ok := h.impls[def]
	return impl, ok
}

// TraitItems implements unit.Host.
func (h *Host) TraitItems(trait graph.DefID) []unit.TraitItem { return h.traits[trait] }

// idOf names fn, honoring overrides.
func (h *Host) idOf(fn *types.Func) graph.DefID {
	if id, ok := h.ids[fn]; ok {
		return id
	}
	return funcID(fn)
}

// remember records the declaration span of obj under def if none is known.
func (h *Host) remember(def graph.DefID, obj types.Object) {
	if _, ok := h.spans[def]; ok || !obj.Pos().IsValid() {
		return
	}
	start := h.pkg.Fset.Position(obj.Pos())
	h.spans[def] = graph.Span{
		File:      h.rel(start.Filename),
		StartLine: start.Line,
		StartCol:  start.Column,
		EndLine:   start.Line,
		EndCol:    start.Column + len(obj.Name()),
	}
}

func (h *Host) local(obj types.Object) bool {
	return obj.Pkg() != nil && obj.Pkg() == h.pkg.Types
}

func (h *Host) rel(file string) string {
	if h.root == "" || file == "" {
		return file
	}
	if r, err := filepath.Rel(h.root, file); err == nil && !strings.HasPrefix(r, "..") {
		return filepath.ToSlash(r)
	}
	return file
}

// span converts an AST range. Positions moved by a //line directive and
// nodes of generated files are marked as expansions.
func (h *Host) span(n ast.Node, generated bool) graph.Span {
	if n == nil || !n.Pos().IsValid() {
		return graph.Span{}
	}
	fset := h.pkg.Fset
	start := fset.PositionFor(n.Pos(), true)
	end := fset.PositionFor(n.End(), true)
	raw := fset.PositionFor(n.Pos(), false)
	return graph.Span{
		File:          h.rel(start.Filename),
		StartLine:     start.Line,
		StartCol:      start.Column,
		EndLine:       end.Line,
		EndCol:        end.Column,
		FromExpansion: generated || raw.Filename != start.Filename || raw.Line != start.Line,
	}
}

// nodeID names the node starting at pos.
func (h *Host) nodeID(pos token.Pos) graph.NodeID {
	p := h.pkg.Fset.PositionFor(pos, false)
	return graph.NodeID(fmt.Sprintf("%s:%d:%d", h.rel(p.Filename), p.Line, p.Column))
}
