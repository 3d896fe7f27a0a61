package visitor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-callgraph/internal/graph"
	"go-callgraph/internal/unit"
)

// stubHost is an in-memory unit.Host.
type stubHost struct {
	items     []*unit.Node
	spans     map[graph.DefID]graph.Span
	impls     map[graph.DefID]unit.Impl
	traits    map[graph.DefID][]unit.TraitItem
	instances map[graph.NodeID]unit.Instance
	queries   []unit.Query
}

func newStubHost() *stubHost {
	return &stubHost{
		spans:     make(map[graph.DefID]graph.Span),
		impls:     make(map[graph.DefID]unit.Impl),
		traits:    make(map[graph.DefID][]unit.TraitItem),
		instances: make(map[graph.NodeID]unit.Instance),
	}
}

func (h *stubHost) Items() []*unit.Node                        { return h.items }
func (h *stubHost) DefSpan(def graph.DefID) graph.Span         { return h.spans[def] }
func (h *stubHost) TraitItems(t graph.DefID) []unit.TraitItem  { return h.traits[t] }
func (h *stubHost) EnclosingImpl(d graph.DefID) (unit.Impl, bool) {
	impl, ok := h.impls[d]
	return impl, ok
}

func (h *stubHost) Resolve(q unit.Query) (unit.Instance, bool) {
	h.queries = append(h.queries, q)
	inst, ok := h.instances[q.Site]
	return inst, ok
}

var line int

func at() graph.Span {
	line++
	return graph.Span{File: "x.go", StartLine: line, StartCol: 1, EndLine: line, EndCol: 5}
}

func fn(def graph.DefID, children ...*unit.Node) *unit.Node {
	return &unit.Node{ID: graph.NodeID("n:" + def), Kind: unit.ItemFn, Def: def, Span: at(), Children: children}
}

func method(def graph.DefID, name string, children ...*unit.Node) *unit.Node {
	return &unit.Node{ID: graph.NodeID("n:" + def), Kind: unit.ItemImplMethod, Def: def, Name: name, Span: at(), Children: children}
}

func traitMethod(def graph.DefID, name string, body bool, children ...*unit.Node) *unit.Node {
	return &unit.Node{ID: graph.NodeID("n:" + def), Kind: unit.ItemTraitMethod, Def: def, Name: name, HasBody: body, Span: at(), Children: children}
}

func path(id string, def graph.DefID) *unit.Node {
	return &unit.Node{ID: graph.NodeID(id), Kind: unit.ExprPath, Def: def, Span: at()}
}

func mcall(id string, method graph.DefID, children ...*unit.Node) *unit.Node {
	return &unit.Node{ID: graph.NodeID(id), Kind: unit.ExprMethodCall, Span: at(), Call: &unit.MethodCall{Method: method}, Children: children}
}

func ids(fns []graph.Function) []graph.DefID {
	out := make([]graph.DefID, len(fns))
	for i, f := range fns {
		out[i] = f.ID
	}
	return out
}

func TestAnalyze_StaticFreeFunctionCall(t *testing.T) {
	h := newStubHost()
	helper := fn("p.helper")
	h.spans["p.helper"] = helper.Span
	h.items = []*unit.Node{helper, fn("p.caller", path("site", "p.helper"))}

	rep, err := Analyze(h)
	require.NoError(t, err)

	assert.Equal(t, []graph.DefID{"p.caller", "p.helper"}, ids(rep.Functions))
	require.Len(t, rep.StaticCalls, 1)
	c := rep.StaticCalls[0]
	assert.Equal(t, graph.DefID("p.caller"), c.Caller)
	assert.Equal(t, graph.DefID("p.helper"), c.Callee)
	assert.Equal(t, helper.Span, c.CalleeSpan)
	assert.Empty(t, rep.DynamicCalls)
}

func TestAnalyze_TraitObjectCallIsDynamic(t *testing.T) {
	h := newStubHost()
	h.items = []*unit.Node{
		{Kind: unit.ItemTrait, Span: at(), Children: []*unit.Node{traitMethod("p.Shape.area", "area", false)}},
		{Kind: unit.ItemImpl, Span: at(), Children: []*unit.Node{method("p.Circle.area", "area")}},
		fn("p.total", mcall("site", "p.Shape.area", path("recv", ""))),
	}
	h.impls["p.Circle.area"] = unit.Impl{Self: "p.Circle", Traits: []graph.DefID{"p.Shape"}}
	h.traits["p.Shape"] = []unit.TraitItem{{Name: "area", Def: "p.Shape.area"}}
	h.instances["site"] = unit.Instance{Def: "p.Shape.area", Shape: unit.ShapeTraitMethod, Local: true}

	rep, err := Analyze(h)
	require.NoError(t, err)

	assert.Equal(t, []graph.DefID{"p.Circle.area", "p.total"}, ids(rep.Functions))
	assert.Equal(t, []graph.DefID{"p.Shape.area"}, ids(rep.MethodDecls))
	assert.Equal(t, []graph.MethodImpls{{Decl: "p.Shape.area", Impls: []graph.DefID{"p.Circle.area"}}}, rep.MethodImpls)
	require.Len(t, rep.DynamicCalls, 1)
	assert.Equal(t, graph.DefID("p.total"), rep.DynamicCalls[0].Caller)
	assert.Equal(t, graph.DefID("p.Shape.area"), rep.DynamicCalls[0].Callee)
	assert.Empty(t, rep.StaticCalls)
}

func TestAnalyze_ClassifiesResolvedShapes(t *testing.T) {
	tests := []struct {
		name string
		inst unit.Instance
		want graph.CallKind
	}{
		{"impl method", unit.Instance{Def: "p.X.m", Shape: unit.ShapeImplMethod, Local: true}, graph.Static},
		{"free item", unit.Instance{Def: "p.f", Shape: unit.ShapeFreeItem, Local: true}, graph.Static},
		{"foreign", unit.Instance{Def: "fmt.Println", Shape: unit.ShapeForeign}, graph.Static},
		{"local trait method", unit.Instance{Def: "p.T.m", Shape: unit.ShapeTraitMethod, Local: true}, graph.Dynamic},
		{"external trait method", unit.Instance{Def: "io.Reader.Read", Shape: unit.ShapeTraitMethod}, graph.Static},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newStubHost()
			h.items = []*unit.Node{fn("p.f", mcall("site", "p.T.m"))}
			h.instances["site"] = tt.inst

			rep, err := Analyze(h)
			require.NoError(t, err)

			calls := rep.StaticCalls
			other := rep.DynamicCalls
			if tt.want == graph.Dynamic {
				calls, other = other, calls
			}
			require.Len(t, calls, 1)
			assert.Empty(t, other)
			assert.Equal(t, tt.inst.Def, calls[0].Callee)
		})
	}
}

func TestAnalyze_UnresolvableMethodCallRecordsNothing(t *testing.T) {
	h := newStubHost()
	h.items = []*unit.Node{fn("p.generic", mcall("site", "p.T.m"))}

	rep, err := Analyze(h)
	require.NoError(t, err)
	assert.Empty(t, rep.StaticCalls)
	assert.Empty(t, rep.DynamicCalls)
	require.Len(t, h.queries, 1)
	assert.Equal(t, graph.DefID("p.generic"), h.queries[0].Env, "env defaults to the enclosing function")
}

func TestAnalyze_UnresolvedPathRecordsNothing(t *testing.T) {
	h := newStubHost()
	h.items = []*unit.Node{fn("p.f", path("site", ""))}

	rep, err := Analyze(h)
	require.NoError(t, err)
	assert.Empty(t, rep.StaticCalls)
}

func TestAnalyze_UnexpectedShapeAbortsUnit(t *testing.T) {
	h := newStubHost()
	h.items = []*unit.Node{fn("p.f", path("ok", "p.f"), mcall("bad", "p.T.m"))}
	h.instances["bad"] = unit.Instance{Def: "p.weird", Shape: unit.ShapeUnknown}

	rep, err := Analyze(h)
	assert.Nil(t, rep, "no partial report")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedShape))

	var aerr *AnalysisError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, graph.NodeID("bad"), aerr.Node)
}

func TestAnalyze_MalformedQueryAbortsUnit(t *testing.T) {
	h := newStubHost()
	h.items = []*unit.Node{fn("p.f", &unit.Node{ID: "bad", Kind: unit.ExprMethodCall, Span: at()})}

	_, err := Analyze(h)
	assert.True(t, errors.Is(err, ErrMalformedQuery))
}

func TestAnalyze_TopLevelCallHasNoCaller(t *testing.T) {
	h := newStubHost()
	h.items = []*unit.Node{
		fn("p.helper"),
		{Kind: unit.ItemOther, Span: at(), Children: []*unit.Node{path("init", "p.helper")}},
	}

	rep, err := Analyze(h)
	require.NoError(t, err)
	require.Len(t, rep.StaticCalls, 1)
	assert.False(t, rep.StaticCalls[0].HasCaller())
	assert.True(t, rep.StaticCalls[0].CallerSpan.IsDummy())
}

func TestAnalyze_NestedScopesRestoreCaller(t *testing.T) {
	h := newStubHost()
	inner := fn("p.inner", path("in-inner", "p.g"))
	h.items = []*unit.Node{
		fn("p.outer",
			path("before", "p.g"),
			inner,
			path("after", "p.g"),
		),
		{Kind: unit.ItemOther, Span: at(), Children: []*unit.Node{path("top", "p.g")}},
	}

	rep, err := Analyze(h)
	require.NoError(t, err)

	callers := make(map[graph.NodeID]graph.DefID)
	for _, c := range rep.StaticCalls {
		callers[c.Site] = c.Caller
	}
	assert.Equal(t, map[graph.NodeID]graph.DefID{
		"before":   "p.outer",
		"in-inner": "p.inner",
		"after":    "p.outer",
		"top":      "",
	}, callers)
	assert.Equal(t, []graph.DefID{"p.inner", "p.outer"}, ids(rep.Functions))
}

func TestAnalyze_DeepNesting(t *testing.T) {
	h := newStubHost()
	const depth = 50
	var node *unit.Node
	for i := depth; i >= 1; i-- {
		def := graph.DefID(fmt.Sprintf("p.f%d", i))
		children := []*unit.Node{path(fmt.Sprintf("site%d", i), "p.g")}
		if node != nil {
			children = append(children, node)
		}
		node = fn(def, children...)
	}
	h.items = []*unit.Node{node}

	rep, err := Analyze(h)
	require.NoError(t, err)
	require.Len(t, rep.StaticCalls, depth)
	for _, c := range rep.StaticCalls {
		assert.Equal(t, "p.f"+string(c.Site)[len("site"):], string(c.Caller))
	}
}

func TestAnalyze_GeneratedCodeIsSkipped(t *testing.T) {
	h := newStubHost()
	expanded := at()
	expanded.FromExpansion = true

	h.items = []*unit.Node{
		{ID: "gen", Kind: unit.ItemFn, Def: "p.generated", Span: expanded, Children: []*unit.Node{path("g1", "p.helper")}},
		{ID: "dummy", Kind: unit.ItemFn, Def: "p.synthetic", Children: []*unit.Node{path("g2", "p.helper")}},
		fn("p.user",
			&unit.Node{ID: "g3", Kind: unit.ExprPath, Def: "p.helper", Span: expanded},
			&unit.Node{ID: "g4", Kind: unit.ExprOther, Span: expanded, Children: []*unit.Node{path("g5", "p.helper")}},
			path("real", "p.helper"),
		),
	}

	rep, err := Analyze(h)
	require.NoError(t, err)
	assert.Equal(t, []graph.DefID{"p.user"}, ids(rep.Functions))
	require.Len(t, rep.StaticCalls, 1)
	assert.Equal(t, graph.NodeID("real"), rep.StaticCalls[0].Site)
}

func TestAnalyze_TraitDefaultBody(t *testing.T) {
	h := newStubHost()
	h.items = []*unit.Node{
		{Kind: unit.ItemTrait, Span: at(), Children: []*unit.Node{
			traitMethod("p.T.describe", "describe", true, path("site", "p.helper")),
		}},
	}

	rep, err := Analyze(h)
	require.NoError(t, err)
	assert.Equal(t, []graph.DefID{"p.T.describe"}, ids(rep.MethodDecls))
	assert.Equal(t, []graph.DefID{"p.T.describe"}, ids(rep.Functions))
	assert.Equal(t, []graph.MethodImpls{{Decl: "p.T.describe", Impls: []graph.DefID{"p.T.describe"}}}, rep.MethodImpls)
	require.Len(t, rep.StaticCalls, 1)
	assert.Equal(t, graph.DefID("p.T.describe"), rep.StaticCalls[0].Caller)
}

func TestAnalyze_LinkerIgnoresInherentAndUnknownNames(t *testing.T) {
	h := newStubHost()
	h.items = []*unit.Node{
		method("p.X.area", "area"),
		method("p.Y.area", "area"),
		method("p.Y.extra", "extra"),
		method("p.Z.area", "area"),
	}
	h.impls["p.X.area"] = unit.Impl{Self: "p.X"}
	h.impls["p.Y.area"] = unit.Impl{Self: "p.Y", Traits: []graph.DefID{"p.Shape"}}
	h.impls["p.Y.extra"] = unit.Impl{Self: "p.Y", Traits: []graph.DefID{"p.Shape"}}
	h.impls["p.Z.area"] = unit.Impl{Self: "p.Z", Traits: []graph.DefID{"p.Shape", "p.Measured"}}
	h.traits["p.Shape"] = []unit.TraitItem{{Name: "area", Def: "p.Shape.area"}, {Name: "area", Def: "p.Shape.shadow"}}
	h.traits["p.Measured"] = []unit.TraitItem{{Name: "area", Def: "p.Measured.area"}}

	rep, err := Analyze(h)
	require.NoError(t, err)
	assert.Equal(t, []graph.MethodImpls{
		{Decl: "p.Measured.area", Impls: []graph.DefID{"p.Z.area"}},
		{Decl: "p.Shape.area", Impls: []graph.DefID{"p.Y.area", "p.Z.area"}},
	}, rep.MethodImpls)
	assert.Len(t, rep.Functions, 4)
}

func TestAnalyze_Idempotent(t *testing.T) {
	h := newStubHost()
	h.items = []*unit.Node{
		fn("p.a", path("s1", "p.b"), mcall("s2", "p.T.m")),
		fn("p.b", path("s3", "p.a")),
	}
	h.instances["s2"] = unit.Instance{Def: "p.T.m", Shape: unit.ShapeTraitMethod, Local: true}

	v := New(h)
	first, err := v.Run()
	require.NoError(t, err)
	second, err := v.Run()
	require.NoError(t, err)
	assert.Equal(t, first.Dump(), second.Dump())
}
