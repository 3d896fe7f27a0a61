package graph

// Registry accumulates the call graph of one unit. It is filled by a single
// traversal and then dumped; nothing is ever removed.
type Registry struct {
	functions    map[DefID]Span
	methodDecls  map[DefID]Span
	methodImpls  map[DefID][]DefID
	staticCalls  map[Call]struct{}
	dynamicCalls map[Call]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		functions:    make(map[DefID]Span),
		methodDecls:  make(map[DefID]Span),
		methodImpls:  make(map[DefID][]DefID),
		staticCalls:  make(map[Call]struct{}),
		dynamicCalls: make(map[Call]struct{}),
	}
}

// AddFunction records a function with a body. First span wins.
func (r *Registry) AddFunction(id DefID, span Span) {
	if _, ok := r.functions[id]; ok {
		return
	}
	r.functions[id] = clean(span)
}

// AddMethodDecl records an interface method declaration.
func (r *Registry) AddMethodDecl(id DefID, span Span) {
	if _, ok := r.methodDecls[id]; ok {
		return
	}
	r.methodDecls[id] = clean(span)
}

// AddMethodImpl appends impl to the implementations of decl, keeping
// insertion order and ignoring repeats.
func (r *Registry) AddMethodImpl(decl, impl DefID) {
	for _, existing := range r.methodImpls[decl] {
		if existing == impl {
			return
		}
	}
	r.methodImpls[decl] = append(r.methodImpls[decl], impl)
}

// AddCall records a call edge in the set matching its kind.
func (r *Registry) AddCall(c Call) {
	c.SiteSpan = clean(c.SiteSpan)
	c.CallerSpan = clean(c.CallerSpan)
	c.CalleeSpan = clean(c.CalleeSpan)
	if c.Kind == Dynamic {
		r.dynamicCalls[c] = struct{}{}
		return
	}
	r.staticCalls[c] = struct{}{}
}

// HasFunction reports whether id was registered as a function.
func (r *Registry) HasFunction(id DefID) bool {
	_, ok := r.functions[id]
	return ok
}

// HasMethodDecl reports whether id was registered as a method declaration.
func (r *Registry) HasMethodDecl(id DefID) bool {
	_, ok := r.methodDecls[id]
	return ok
}

// Impls returns the implementations linked to decl in insertion order.
func (r *Registry) Impls(decl DefID) []DefID {
	return append([]DefID(nil), r.methodImpls[decl]...)
}

// clean drops flags that must not take part in record identity.
func clean(s Span) Span {
	s.FromExpansion = false
	return s
}
