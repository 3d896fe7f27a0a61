package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MethodImpls lists the implementations linked to one declaration.
type MethodImpls struct {
	Decl  DefID   `json:"decl" yaml:"decl"`
	Impls []DefID `json:"impls" yaml:"impls"`
}

// Report is the canonical dump of a Registry. All slices are sorted so that
// equal registries encode to identical bytes.
type Report struct {
	Functions    []Function    `json:"functions" yaml:"functions"`
	MethodDecls  []Function    `json:"method_decls" yaml:"method_decls"`
	MethodImpls  []MethodImpls `json:"method_impls" yaml:"method_impls"`
	StaticCalls  []Call        `json:"static_calls" yaml:"static_calls"`
	DynamicCalls []Call        `json:"dynamic_calls" yaml:"dynamic_calls"`
}

// Stats summarizes a Report.
type Stats struct {
	Functions    int
	MethodDecls  int
	MethodImpls  int
	StaticCalls  int
	DynamicCalls int
}

// Dump serializes the registry contents into a sorted Report.
func (r *Registry) Dump() *Report {
	rep := &Report{
		Functions:    sortedDefs(r.functions),
		MethodDecls:  sortedDefs(r.methodDecls),
		MethodImpls:  make([]MethodImpls, 0, len(r.methodImpls)),
		StaticCalls:  sortedCalls(r.staticCalls),
		DynamicCalls: sortedCalls(r.dynamicCalls),
	}
	for decl, impls := range r.methodImpls {
		sorted := append([]DefID(nil), impls...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		rep.MethodImpls = append(rep.MethodImpls, MethodImpls{Decl: decl, Impls: sorted})
	}
	sort.Slice(rep.MethodImpls, func(i, j int) bool {
		return rep.MethodImpls[i].Decl < rep.MethodImpls[j].Decl
	})
	return rep
}

func sortedDefs(m map[DefID]Span) []Function {
	out := make([]Function, 0, len(m))
	for id, span := range m {
		out = append(out, Function{ID: id, Span: span})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedCalls(m map[Call]struct{}) []Call {
	out := make([]Call, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// Stats counts the entries of each registry section.
func (rep *Report) Stats() Stats {
	st := Stats{
		Functions:    len(rep.Functions),
		MethodDecls:  len(rep.MethodDecls),
		StaticCalls:  len(rep.StaticCalls),
		DynamicCalls: len(rep.DynamicCalls),
	}
	for _, mi := range rep.MethodImpls {
		st.MethodImpls += len(mi.Impls)
	}
	return st
}

// Format selects a Report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want text, json or yaml)", s)
	}
}

// Encode writes rep to w in the given format. unit labels the report.
func (rep *Report) Encode(w io.Writer, unit string, f Format) error {
	switch f {
	case FormatJSON:
		return json.NewEncoder(w).Encode(struct {
			Unit string `json:"unit"`
			*Report
		}{unit, rep})
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(struct {
			Unit   string `yaml:"unit"`
			Report `yaml:",inline"`
		}{unit, *rep}); err != nil {
			return err
		}
		return enc.Close()
	case FormatText:
		return rep.writeText(w, unit)
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
}

func (rep *Report) writeText(w io.Writer, unit string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "unit %s\n", unit)

	fmt.Fprintf(&b, "functions (%d):\n", len(rep.Functions))
	for _, fn := range rep.Functions {
		fmt.Fprintf(&b, "  %s  %s\n", fn.ID, fn.Span)
	}
	fmt.Fprintf(&b, "method_decls (%d):\n", len(rep.MethodDecls))
	for _, d := range rep.MethodDecls {
		fmt.Fprintf(&b, "  %s  %s\n", d.ID, d.Span)
	}
	fmt.Fprintf(&b, "method_impls (%d):\n", len(rep.MethodImpls))
	for _, mi := range rep.MethodImpls {
		impls := make([]string, len(mi.Impls))
		for i, id := range mi.Impls {
			impls[i] = string(id)
		}
		fmt.Fprintf(&b, "  %s -> [%s]\n", mi.Decl, strings.Join(impls, ", "))
	}
	writeCalls(&b, "static_calls", rep.StaticCalls)
	writeCalls(&b, "dynamic_calls", rep.DynamicCalls)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeCalls(b *strings.Builder, title string, calls []Call) {
	fmt.Fprintf(b, "%s (%d):\n", title, len(calls))
	for _, c := range calls {
		caller := "<none>"
		if c.HasCaller() {
			caller = string(c.Caller)
		}
		fmt.Fprintf(b, "  %s -> %s  at %s\n", caller, c.Callee, c.SiteSpan)
	}
}
