// Package gohost adapts a type-checked Go package to the unit.Host
// interface consumed by the call graph visitor.
package gohost

import (
	"errors"
	"fmt"
	"go/ast"
	"go/importer"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/packages"
)

// LoadMode is the packages.Load mode a Package needs.
const LoadMode = packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
	packages.NeedImports | packages.NeedDeps | packages.NeedTypes |
	packages.NeedSyntax | packages.NeedTypesInfo | packages.NeedTypesSizes

// ErrNotTypeChecked is returned for packages without complete type
// information.
var ErrNotTypeChecked = errors.New("package is not fully type-checked")

// Package is one fully type-checked unit.
type Package struct {
	ID    string
	Path  string
	Name  string
	Fset  *token.FileSet
	Files []*ast.File
	Types *types.Package
	Info  *types.Info
}

// FromPackage converts a loaded package. Packages with load or type errors
// are rejected.
func FromPackage(p *packages.Package) (*Package, error) {
	if len(p.Errors) > 0 {
		return nil, fmt.Errorf("%s: %w: %v", p.PkgPath, ErrNotTypeChecked, p.Errors[0])
	}
	if p.Types == nil || p.TypesInfo == nil || p.Fset == nil {
		return nil, fmt.Errorf("%s: %w: missing types or syntax", p.PkgPath, ErrNotTypeChecked)
	}
	return &Package{
		ID:    p.ID,
		Path:  p.PkgPath,
		Name:  p.Name,
		Fset:  p.Fset,
		Files: p.Syntax,
		Types: p.Types,
		Info:  p.TypesInfo,
	}, nil
}

// NewInfo returns a types.Info with every map the host reads.
func NewInfo() *types.Info {
	return &types.Info{
		Types:      make(map[ast.Expr]types.TypeAndValue),
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
		Instances:  make(map[*ast.Ident]types.Instance),
	}
}

// Check type-checks already parsed files as package path. Imports are
// type-checked from source.
func Check(fset *token.FileSet, path string, files []*ast.File) (*Package, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: no files", path)
	}
	info := NewInfo()
	conf := types.Config{Importer: importer.ForCompiler(fset, "source", nil)}
	pkg, err := conf.Check(path, fset, files, info)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrNotTypeChecked, err)
	}
	return &Package{
		ID:    path,
		Path:  path,
		Name:  pkg.Name(),
		Fset:  fset,
		Files: files,
		Types: pkg,
		Info:  info,
	}, nil
}
