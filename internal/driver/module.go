package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// DetectModulePath reads the go.mod file in dir and returns the module path.
func DetectModulePath(dir string) (string, error) {
	gomod := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(gomod)
	if err != nil {
		return "", fmt.Errorf("cannot read go.mod: %w", err)
	}
	path := modfile.ModulePath(data)
	if path == "" {
		return "", fmt.Errorf("module directive not found in %s", gomod)
	}
	return path, nil
}

// inModule reports whether pkgPath belongs to module. The external test
// package of the module root is module_test.
func inModule(module, pkgPath string) bool {
	return pkgPath == module || pkgPath == module+"_test" || strings.HasPrefix(pkgPath, module+"/")
}
