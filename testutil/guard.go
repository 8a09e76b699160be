// Package testutil holds helpers that keep the layering of the module honest:
// the domain model stays free of infrastructure, and the HTTP adapters reach
// storage only through the service.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ModulePath is the import path prefix of this module.
const ModulePath = "labcatalog"

// ImportRule rejects import paths. Reason is printed with any violation.
type ImportRule struct {
	Forbidden func(importPath string) bool
	Reason    string
}

// NoInternal forbids every package under labcatalog/internal.
var NoInternal = ImportRule{
	Forbidden: func(p string) bool { return strings.HasPrefix(p, ModulePath+"/internal/") },
	Reason:    "the domain model must not depend on implementation packages",
}

// NoInfra forbids the persistence backends.
var NoInfra = ImportRule{
	Forbidden: func(p string) bool { return strings.HasPrefix(p, ModulePath+"/internal/infra/persistence") },
	Reason:    "adapters talk to storage through the service",
}

// AssertImports fails t when a non-test file in dir imports a path the rule
// forbids.
func AssertImports(t testing.TB, dir string, rule ImportRule) {
	t.Helper()
	viols, err := importViolations(dir, rule.Forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden imports (%s):\n%s", rule.Reason, strings.Join(viols, "\n"))
	}
}

func importViolations(dir string, forbidden func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			p := strings.Trim(imp.Path.Value, `"`)
			if forbidden(p) {
				viols = append(viols, p+" (in "+name+")")
			}
		}
	}
	return viols, nil
}
