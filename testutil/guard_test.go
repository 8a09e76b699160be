package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRules(t *testing.T) {
	cases := []struct {
		rule ImportRule
		in   string
		want bool
	}{
		{NoInternal, "labcatalog/internal/core", true},
		{NoInternal, "labcatalog/pkg/domain", false},
		{NoInternal, "github.com/other/internal/x", false},
		{NoInfra, "labcatalog/internal/infra/persistence/memory", true},
		{NoInfra, "labcatalog/internal/infra/blob/core", false},
		{NoInfra, "labcatalog/internal/core", false},
	}
	for _, c := range cases {
		if got := c.rule.Forbidden(c.in); got != c.want {
			t.Fatalf("%s: Forbidden(%q)=%v want %v", c.rule.Reason, c.in, got, c.want)
		}
	}
}

func TestImportViolations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("a.go", "package tmp\n\nimport (\n\t\"fmt\"\n\t\"labcatalog/internal/core\"\n)\n")
	write("a_test.go", "package tmp\n\nimport \"labcatalog/internal/query\"\n")
	write("notes.txt", "import \"labcatalog/internal/x\"")

	viols, err := importViolations(dir, NoInternal.Forbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "labcatalog/internal/core (in a.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}

	AssertImports(t, dir, NoInfra)
}
