package domain_test

import (
	"testing"

	"labcatalog/testutil"
)

func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertImports(t, ".", testutil.NoInternal)
}
