package web_test

import (
	"testing"

	"labcatalog/testutil"
)

func TestAdaptersDoNotReachStorage(t *testing.T) {
	testutil.AssertImports(t, ".", testutil.NoInfra)
	testutil.AssertImports(t, "../httpapi", testutil.NoInfra)
}
