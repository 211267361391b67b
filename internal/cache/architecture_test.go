package cache

import (
	"testing"

	"tasklist/testutil"
)

func TestCacheStaysBelowCoordinator(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.AnyOf(testutil.CoordinatorImportForbidden, testutil.TransportImportForbidden),
		"the cache is driven by the coordinator, not the reverse")
}
