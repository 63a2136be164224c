package db

import (
	"testing"
)

// NewTestStore creates an in-memory store for testing. Migrations are
// applied and the store is closed automatically when the test completes.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    store := db.NewTestStore(t)
//	    // use store...
//	}
func NewTestStore(t testing.TB) *Store {
	t.Helper()

	s, err := OpenStoreInMemory()
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
