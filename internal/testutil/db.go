package testutil

import (
	"context"
	"testing"

	"github.com/HerbHall/opsconductor/internal/store"
	"github.com/HerbHall/opsconductor/pkg/plugin"
)

// Component pairs a migration set with the component name it is tracked under.
type Component struct {
	Name       string
	Migrations []plugin.Migration
}

// NewStore opens an in-memory SQLite store with the given components
// migrated. It is closed when the test ends.
func NewStore(t testing.TB, components ...Component) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for _, c := range components {
		if err := s.Migrate(context.Background(), c.Name, c.Migrations); err != nil {
			t.Fatalf("Migrate(%s) error = %v", c.Name, err)
		}
	}
	return s
}
