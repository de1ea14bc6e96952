// Package storagetest opens in-memory sqlite stores for tests.
package storagetest

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/flasheng/flasheng/config"
	"github.com/flasheng/flasheng/internal/domain"
	"github.com/flasheng/flasheng/internal/storage"
	"github.com/stretchr/testify/require"
)

var seq int64

// MemoryDSN unique shared-cache memory database, alive while its store is open
func MemoryDSN(name string) string {
	return fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=1", name, atomic.AddInt64(&seq, 1))
}

// MemoryConfig sqlite config pointing at a fresh memory database
func MemoryConfig(name string) config.DBConfig {
	return config.DBConfig{Type: "sqlite", Dsn: MemoryDSN(name)}
}

// OpenStore opens a memory store migrated with the tables of the given resources
func OpenStore(t testing.TB, name string, resources ...string) *storage.GormStore {
	t.Helper()
	s, err := storage.Open(name, MemoryConfig(name))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(domain.TablesFor(resources...)...))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// OpenFileStore like OpenStore on a sqlite file under t.TempDir. Needed where a
// cancelled context makes database/sql discard the only connection, which would
// drop a memory database.
func OpenFileStore(t testing.TB, name string, resources ...string) *storage.GormStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), name+".db") + "?_foreign_keys=1"
	s, err := storage.Open(name, config.DBConfig{Type: "sqlite", Dsn: dsn})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(domain.TablesFor(resources...)...))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Partitioned one store per resource, the catalog on its own store
func Partitioned(t testing.TB) *storage.Registry {
	t.Helper()
	reg := storage.NewRegistry()
	for _, res := range domain.Resources {
		reg.Bind(res, OpenStore(t, res, res))
	}
	return reg
}

// Colocated users and flashcards apart, catalog and orders sharing one store
func Colocated(t testing.TB) *storage.Registry {
	t.Helper()
	reg := storage.NewRegistry()
	reg.Bind(domain.ResourceUsers, OpenStore(t, domain.ResourceUsers, domain.ResourceUsers))
	reg.Bind(domain.ResourceFlashcards, OpenStore(t, domain.ResourceFlashcards, domain.ResourceFlashcards))
	shared := OpenStore(t, domain.ResourceOrders, domain.ResourceCatalog, domain.ResourceOrders)
	reg.Bind(domain.ResourceCatalog, shared)
	reg.Bind(domain.ResourceOrders, shared)
	return reg
}
