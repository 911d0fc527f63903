package store

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Backend names accepted by New.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Backends lists the accepted backend names, default first.
func Backends() []string {
	return []string{BackendJSON, BackendSQLite, BackendMemory}
}

// New opens the store for backend. File backed stores live under dataDir;
// SQLite uses dataDir/records.db. An empty backend means json.
func New(backend, dataDir string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendJSON, "":
		return NewJsonFileStore(dataDir)
	case BackendSQLite:
		return NewSqliteStore(filepath.Join(dataDir, "records.db"))
	case BackendMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q (supported: %s)", backend, strings.Join(Backends(), ", "))
}

// Close releases s if it holds resources.
func Close(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
