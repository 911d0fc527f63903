package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stevemurr/restcollection/collection"
)

// SqliteStore stores all collections in a single SQLite database.
// Insertion order is the rowid order; an upsert keeps the original rowid.
//
// Tables:
//
//	records(collection, key, data)  PRIMARY KEY (collection, key)
//	schemas(collection, schema)     PRIMARY KEY (collection)
type SqliteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (collection, key)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schemas (
		collection TEXT PRIMARY KEY,
		schema TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// List loads the collection in rowid order and filters in memory; loose
// equality and regexp matching have no SQL equivalent.
func (s *SqliteStore) List(name string, q Query) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query("SELECT key, data FROM records WHERE collection = ? ORDER BY rowid", name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var all []Entry
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		rec, err := collection.ParseRecord([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("record %s/%s: %w", name, key, err)
		}
		all = append(all, Entry{Key: key, Record: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return Apply(all, q), nil
}

func (s *SqliteStore) Get(name, key string) (*collection.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var raw string
	err := s.db.QueryRow(
		"SELECT data FROM records WHERE collection = ? AND key = ?",
		name, key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return collection.ParseRecord([]byte(raw))
}

func (s *SqliteStore) Put(name, key string, rec *collection.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := rec.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO records (collection, key, data) VALUES (?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET data = excluded.data`,
		name, key, string(b),
	)
	return err
}

func (s *SqliteStore) Delete(name, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		"DELETE FROM records WHERE collection = ? AND key = ?",
		name, key,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SqliteStore) Collections() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query("SELECT DISTINCT collection FROM records ORDER BY collection")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SqliteStore) Schema(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var raw string
	err := s.db.QueryRow("SELECT schema FROM schemas WHERE collection = ?", name).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

func (s *SqliteStore) PutSchema(name string, schema []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO schemas (collection, schema) VALUES (?, ?)
		 ON CONFLICT(collection) DO UPDATE SET schema = excluded.schema`,
		name, string(schema),
	)
	return err
}

func (s *SqliteStore) DeleteSchema(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec("DELETE FROM schemas WHERE collection = ?", name)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SqliteStore) Schemas() (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query("SELECT collection, schema FROM schemas")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string][]byte)
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		result[name] = []byte(raw)
	}
	return result, rows.Err()
}
