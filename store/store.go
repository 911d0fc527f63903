// Package store defines the backing store interface and implementations.
package store

import (
	"errors"
	"strings"

	"github.com/stevemurr/restcollection/collection"
)

// ErrInvalidName is returned for collection names that cannot name a file.
var ErrInvalidName = errors.New("invalid collection name")

// ValidName rejects empty names, path separators and dot segments.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`+"\x00") {
		return ErrInvalidName
	}
	return nil
}

// Store is the interface that all backing stores must implement.
// It operates on named collections, where each collection holds records
// keyed by a string identifier, in insertion order.
type Store interface {
	// List returns the records of a collection matching q, in insertion order
	// unless q sorts them.
	List(name string, q Query) (*Page, error)

	// Get returns a single record by key, or nil if not found.
	Get(name, key string) (*collection.Record, error)

	// Put inserts or replaces a record. Replacing keeps its position.
	Put(name, key string, rec *collection.Record) error

	// Delete removes a record. Returns true if it existed.
	Delete(name, key string) (bool, error)

	// Collections returns the names of all collections that contain records.
	Collections() ([]string, error)

	// Schema returns the raw JSON Schema for a collection, or nil.
	Schema(name string) ([]byte, error)

	// PutSchema stores a JSON Schema for a collection.
	PutSchema(name string, schema []byte) error

	// DeleteSchema removes the schema for a collection. Returns true if it existed.
	DeleteSchema(name string) (bool, error)

	// Schemas returns all schemas as collection name -> schema.
	Schemas() (map[string][]byte, error)
}

// Entry is one stored record with its key.
type Entry struct {
	Key    string
	Record *collection.Record
}

// Page is one window of a List result.
type Page struct {
	Entries []Entry
	// Total counts every match before limit and offset were applied.
	Total int
}
