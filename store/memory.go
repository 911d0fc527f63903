package store

import (
	"bytes"
	"sort"
	"sync"

	"github.com/stevemurr/restcollection/collection"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*collection.Record // name -> key -> record
	schemas     map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*collection.Record),
		schemas:     make(map[string][]byte),
	}
}

// entries flattens an ordered key -> record container, copying every record.
func entries(coll *collection.Record) []Entry {
	out := make([]Entry, 0, coll.Len())
	for _, k := range coll.Keys() {
		v, _ := coll.Get(k)
		rec, ok := v.(*collection.Record)
		if !ok {
			continue
		}
		out = append(out, Entry{Key: k, Record: rec.Clone()})
	}
	return out
}

func (m *MemoryStore) List(name string, q Query) (*Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[name]
	if !ok {
		return &Page{Entries: []Entry{}}, nil
	}
	return Apply(entries(coll), q), nil
}

func (m *MemoryStore) Get(name, key string) (*collection.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.collections[name].Get(key)
	if !ok {
		return nil, nil
	}
	rec, _ := v.(*collection.Record)
	return rec.Clone(), nil
}

func (m *MemoryStore) Put(name, key string, rec *collection.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[name]
	if !ok {
		coll = collection.NewRecord()
		m.collections[name] = coll
	}
	coll.Set(key, rec.Clone())
	return nil
}

func (m *MemoryStore) Delete(name, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[name]
	if !ok {
		return false, nil
	}
	return coll.Delete(key), nil
}

func (m *MemoryStore) Collections() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, coll := range m.collections {
		if coll.Len() > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Schema(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schemas[name]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(s), nil
}

func (m *MemoryStore) PutSchema(name string, schema []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[name] = bytes.Clone(schema)
	return nil
}

func (m *MemoryStore) DeleteSchema(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schemas[name]; !ok {
		return false, nil
	}
	delete(m.schemas, name)
	return true, nil
}

func (m *MemoryStore) Schemas() (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string][]byte, len(m.schemas))
	for k, v := range m.schemas {
		result[k] = bytes.Clone(v)
	}
	return result, nil
}
