package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/stevemurr/restcollection/collection"
)

// JsonFileStore stores each collection as a separate JSON file on disk.
// A file is one object of key -> record, in insertion order.
//
// Layout:
//
//	data_dir/
//	  _schemas.json   # schema registry
//	  tasks.json      # "tasks" collection
//	  users.json      # "users" collection
type JsonFileStore struct {
	mu  sync.RWMutex
	dir string
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JsonFileStore{dir: dir}, nil
}

func (s *JsonFileStore) collectionPath(name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	// "_" files hold store metadata.
	if strings.HasPrefix(name, "_") {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name+".json"), nil
}

func (s *JsonFileStore) schemasPath() string {
	return filepath.Join(s.dir, "_schemas.json")
}

// loadFile reads an ordered object. A missing file loads as empty.
func (s *JsonFileStore) loadFile(path string) (*collection.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return collection.NewRecord(), nil
		}
		return nil, err
	}
	rec, err := collection.ParseRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

func (s *JsonFileStore) saveFile(path string, data *collection.Record) error {
	b, err := data.MarshalJSON()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return err
	}
	return os.WriteFile(path, out.Bytes(), 0o644)
}

func (s *JsonFileStore) List(name string, q Query) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path, err := s.collectionPath(name)
	if err != nil {
		return nil, err
	}
	coll, err := s.loadFile(path)
	if err != nil {
		return nil, err
	}
	return Apply(entries(coll), q), nil
}

func (s *JsonFileStore) Get(name, key string) (*collection.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path, err := s.collectionPath(name)
	if err != nil {
		return nil, err
	}
	coll, err := s.loadFile(path)
	if err != nil {
		return nil, err
	}
	v, _ := coll.Get(key)
	rec, _ := v.(*collection.Record)
	return rec, nil
}

func (s *JsonFileStore) Put(name, key string, rec *collection.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, err := s.collectionPath(name)
	if err != nil {
		return err
	}
	coll, err := s.loadFile(path)
	if err != nil {
		return err
	}
	coll.Set(key, rec)
	return s.saveFile(path, coll)
}

func (s *JsonFileStore) Delete(name, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, err := s.collectionPath(name)
	if err != nil {
		return false, err
	}
	coll, err := s.loadFile(path)
	if err != nil {
		return false, err
	}
	if !coll.Delete(key) {
		return false, nil
	}
	return true, s.saveFile(path, coll)
}

func (s *JsonFileStore) Collections() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range files {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func (s *JsonFileStore) Schema(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schemas, err := s.loadFile(s.schemasPath())
	if err != nil {
		return nil, err
	}
	raw, ok := schemas.Get(name)
	if !ok {
		return nil, nil
	}
	return json.Marshal(raw)
}

func (s *JsonFileStore) PutSchema(name string, schema []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parsed, err := collection.ParseRecord(schema)
	if err != nil {
		return err
	}
	path := s.schemasPath()
	schemas, err := s.loadFile(path)
	if err != nil {
		return err
	}
	schemas.Set(name, parsed)
	return s.saveFile(path, schemas)
}

func (s *JsonFileStore) DeleteSchema(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.schemasPath()
	schemas, err := s.loadFile(path)
	if err != nil {
		return false, err
	}
	if !schemas.Delete(name) {
		return false, nil
	}
	return true, s.saveFile(path, schemas)
}

func (s *JsonFileStore) Schemas() (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schemas, err := s.loadFile(s.schemasPath())
	if err != nil {
		return nil, err
	}
	result := make(map[string][]byte, schemas.Len())
	for _, k := range schemas.Keys() {
		v, _ := schemas.Get(k)
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		result[k] = b
	}
	return result, nil
}
