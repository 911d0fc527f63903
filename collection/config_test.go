package collection_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/restcollection/collection"
)

const collectionsYAML = `
collections:
  tasks:
    endpoint: http://localhost:8080/collections/tasks/items
    params:
      limit: 20
      sort: -updatedAt
      status: null
    autoload: true
  users:
    endpoint: http://localhost:8080/collections/users/items
    result_attribute: items
`

func TestParseConfig(t *testing.T) {
	cfg, err := collection.ParseConfig([]byte(collectionsYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks", "users"}, cfg.Names())

	tasks := cfg.Collections["tasks"]
	assert.True(t, tasks.Autoload)
	assert.Equal(t, 20, tasks.Params["limit"])
	assert.Contains(t, tasks.Params, "status")
	assert.Nil(t, tasks.Params["status"])
	assert.Equal(t, "limit=20&sort=-updatedAt", tasks.Params.Encode())

	assert.Equal(t, "items", cfg.Collections["users"].ResultAttribute)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := collection.ParseConfig([]byte("collections:\n  broken:\n    params: {limit: 1}\n"))
	assert.ErrorIs(t, err, collection.ErrNoEndpoint)

	_, err = collection.ParseConfig([]byte("collections: [1, 2"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collections.yaml")
	require.NoError(t, os.WriteFile(path, []byte(collectionsYAML), 0o644))

	cfg, err := collection.LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Collections, 2)

	_, err = collection.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
