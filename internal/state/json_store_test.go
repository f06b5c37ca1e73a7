package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Name  string         `json:"name"`
	Count int            `json:"count"`
	Tags  map[string]int `json:"tags,omitempty"`
}

func TestJSONStore_LoadMissingFileLeavesZeroState(t *testing.T) {
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	doc := testDoc{Name: "initial"}
	require.NoError(t, store.Load(&doc))
	require.Equal(t, "initial", doc.Name)
}

func TestJSONStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "nested", "doc.json"))
	require.NoError(t, err)

	in := testDoc{Name: "build", Count: 3, Tags: map[string]int{"full_build": 2}}
	require.NoError(t, store.Save(&in))

	var out testDoc
	require.NoError(t, store.Load(&out))
	require.Equal(t, in, out)
}

func TestJSONStore_SaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(filepath.Join(dir, "doc.json"))
	require.NoError(t, err)

	require.NoError(t, store.Save(&testDoc{Name: "x"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "doc.json", entries[0].Name())
}

func TestJSONStore_Reset(t *testing.T) {
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "doc.json"))
	require.NoError(t, err)

	require.NoError(t, store.Save(&testDoc{Name: "x"}))
	require.NoError(t, store.Reset())
	require.NoError(t, store.Reset())

	_, statErr := os.Stat(store.Path())
	require.True(t, os.IsNotExist(statErr))
}
