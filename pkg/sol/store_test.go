package sol

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mtrqq/amf/pkg/amf"
	"github.com/mtrqq/amf/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, dir string, capacity int) *Store {
	store, err := OpenStore(dir, StoreOptions{Capacity: capacity})
	require.NoError(t, err)
	return store
}

func TestStorePutSync(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir, 4)

	doc := settingsDocument()
	require.NoError(t, store.Put("play/settings", doc))

	cached, err := store.Fetch("play/settings")
	require.NoError(t, err)
	assert.Same(t, doc, cached)

	names, err := store.Names()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, store.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "play", "settings.sol"))
	require.NoError(t, err)
	assert.Equal(t, settings, data)

	names, err = store.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"play/settings"}, names)
}

func TestStoreFetchFromDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.sol"), settings, 0o644))

	store := openStore(t, dir, 4)
	doc, err := store.Fetch("settings")
	require.NoError(t, err)
	assert.Equal(t, settingsDocument(), doc)

	again, err := store.Fetch("settings")
	require.NoError(t, err)
	assert.Same(t, doc, again)

	_, err = store.Fetch("missing")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStoreSkipsUnchangedWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.sol")
	require.NoError(t, os.WriteFile(path, settings, 0o644))

	store := openStore(t, dir, 4)
	doc, err := store.Fetch("settings")
	require.NoError(t, err)
	require.NoError(t, store.Put("settings", doc))

	// a write would replace this marker
	require.NoError(t, os.WriteFile(path, []byte("marker"), 0o644))
	require.NoError(t, store.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("marker"), data)

	doc.Set("klimit", 200.0)
	require.NoError(t, store.Put("settings", doc))
	require.NoError(t, store.Close())

	file, err := ReadFile(path, store.registry)
	require.NoError(t, err)
	limit, _ := file.Document.Get("klimit")
	assert.Equal(t, 200.0, limit)
}

func TestStoreEvictionFlushes(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir, 1)

	require.NoError(t, store.Put("a", NewDocument("a", amf.AMF3)))
	require.NoError(t, store.Put("b", NewDocument("b", amf.AMF0)))

	_, err := os.Stat(filepath.Join(dir, "a.sol"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "b.sol"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	doc, err := store.Fetch("a")
	require.NoError(t, err)
	assert.Equal(t, NewDocument("a", amf.AMF3), doc)

	// fetching a evicted b, which had to be written first
	_, err = os.Stat(filepath.Join(dir, "b.sol"))
	assert.NoError(t, err)
}

func TestStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir, 4)

	require.NoError(t, store.Put("a", NewDocument("a", amf.AMF0)))
	require.NoError(t, store.Sync())
	require.NoError(t, store.Delete("a"))

	_, err := store.Fetch("a")
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.NoError(t, store.Delete("never"))
}

func TestStoreAliasedNames(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir, 4)

	old := NewDocument("old", amf.AMF0)
	current := NewDocument("current", amf.AMF0)

	require.NoError(t, store.Put("saves/a", old))
	require.NoError(t, store.Put("./saves//a", current))

	for _, name := range []string{"saves/a", "saves/./a", "saves/b/../a"} {
		doc, err := store.Fetch(name)
		require.NoError(t, err, "name %q", name)
		assert.Same(t, current, doc, "name %q", name)
	}

	require.NoError(t, store.Sync())
	file, err := ReadFile(filepath.Join(dir, "saves", "a.sol"), registry.New())
	require.NoError(t, err)
	assert.Equal(t, "current", file.Document.Filename)

	require.NoError(t, store.Put("saves/a", old))
	require.NoError(t, store.Delete("./saves/a"))
	require.NoError(t, store.Sync())

	_, err = os.Stat(filepath.Join(dir, "saves", "a.sol"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	names, err := store.Names()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStoreInvalidNames(t *testing.T) {
	store := openStore(t, t.TempDir(), 4)

	for _, name := range []string{"", "../escape", "/abs", ".", "a/.."} {
		err := store.Put(name, NewDocument("x", amf.AMF0))
		assert.True(t, errors.Is(err, ErrInvalidName), "name %q", name)

		_, err = store.Fetch(name)
		assert.True(t, errors.Is(err, ErrInvalidName), "name %q", name)
	}
}

func TestStoreNoDocument(t *testing.T) {
	dir := t.TempDir()
	data, err := (&File{Path: "/x.swf"}).Marshal(nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "path.sol"), data, 0o644))

	_, err = openStore(t, dir, 4).Fetch("path")
	assert.True(t, errors.Is(err, ErrNoDocument))
}

func TestClockPool(t *testing.T) {
	pool := newClockPool(2)
	var flushed []string
	flush := func(s *slot) error {
		flushed = append(flushed, s.name)
		s.dirty = false
		return nil
	}

	a, err := pool.allocate("a", flush)
	require.NoError(t, err)
	a.dirty = true
	_, err = pool.allocate("b", flush)
	require.NoError(t, err)

	// both are referenced, the sweep clears them and takes a
	_, err = pool.allocate("c", flush)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, flushed)

	_, ok := pool.get("a")
	assert.False(t, ok)
	_, ok = pool.get("b")
	assert.True(t, ok)

	// the hand resumes at b, so b goes although it was just referenced
	_, err = pool.allocate("d", flush)
	require.NoError(t, err)
	_, ok = pool.get("b")
	assert.False(t, ok)
	c, ok := pool.get("c")
	require.True(t, ok)

	failing := func(*slot) error { return errors.New("disk full") }
	d, _ := pool.get("d")
	c.dirty = true
	d.dirty = true
	_, err = pool.allocate("e", failing)
	assert.Error(t, err)

	_, ok = pool.get("c")
	assert.True(t, ok)
}
