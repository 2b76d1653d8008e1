package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/ruteri/tee-ta-bridge/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFileStore(dir, logger), dir
}

func collect(t *testing.T, store interfaces.FailureStore) []string {
	names, err := store.List()
	require.NoError(t, err)
	result := slices.Sorted(names)
	if result == nil {
		result = []string{}
	}
	return result
}

func TestFileStore_WriteReadRoundTrip(t *testing.T) {
	store, _ := newTestFileStore(t)

	require.NoError(t, store.Write("user-1", []byte{0x01, 0x02, 0x03}))
	data, err := store.Read("user-1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, data)

	// A write fully replaces the previous contents, including when shorter.
	require.NoError(t, store.Write("user-1", []byte{0xFF}))
	data, err = store.Read("user-1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF}, data)

	require.NoError(t, store.Write("user-1", nil))
	data, err = store.Read("user-1")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileStore_NotFound(t *testing.T) {
	store, _ := newTestFileStore(t)

	_, err := store.Read("never-written")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.NotErrorIs(t, err, interfaces.ErrInternal)

	err = store.Delete("never-written")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.NotErrorIs(t, err, interfaces.ErrInternal)
}

func TestFileStore_DeleteThenRead(t *testing.T) {
	store, dir := newTestFileStore(t)

	require.NoError(t, store.Write("user-2", []byte("record")))
	require.NoError(t, store.Delete("user-2"))

	_, err := store.Read("user-2")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.NoFileExists(t, filepath.Join(dir, "user-2"))

	assert.ErrorIs(t, store.Delete("user-2"), interfaces.ErrNotFound)
}

func TestFileStore_WriteLeavesNoTempFiles(t *testing.T) {
	store, dir := newTestFileStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Write("user-3", []byte{byte(i)}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "user-3", entries[0].Name())

	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStore_WriteFailsWhenDirectoryRemoved(t *testing.T) {
	store, dir := newTestFileStore(t)
	require.NoError(t, os.RemoveAll(dir))

	err := store.Write("user-4", []byte("record"))
	assert.ErrorIs(t, err, interfaces.ErrInternal)

	_, err = store.List()
	assert.ErrorIs(t, err, interfaces.ErrInternal)
}

func TestFileStore_InvalidNames(t *testing.T) {
	store, _ := newTestFileStore(t)

	for _, name := range []string{"", ".", "..", "a/b", "../escape", ".tmp-user", "nul\x00byte"} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, store.Write(name, []byte("x")), interfaces.ErrInternal)
			_, err := store.Read(name)
			assert.ErrorIs(t, err, interfaces.ErrInternal)
			assert.ErrorIs(t, store.Delete(name), interfaces.ErrInternal)
		})
	}
}

func TestFileStore_List(t *testing.T) {
	store, dir := newTestFileStore(t)

	assert.Equal(t, []string{}, collect(t, store))

	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, store.Write(name, []byte(name)))
	}

	// Entries that are not records are skipped.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-leftover-123"), []byte("x"), 0600))

	assert.Equal(t, []string{"alice", "bob", "carol"}, collect(t, store))
}

func TestFileStore_ListSkipsUndecodableNames(t *testing.T) {
	store, dir := newTestFileStore(t)
	require.NoError(t, store.Write("valid", []byte("x")))

	if err := os.WriteFile(filepath.Join(dir, "bad\xff\xfename"), []byte("x"), 0600); err != nil {
		t.Skipf("filesystem rejects non UTF-8 names: %v", err)
	}

	assert.Equal(t, []string{"valid"}, collect(t, store))
}

func TestFileStore_ListIsOneShotAndLazy(t *testing.T) {
	store, _ := newTestFileStore(t)
	for i := 0; i < 2*listBatchSize+3; i++ {
		require.NoError(t, store.Write(filepath.Base(t.Name())+"-"+string(rune('a'+i%26))+string(rune('a'+i/26)), []byte("x")))
	}

	names, err := store.List()
	require.NoError(t, err)

	// Stop early: the rest of the directory is never read.
	seen := 0
	for range names {
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)

	// A second pass over the same sequence yields nothing.
	again := 0
	for range names {
		again++
	}
	assert.Zero(t, again)

	// A fresh listing sees everything.
	assert.Len(t, collect(t, store), 2*listBatchSize+3)
}

func TestFileStore_UnrangedListHoldsNoDescriptor(t *testing.T) {
	if _, err := os.Stat("/proc/self/fd"); err != nil {
		t.Skip("no /proc/self/fd on this platform")
	}
	openFDs := func() int {
		entries, err := os.ReadDir("/proc/self/fd")
		require.NoError(t, err)
		return len(entries)
	}

	store, _ := newTestFileStore(t)
	require.NoError(t, store.Write("user", []byte("x")))

	before := openFDs()
	for i := 0; i < 50; i++ {
		_, err := store.List()
		require.NoError(t, err)
	}
	assert.Less(t, openFDs()-before, 10)

	// A listing taken before the directory disappears yields nothing.
	names, err := store.List()
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(store.dir))
	assert.Empty(t, slices.Collect(names))
}

func TestCheckDirectory(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, CheckDirectory(dir))

	err := CheckDirectory(filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))
	err = CheckDirectory(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a directory")

	// The check never creates the directory.
	assert.NoDirExists(t, filepath.Join(dir, "missing"))
}
