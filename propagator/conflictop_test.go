package propagator

import (
	"testing"
	"time"

	"github.com/nicolagi/csync/vio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conflictCtx(local, remote *vio.MemoryDriver) *Context {
	return &Context{
		Local:          &Replica{Type: "local", URI: "/local", Driver: local, Tree: NewTree(nil)},
		Remote:         &Replica{Type: "remote", URI: "/remote", Driver: remote, Tree: NewTree(nil)},
		Direction:      RemoteToLocal,
		Config:         testConfig(),
		Progress:       newMemStore(),
		PendingRenames: map[string]string{},
	}
}

func writeFile(t *testing.T, d *vio.MemoryDriver, uri string, content []byte, mt time.Time) {
	t.Helper()
	h, err := d.Open(uri, vio.OCreate|vio.OWrOnly, 0644)
	require.NoError(t, err)
	_, err = d.Write(h, content)
	require.NoError(t, err)
	require.NoError(t, d.Close(h))
	require.NoError(t, d.Utimes(uri, mt))
}

func TestConflictEntryKeepsBackupWhenContentDiffers(t *testing.T) {
	local := vio.NewMemoryDriver(vio.Capabilities{})
	remote := vio.NewMemoryDriver(vio.Capabilities{GetSupport: true})
	mt := time.Now().Truncate(time.Second)

	writeFile(t, local, "/local/conflict.txt", []byte("old local content"), mt)
	writeFile(t, remote, "/remote/conflict.txt", []byte("new remote content"), mt)

	ctx := conflictCtx(local, remote)
	st := &FileStat{Path: "conflict.txt", Type: File, Instruction: Conflict, Size: int64(len("new remote content")), ModTime: mt, Mode: 0644}

	cerr, pi := conflictEntry(ctx, st, mt)
	require.Nil(t, cerr)
	require.Nil(t, pi)

	got, ok := local.Content("/local/conflict.txt")
	require.True(t, ok)
	assert.Equal(t, "new remote content", string(got))

	backupURI := conflictBackupURI("/local/conflict.txt", mt, ctx.Config.ConflictTimeFormat)
	backup, ok := local.Content(backupURI)
	require.True(t, ok, "backup should survive when content differs")
	assert.Equal(t, "old local content", string(backup))
}

func TestConflictEntryRemovesBackupWhenContentIdentical(t *testing.T) {
	local := vio.NewMemoryDriver(vio.Capabilities{})
	remote := vio.NewMemoryDriver(vio.Capabilities{GetSupport: true})
	mt := time.Now().Truncate(time.Second)

	writeFile(t, local, "/local/same.txt", []byte("same bytes"), mt)
	writeFile(t, remote, "/remote/same.txt", []byte("same bytes"), mt)

	ctx := conflictCtx(local, remote)
	st := &FileStat{Path: "same.txt", Type: File, Instruction: Conflict, Size: int64(len("same bytes")), ModTime: mt, Mode: 0644}

	cerr, pi := conflictEntry(ctx, st, mt)
	require.Nil(t, cerr)
	require.Nil(t, pi)

	backupURI := conflictBackupURI("/local/same.txt", mt, ctx.Config.ConflictTimeFormat)
	_, ok := local.Content(backupURI)
	assert.False(t, ok, "identical backup should be removed")
}

func TestConflictBackupURIFormat(t *testing.T) {
	mt := time.Date(2026, 7, 30, 9, 5, 3, 0, time.UTC)
	got := conflictBackupURI("/local/dir/file.txt", mt, "20060102-150405")
	assert.Equal(t, "/local/dir/file_conflict-20260730-090503.txt", got)
}
