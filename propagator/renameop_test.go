package propagator

import (
	"testing"
	"time"

	"github.com/nicolagi/csync/vio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renameCtx(remote *vio.MemoryDriver, remoteTree *Tree, localTree *Tree) *Context {
	return &Context{
		Local:          &Replica{Type: "local", URI: "/local", Tree: localTree},
		Remote:         &Replica{Type: "remote", URI: "/remote", Driver: remote, Tree: remoteTree},
		Direction:      RemoteToLocal,
		Config:         testConfig(),
		PendingRenames: map[string]string{},
	}
}

func TestRenameEntrySuccessMirrorsDestEntry(t *testing.T) {
	remote := vio.NewMemoryDriver(vio.Capabilities{DoPostCopyStat: true})
	mt := time.Now().Truncate(time.Second)
	h, err := remote.Open("/remote/old.txt", vio.OCreate|vio.OWrOnly, 0644)
	require.NoError(t, err)
	_, err = remote.Write(h, []byte("content"))
	require.NoError(t, err)
	require.NoError(t, remote.Close(h))
	require.NoError(t, remote.Utimes("/remote/old.txt", mt))

	destEntry := &FileStat{Path: "new.txt", Type: File}
	src := &FileStat{Path: "old.txt", DestPath: "new.txt", Type: File, Instruction: Rename, ModTime: mt}
	remoteTree := NewTree([]*FileStat{src})
	localTree := NewTree([]*FileStat{destEntry})

	ctx := renameCtx(remote, remoteTree, localTree)

	cerr, errEntry := renameEntry(ctx, src)
	require.Nil(t, cerr)
	assert.Nil(t, errEntry)
	assert.Equal(t, Deleted, src.Instruction)
	assert.True(t, remote.Exists("/remote/new.txt"))
	assert.False(t, remote.Exists("/remote/old.txt"))
	assert.NotEmpty(t, destEntry.MD5)
}

func TestRenameEntryFailureRecordsAgainstDestEntry(t *testing.T) {
	remote := vio.NewMemoryDriver(vio.Capabilities{})

	destEntry := &FileStat{Path: "new.txt", Type: File}
	src := &FileStat{Path: "missing.txt", DestPath: "new.txt", Type: File, Instruction: Rename}
	remoteTree := NewTree([]*FileStat{src})
	localTree := NewTree([]*FileStat{destEntry})

	ctx := renameCtx(remote, remoteTree, localTree)

	cerr, errEntry := renameEntry(ctx, src)
	require.NotNil(t, cerr)
	assert.Same(t, destEntry, errEntry)
	assert.Equal(t, Updated, src.Instruction)
}

func TestRenameEntrySameURIIsNoopRename(t *testing.T) {
	remote := vio.NewMemoryDriver(vio.Capabilities{})
	mt := time.Now().Truncate(time.Second)
	h, err := remote.Open("/remote/same.txt", vio.OCreate|vio.OWrOnly, 0644)
	require.NoError(t, err)
	_, err = remote.Write(h, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, remote.Close(h))

	src := &FileStat{Path: "same.txt", DestPath: "same.txt", Type: File, Instruction: Rename, ModTime: mt}
	remoteTree := NewTree([]*FileStat{src})
	ctx := renameCtx(remote, remoteTree, NewTree(nil))

	cerr, errEntry := renameEntry(ctx, src)
	require.Nil(t, cerr)
	assert.Nil(t, errEntry)
	assert.Equal(t, Deleted, src.Instruction)
}
