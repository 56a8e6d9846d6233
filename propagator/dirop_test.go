package propagator

import (
	"testing"
	"time"

	"github.com/nicolagi/csync/vio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dirCtx(remote *vio.MemoryDriver) *Context {
	return &Context{
		Local:  &Replica{Type: "local", URI: "/local", Tree: NewTree(nil)},
		Remote: &Replica{Type: "remote", URI: "/remote", Driver: remote, Tree: NewTree(nil)},
		Direction: LocalToRemote,
		Config:    testConfig(),
	}
}

func TestNewDirCreatesAndReconciles(t *testing.T) {
	remote := vio.NewMemoryDriver(vio.Capabilities{})
	ctx := dirCtx(remote)
	mt := time.Now().Truncate(time.Second)
	st := &FileStat{Path: "sub", Type: Dir, Instruction: New, Mode: 0700, ModTime: mt}

	cerr := newDir(ctx, st)
	require.Nil(t, cerr)
	assert.Equal(t, Updated, st.Instruction)
	assert.True(t, remote.Exists("/remote/sub"))
}

func TestSyncDirDoesNotMkdir(t *testing.T) {
	remote := vio.NewMemoryDriver(vio.Capabilities{})
	ctx := dirCtx(remote)
	mt := time.Now().Truncate(time.Second)
	st := &FileStat{Path: "sub", Type: Dir, Instruction: Sync, Mode: ctx.Config.DefaultDirMode, ModTime: mt}

	cerr := syncDir(ctx, st)
	require.Nil(t, cerr)
	assert.Equal(t, Updated, st.Instruction)
	assert.False(t, remote.Exists("/remote/sub"))
}

func TestRemoveDirDeletesEmptyDir(t *testing.T) {
	remote := vio.NewMemoryDriver(vio.Capabilities{})
	ctx := dirCtx(remote)
	require.NoError(t, remote.Mkdirs("/remote/empty", 0755))
	st := &FileStat{Path: "empty", Type: Dir, Instruction: Remove}

	cerr := removeDir(ctx, st)
	require.Nil(t, cerr)
	assert.Equal(t, Deleted, st.Instruction)
	assert.False(t, remote.Exists("/remote/empty"))
}

func TestRemoveDirDefersOnNotEmpty(t *testing.T) {
	remote := vio.NewMemoryDriver(vio.Capabilities{})
	ctx := dirCtx(remote)
	require.NoError(t, remote.Mkdirs("/remote/full", 0755))
	h, err := remote.Open("/remote/full/child.txt", vio.OCreate|vio.OWrOnly, 0644)
	require.NoError(t, err)
	_, err = remote.Write(h, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, remote.Close(h))

	st := &FileStat{Path: "full", Type: Dir, Instruction: Remove}
	cerr := removeDir(ctx, st)
	require.Nil(t, cerr)
	assert.Equal(t, Remove, st.Instruction)
	require.Len(t, ctx.Remote.deferredRmdir, 1)
	assert.Same(t, st, ctx.Remote.deferredRmdir[0])
	assert.True(t, remote.Exists("/remote/full"))
}
