package propagator

import (
	"testing"
	"time"

	"github.com/nicolagi/csync/progress"
	"github.com/nicolagi/csync/vio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCtx(dir Direction, local, remote *vio.MemoryDriver) *Context {
	return &Context{
		Local:          &Replica{Type: "local", URI: "/local", Driver: local, Tree: NewTree(nil)},
		Remote:         &Replica{Type: "remote", URI: "/remote", Driver: remote, Tree: NewTree(nil)},
		Direction:      dir,
		Config:         testConfig(),
		Progress:       newMemStore(),
		PendingRenames: map[string]string{},
	}
}

func TestPushFileAtomicCapableServerUsesPut(t *testing.T) {
	local := vio.NewMemoryDriver(vio.Capabilities{})
	remote := vio.NewMemoryDriver(vio.Capabilities{AtomarCopySupport: true, PutSupport: true, DoPostCopyStat: true})

	mt := time.Now().Truncate(time.Second)
	content := []byte("hello world")
	h, err := local.Open("/local/a.txt", vio.OCreate|vio.OWrOnly, 0644)
	require.NoError(t, err)
	_, err = local.Write(h, content)
	require.NoError(t, err)
	require.NoError(t, local.Close(h))
	require.NoError(t, local.Utimes("/local/a.txt", mt))

	ctx := newCtx(LocalToRemote, local, remote)
	st := &FileStat{Path: "a.txt", Type: File, Instruction: New, Size: int64(len(content)), ModTime: mt, Mode: 0644}

	cerr, _ := pushFile(ctx, st)
	require.Nil(t, cerr)
	assert.Equal(t, Updated, st.Instruction)
	assert.Equal(t, int64(len(content)), ctx.Counters.ByteCurrent)

	got, ok := remote.Content("/remote/a.txt")
	require.True(t, ok)
	assert.Equal(t, content, got)

	// No tmp sibling should have been left behind.
	assert.False(t, remote.Exists("/remote/a.txt.~deadbeef.tmp"))
}

func TestPushFileNonAtomicServerStagesAndRenames(t *testing.T) {
	local := vio.NewMemoryDriver(vio.Capabilities{})
	remote := vio.NewMemoryDriver(vio.Capabilities{AtomarCopySupport: false, UseSendFileSupport: true, DoPostCopyStat: true})

	mt := time.Now().Truncate(time.Second)
	content := []byte("staged content")
	h, err := local.Open("/local/b.txt", vio.OCreate|vio.OWrOnly, 0644)
	require.NoError(t, err)
	_, err = local.Write(h, content)
	require.NoError(t, err)
	require.NoError(t, local.Close(h))
	require.NoError(t, local.Utimes("/local/b.txt", mt))

	ctx := newCtx(LocalToRemote, local, remote)
	st := &FileStat{Path: "b.txt", Type: File, Instruction: New, Size: int64(len(content)), ModTime: mt, Mode: 0644}

	cerr, _ := pushFile(ctx, st)
	require.Nil(t, cerr)
	assert.Equal(t, Updated, st.Instruction)
	got, ok := remote.Content("/remote/b.txt")
	require.True(t, ok)
	assert.Equal(t, content, got)
}

func TestPushFileResumesAfterInjectedFailure(t *testing.T) {
	local := vio.NewMemoryDriver(vio.Capabilities{})
	remote := vio.NewMemoryDriver(vio.Capabilities{UseSendFileSupport: true, DoPostCopyStat: true})
	remote.FailWriteAfter = 1

	mt := time.Now().Truncate(time.Second)
	content := make([]byte, 20000)
	for i := range content {
		content[i] = byte(i)
	}
	h, err := local.Open("/local/c.txt", vio.OCreate|vio.OWrOnly, 0644)
	require.NoError(t, err)
	_, err = local.Write(h, content)
	require.NoError(t, err)
	require.NoError(t, local.Close(h))
	require.NoError(t, local.Utimes("/local/c.txt", mt))

	ctx := newCtx(LocalToRemote, local, remote)
	st := &FileStat{Path: "c.txt", Type: File, Instruction: New, Size: int64(len(content)), ModTime: mt, Mode: 0644}

	cerr, pi := pushFile(ctx, st)
	require.NotNil(t, cerr)
	require.NotNil(t, pi)
	assert.NotEmpty(t, pi.Tmpfile)
	require.NoError(t, ctx.Progress.Put(pi))

	// Second run: no further injected failures, should resume and finish.
	remote.FailWriteAfter = 0
	st2 := &FileStat{Path: "c.txt", Type: File, Instruction: New, Size: int64(len(content)), ModTime: mt, Mode: 0644}
	cerr2, _ := pushFile(ctx, st2)
	require.Nil(t, cerr2)
	assert.Equal(t, Updated, st2.Instruction)

	got, ok := remote.Content("/remote/c.txt")
	require.True(t, ok)
	assert.Equal(t, content, got)
}

func TestPushFileSkipsBlacklistedEntry(t *testing.T) {
	local := vio.NewMemoryDriver(vio.Capabilities{})
	remote := vio.NewMemoryDriver(vio.Capabilities{UseSendFileSupport: true})
	ctx := newCtx(LocalToRemote, local, remote)

	mt := time.Now().Truncate(time.Second)
	st := &FileStat{Path: "bad.txt", Type: File, Instruction: New, Size: 10, ModTime: mt, Mode: 0644}
	st.Phash = 1

	require.NoError(t, ctx.Progress.Put(&progress.Info{Phash: st.Phash, ModTime: st.ModTime, MD5: st.MD5, Error: 4}))

	cerr, pi := pushFile(ctx, st)
	require.NotNil(t, cerr)
	require.NotNil(t, pi)
	assert.Equal(t, Soft, cerr.Class)
	assert.False(t, remote.Exists("/remote/bad.txt"))
}
