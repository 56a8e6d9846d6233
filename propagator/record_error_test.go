package propagator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordErrorMarksEntryAndFirstWriteWins(t *testing.T) {
	st := &FileStat{Path: "dir/a.txt", Type: File, Instruction: New}
	ctx := &Context{Local: &Replica{Tree: NewTree([]*FileStat{st})}, Remote: &Replica{}}

	pi := recordError(ctx, st, soft(errors.New("first failure")), nil)
	require.NotNil(t, pi)
	assert.Equal(t, Error, st.Instruction)
	assert.Contains(t, st.ErrorString, "first failure")
	assert.Equal(t, 1, pi.Error)

	recordError(ctx, st, soft(errors.New("second failure")), pi)
	assert.Contains(t, st.ErrorString, "first failure")
	assert.Equal(t, 2, pi.Error)
	require.Len(t, ctx.ProgressRecords, 2)
}

func TestRecordErrorMarksAncestorsUpToRoot(t *testing.T) {
	root := &FileStat{Path: "top", Type: Dir, Instruction: Sync}
	mid := &FileStat{Path: "top/mid", Type: Dir, Instruction: Sync}
	leaf := &FileStat{Path: "top/mid/leaf.txt", Type: File, Instruction: New}
	tree := NewTree([]*FileStat{root, mid, leaf})
	ctx := &Context{Local: &Replica{Tree: tree}, Remote: &Replica{Tree: NewTree(nil)}}

	recordError(ctx, leaf, soft(errors.New("leaf broke")), nil)

	assert.Equal(t, Error, leaf.Instruction)
	assert.Equal(t, Error, mid.Instruction)
	assert.Equal(t, Error, root.Instruction)
	assert.Equal(t, ancestorErrorMessage, mid.ErrorString)
	assert.Equal(t, ancestorErrorMessage, root.ErrorString)
}

func TestRecordErrorAncestorPreservesExistingMessage(t *testing.T) {
	root := &FileStat{Path: "top", Type: Dir, Instruction: Error, ErrorString: "already broken"}
	leaf := &FileStat{Path: "top/leaf.txt", Type: File, Instruction: New}
	tree := NewTree([]*FileStat{root, leaf})
	ctx := &Context{Local: &Replica{Tree: tree}, Remote: &Replica{Tree: NewTree(nil)}}

	recordError(ctx, leaf, soft(errors.New("leaf broke")), nil)

	assert.Equal(t, "already broken", root.ErrorString)
}

func TestRecordErrorAtRootDoesNotPanic(t *testing.T) {
	root := &FileStat{Path: "top.txt", Type: File, Instruction: New}
	tree := NewTree([]*FileStat{root})
	ctx := &Context{Local: &Replica{Tree: tree}, Remote: &Replica{Tree: NewTree(nil)}}

	assert.NotPanics(t, func() {
		recordError(ctx, root, soft(errors.New("boom")), nil)
	})
}
