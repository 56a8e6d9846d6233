package propagator

import (
	"github.com/nicolagi/csync/jhash"
	"github.com/nicolagi/csync/progress"
)

const ancestorErrorMessage = "Error within the directory"

// recordError implements record_error (spec.md §4.7): mark st (and every
// ancestor directory entry present in either tree) ERROR, first-write-wins
// on ErrorString, then fold the failure into a *progress.Info so the
// statedb persists it at the end of the run.
//
// pi is the resumed record looked up during pre-flight, or nil if this
// entry had none. The returned *progress.Info is always the one appended
// to ctx.ProgressRecords.
func recordError(ctx *Context, st *FileStat, cerr *Classified, pi *progress.Info) *progress.Info {
	msg := ""
	if cerr != nil {
		msg = cerr.Error()
	}
	if st.ErrorString == "" {
		st.ErrorString = msg
	}
	st.Instruction = Error

	markAncestors(ctx, st)

	if pi == nil {
		pi = &progress.Info{
			Phash:      st.Phash,
			ModTime:    st.ModTime,
			MD5:        st.MD5,
			Chunk:      0,
			TransferID: 0,
			Error:      1,
		}
	} else {
		pi.Error++
	}
	pi.ErrorString = msg
	ctx.ProgressRecords = append(ctx.ProgressRecords, pi)
	return pi
}

// markAncestors walks up from st's parent directory, by jhash64(dirname),
// looking it up first in the local tree then the remote tree, marking ERROR
// (without overwriting an existing message) and recursing upward. Per
// spec.md §9 Design Notes a tree node carries no parent link: the parent is
// re-derived by string-dirname and looked up by hash.
func markAncestors(ctx *Context, st *FileStat) {
	dir := parentDir(st.Path)
	if dir == "" {
		return
	}
	dirHash := jhash.Sum64String(dir)
	for _, tree := range []*Tree{treeOf(ctx.Local), treeOf(ctx.Remote)} {
		if tree == nil {
			continue
		}
		ancestor := tree.Lookup(dirHash)
		if ancestor == nil {
			continue
		}
		if ancestor.ErrorString == "" {
			ancestor.ErrorString = ancestorErrorMessage
		}
		if ancestor.Instruction != Error {
			ancestor.Instruction = Error
			markAncestors(ctx, ancestor)
		}
		return
	}
}

func treeOf(r *Replica) *Tree {
	if r == nil {
		return nil
	}
	return r.Tree
}
