package propagator

// countEntries accumulates FileCount/ByteSum over every FILE entry whose
// instruction is NEW, SYNC or CONFLICT, across both replica trees -- remote
// first, then local, as init_progress requires (spec.md §4.1).
func countEntries(ctx *Context) (fileCount, byteSum int64) {
	for _, r := range []*Replica{ctx.Remote, ctx.Local} {
		if r == nil || r.Tree == nil {
			continue
		}
		for _, st := range r.Tree.Entries() {
			if st.Type != File {
				continue
			}
			switch st.Instruction {
			case New, Sync, Conflict:
				fileCount++
				byteSum += st.Size
			}
		}
	}
	return fileCount, byteSum
}

// abortErr is the hard error the visitors return once ctx.abort is
// observed set, terminating the walk (spec.md §4.1, "poll ctx.abort on
// every entry; if set... return a hard error that terminates the walk").
var abortErr = errorf("walk", "aborted")

// checkAbort polls the context's abort flag. Non-nil means the caller must
// stop the walk immediately.
func checkAbort(ctx *Context) *Classified {
	if ctx.Aborted() {
		return fatal(abortErr)
	}
	return nil
}
