package propagator

// removeFile implements the remove operator for files (spec.md §4.6):
// unlink the current replica's copy; on failure leave the entry NONE so
// it's retried unchanged next run, rather than marking it ERROR.
func removeFile(ctx *Context, st *FileStat) *Classified {
	dst := ctx.dest()
	uri := joinURI(dst.URI, ctx.renameAdjust(st.Path))

	ctx.emit(Progress{Kind: StartDelete, Path: st.Path})
	err := dst.Driver.Unlink(uri)
	if err == nil {
		st.Instruction = Deleted
		ctx.emit(Progress{Kind: EndDelete, Path: st.Path})
		return nil
	}
	if isENOMEM(err) {
		return fatal(errorf("removeFile", "unlink %q: %v", uri, err))
	}
	st.Instruction = None
	return soft(errorf("removeFile", "unlink %q: %v", uri, err))
}

// cleanupIgnored unlinks every path listed against dir in
// replica.IgnoredCleanup, ahead of that directory's deferred rmdir retry
// (spec.md §4.6, §8 scenario 5).
func cleanupIgnored(ctx *Context, r *Replica, dir string) *Classified {
	for _, p := range r.IgnoredCleanup[dir] {
		uri := joinURI(r.URI, p)
		if err := r.Driver.Unlink(uri); err != nil {
			if isENOMEM(err) {
				return fatal(errorf("cleanupIgnored", "unlink %q: %v", uri, err))
			}
			return soft(errorf("cleanupIgnored", "unlink %q: %v", uri, err))
		}
	}
	return nil
}
