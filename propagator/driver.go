package propagator

import (
	"sort"
	"time"
)

// InitProgress implements init_progress (spec.md §4.1): when a progress
// callback is registered, walk both trees (remote first, then local) with
// the counting visitor, publish the totals, and emit START_SYNC_SEQUENCE.
// No-op when no callback is registered.
func InitProgress(ctx *Context) {
	if ctx.Callback == nil {
		return
	}
	fileCount, byteSum := countEntries(ctx)
	ctx.Counters.FileCount = fileCount
	ctx.Counters.ByteSum = byteSum
	ctx.emit(Progress{
		Kind:                    StartSyncSequence,
		OverallFileCount:        fileCount,
		OverallTransmissionSize: byteSum,
	})
}

// FinalizeProgress implements finalize_progress (spec.md §4.1): emit
// FINISHED_SYNC_SEQUENCE and clear the module property -- there is no
// module property object in this port, so clearing is a no-op beyond the
// notification itself. It additionally returns a Summary of the run, the
// equivalent of the original csync_sync's end-of-run report (SPEC_FULL.md
// §12).
func FinalizeProgress(ctx *Context) Summary {
	ctx.emit(Progress{Kind: FinishedSyncSequence})
	var files int64
	if dst := ctx.currentTree(); dst != nil && dst.Tree != nil {
		for _, st := range dst.Tree.Entries() {
			if st.Type == File && st.Instruction == Updated {
				files++
			}
		}
	}
	var errs int64
	for _, pi := range ctx.ProgressRecords {
		if pi.Error > 0 {
			errs++
		}
	}
	return Summary{
		FilesTransferred: files,
		BytesTransferred: ctx.Counters.ByteCurrent,
		Errors:           errs,
	}
}

// PropagateFiles implements propagate_files (spec.md §4.1): the file
// visitor pass, the directory visitor pass, and the cleanup pass, for the
// tree of the current direction. Each pass short-circuits to failure when
// its walk returns a Fatal error; individual per-entry failures do not
// stop the walk, they are recorded on the entry instead.
func PropagateFiles(ctx *Context) error {
	if err := filePass(ctx); err != nil {
		return err
	}
	if err := dirPass(ctx); err != nil {
		return err
	}
	return cleanupPass(ctx)
}

func filePass(ctx *Context) error {
	tree := ctx.currentTree()
	if tree == nil || tree.Tree == nil {
		return nil
	}
	now := time.Now()
	for _, st := range tree.Tree.Entries() {
		if st.Type == Dir {
			continue
		}
		// Symlinks are walked but never acted on: the original leaves this
		// a FIXME (csync_propagate.c's file pass breaks on
		// CSYNC_FTW_TYPE_SLINK without calling any operator).
		if st.Type == Slink {
			continue
		}
		if cerr := checkAbort(ctx); cerr != nil {
			return cerr
		}

		var cerr *Classified

		switch st.Instruction {
		case New, Sync:
			c, pinfo := pushFile(ctx, st)
			cerr = c
			if cerr != nil {
				recordError(ctx, st, cerr, pinfo)
			}
		case Conflict:
			c, pinfo := conflictEntry(ctx, st, now)
			cerr = c
			if cerr != nil {
				recordError(ctx, st, cerr, pinfo)
			}
		case Remove:
			// A soft unlink failure leaves the entry NONE (see removeFile)
			// so it is retried next run; only a fatal one is recorded.
			cerr = removeFile(ctx, st)
			if cerr != nil && cerr.Class == Fatal {
				recordError(ctx, st, cerr, nil)
			}
		case Rename:
			if ctx.Direction == RemoteToLocal {
				c, errEntry := renameEntry(ctx, st)
				cerr = c
				if cerr != nil {
					recordError(ctx, errEntry, cerr, nil)
				}
			}
		default:
			continue
		}

		if cerr != nil && cerr.Class == Fatal {
			return cerr
		}
	}
	return nil
}

func dirPass(ctx *Context) error {
	tree := ctx.currentTree()
	if tree == nil || tree.Tree == nil {
		return nil
	}
	for _, st := range tree.Tree.Entries() {
		if st.Type != Dir {
			continue
		}
		if cerr := checkAbort(ctx); cerr != nil {
			return cerr
		}

		var cerr *Classified
		switch st.Instruction {
		case New:
			cerr = newDir(ctx, st)
		case Sync, Conflict:
			cerr = syncDir(ctx, st)
		case Remove:
			cerr = removeDir(ctx, st)
		case Rename:
			if ctx.Direction == RemoteToLocal {
				c, errEntry := renameEntry(ctx, st)
				cerr = c
				if cerr != nil {
					recordError(ctx, errEntry, cerr, nil)
					if cerr.Class == Fatal {
						return cerr
					}
					continue
				}
			}
			continue
		default:
			continue
		}
		if cerr != nil {
			recordError(ctx, st, cerr, nil)
			if cerr.Class == Fatal {
				return cerr
			}
		}
	}
	return nil
}

// cleanupPass processes the deferred-rmdir queue in reverse path-sorted
// order (spec.md §3 Invariants, §5): unlink each entry's ignored-cleanup
// children, then retry rmdir.
func cleanupPass(ctx *Context) error {
	dst := ctx.currentTree()
	if dst == nil || len(dst.deferredRmdir) == 0 {
		return nil
	}
	deferred := make([]*FileStat, len(dst.deferredRmdir))
	copy(deferred, dst.deferredRmdir)
	sort.Slice(deferred, func(i, j int) bool { return deferred[i].Path > deferred[j].Path })

	for _, st := range deferred {
		if cerr := checkAbort(ctx); cerr != nil {
			return cerr
		}
		if cerr := cleanupIgnored(ctx, dst, st.Path); cerr != nil {
			recordError(ctx, st, cerr, nil)
			if cerr.Class == Fatal {
				return cerr
			}
			continue
		}
		uri := joinURI(dst.URI, ctx.renameAdjust(st.Path))
		if err := dst.Driver.Rmdir(uri); err != nil {
			cerr := soft(errorf("cleanupPass", "rmdir %q: %v", uri, err))
			if isENOMEM(err) {
				cerr = fatal(errorf("cleanupPass", "rmdir %q: %v", uri, err))
			}
			recordError(ctx, st, cerr, nil)
			if cerr.Class == Fatal {
				return cerr
			}
			continue
		}
		st.Instruction = Deleted
	}
	return nil
}
