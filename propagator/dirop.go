package propagator

import (
	"errors"
	"os"
	"syscall"
)

// newDir implements new_dir (spec.md §4.3): mkdirs the destination, then
// reconcile attributes exactly like syncDir.
func newDir(ctx *Context, st *FileStat) *Classified {
	dst := ctx.dest()
	uri := joinURI(dst.URI, ctx.renameAdjust(st.Path))

	if err := dst.Driver.Mkdirs(uri, ctx.Config.DefaultDirMode); err != nil && !errors.Is(err, os.ErrExist) {
		if isENOMEM(err) {
			return fatal(errorf("newDir", "mkdirs %q: %v", uri, err))
		}
		return soft(errorf("newDir", "mkdirs %q: %v", uri, err))
	}
	return reconcileDirAttrs(ctx, st, uri)
}

// syncDir implements sync_dir (spec.md §4.3): attribute reconciliation
// only, no mkdir. A CONFLICT instruction on a directory is treated as SYNC.
func syncDir(ctx *Context, st *FileStat) *Classified {
	dst := ctx.dest()
	uri := joinURI(dst.URI, ctx.renameAdjust(st.Path))
	return reconcileDirAttrs(ctx, st, uri)
}

func reconcileDirAttrs(ctx *Context, st *FileStat, uri string) *Classified {
	dst := ctx.dest()
	if st.Mode&07777 != ctx.Config.DefaultDirMode {
		if err := dst.Driver.Chmod(uri, st.Mode); err != nil {
			return soft(errorf("reconcileDirAttrs", "chmod %q: %v", uri, err))
		}
	}
	if os.Geteuid() == 0 {
		_ = dst.Driver.Chown(uri, st.UID, st.GID)
	}
	if err := dst.Driver.Utimes(uri, st.ModTime); err != nil {
		return soft(errorf("reconcileDirAttrs", "utimes %q: %v", uri, err))
	}
	st.Instruction = Updated
	return nil
}

// removeDir implements remove_dir (spec.md §4.3): rmdir; on ENOTEMPTY,
// defer to the cleanup pass and return success.
func removeDir(ctx *Context, st *FileStat) *Classified {
	dst := ctx.dest()
	uri := joinURI(dst.URI, ctx.renameAdjust(st.Path))

	err := dst.Driver.Rmdir(uri)
	if err == nil {
		st.Instruction = Deleted
		return nil
	}
	if isENOTEMPTY(err) {
		dst.deferRmdir(st)
		return nil
	}
	if isENOMEM(err) {
		return fatal(errorf("removeDir", "rmdir %q: %v", uri, err))
	}
	return soft(errorf("removeDir", "rmdir %q: %v", uri, err))
}

func isENOTEMPTY(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY)
}
