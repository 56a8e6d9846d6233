package propagator

import (
	"os"

	"github.com/nicolagi/csync/jhash"
)

const maxRenameParentRetries = 2

// renameEntry implements the rename operator (spec.md §4.4). It is only
// reachable when ctx.Direction == RemoteToLocal: rename is reflected
// server-side, so it's the remote walk that produces RENAME entries. On
// LOCAL direction there is no operator to call this from.
//
// Both URIs and the post-rename md5 lookup are always built against the
// remote replica (ctx.source(), which is ctx.Remote on this direction) --
// the original builds both with _csync_build_remote_uri and fetches the
// id with _get_md5, which always prepends remote.uri regardless of which
// replica is walking.
//
// On failure, st.Instruction is reset to UPDATED so the next run retries,
// and the returned *FileStat names the entry the caller should record the
// error against -- the destination entry, per spec.md §4.4, not st itself.
func renameEntry(ctx *Context, st *FileStat) (*Classified, *FileStat) {
	remote := ctx.source()
	srcURI := joinURI(remote.URI, ctx.renameAdjust(st.Path))
	dstURI := joinURI(remote.URI, ctx.renameAdjust(st.DestPath))

	destHash := jhash.Sum64String(st.DestPath)
	destEntry := treeOf(ctx.Local).Lookup(destHash)

	if srcURI != dstURI {
		if cerr := doRename(ctx, remote, srcURI, dstURI); cerr != nil {
			st.Instruction = Updated
			if destEntry != nil {
				return cerr, destEntry
			}
			return cerr, st
		}
		if os.Geteuid() == 0 {
			_ = remote.Driver.Chown(dstURI, st.UID, st.GID)
		}
		_ = remote.Driver.Utimes(dstURI, st.ModTime)
	}

	// Mirror md5/metadata onto the surviving destination entry.
	if destEntry != nil {
		if destEntry.Type == File {
			if id, err := remote.Driver.FileID(dstURI); err == nil {
				destEntry.MD5 = id
			}
		} else {
			destEntry.MD5 = st.MD5
		}
	}

	st.Instruction = Deleted
	return nil, nil
}

func doRename(ctx *Context, remote *Replica, srcURI, dstURI string) *Classified {
	lastParent := ""
	for attempt := 0; attempt <= maxRenameParentRetries; attempt++ {
		err := remote.Driver.Rename(srcURI, dstURI)
		if err == nil {
			return nil
		}
		if !os.IsNotExist(err) {
			return soft(errorf("renameEntry", "rename %q to %q: %v", srcURI, dstURI, err))
		}
		parent := dirOf(dstURI)
		if parent == lastParent {
			return soft(errorf("renameEntry", "parent %q did not change across retries", parent))
		}
		lastParent = parent
		if mkErr := remote.Driver.Mkdirs(parent, ctx.Config.DefaultDirMode); mkErr != nil {
			return soft(errorf("renameEntry", "mkdirs %q: %v", parent, mkErr))
		}
	}
	return soft(errorf("renameEntry", "rename %q to %q: exhausted retries", srcURI, dstURI))
}
