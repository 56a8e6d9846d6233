package propagator

import (
	"sync/atomic"

	"github.com/nicolagi/csync/config"
	"github.com/nicolagi/csync/progress"
	"github.com/nicolagi/csync/vio"
)

// Direction is which replica is acting as source for the current pass
// (spec.md §3, "current ∈ {LOCAL_REPLICA, REMOTE_REPLICA}").
type Direction int

const (
	LocalToRemote Direction = iota
	RemoteToLocal
)

func (d Direction) String() string {
	if d == RemoteToLocal {
		return "remote-to-local"
	}
	return "local-to-remote"
}

// Replica is one side of the sync: its tag, its VIO driver, its root URI,
// its reconciled Tree, and the bookkeeping the cleanup pass needs (spec.md
// §3, "Replica").
type Replica struct {
	// Type is an opaque tag. VIO calls dispatch on the concrete vio.Driver
	// rather than a mutable ctx.replica selector (spec.md §9 Design Notes);
	// the tag is only read by pushFile, which hides a staged tmp file when
	// the destination's Type is "remote".
	Type   string
	URI    string
	Driver vio.Driver
	Tree   *Tree

	// deferredRmdir holds directories that returned ENOTEMPTY on first
	// rmdir attempt, queued for the cleanup pass (spec.md §3 Invariants).
	deferredRmdir []*FileStat

	// IgnoredCleanup maps a directory path to child paths that must be
	// unlinked before that directory's deferred rmdir is retried.
	IgnoredCleanup map[string][]string
}

func (r *Replica) deferRmdir(st *FileStat) {
	r.deferredRmdir = append(r.deferredRmdir, st)
}

// ProgressKind is the callback Progress.Kind enumeration of spec.md §6.
type ProgressKind int

const (
	StartSyncSequence ProgressKind = iota
	FinishedSyncSequence
	StartUpload
	FinishedUpload
	StartDownload
	FinishedDownload
	StartDelete
	EndDelete
)

// Progress is the payload spec.md §6 describes for the produced callback
// interface.
type Progress struct {
	Kind                      ProgressKind
	Path                      string
	CurrBytes                 int64
	FileSize                  int64
	OverallTransmissionSize   int64
	CurrentOverallBytes       int64
	OverallFileCount          int64
	CurrentFileNo             int64
}

// ProgressFunc is the callback interface spec.md §6 calls "produced."
type ProgressFunc func(Progress)

// Counters accumulates init_progress's totals (spec.md §4.1) and the
// running overall-progress numbers the file transfer engine updates as it
// goes (spec.md §4.2 step "Post-transfer").
type Counters struct {
	FileCount     int64
	ByteSum       int64
	CurrentFileNo int64
	ByteCurrent   int64
}

// Summary is the end-of-run report FinalizeProgress hands back, matching
// the one-line files/bytes/errors report csync_sync prints (SPEC_FULL.md
// §12 "Statistics surfaced at end of sync").
type Summary struct {
	FilesTransferred int64
	BytesTransferred int64
	Errors           int64
}

// Context is the propagator's run-scoped state: both replicas, the current
// direction, configuration, the progress callback, counters, the abort
// flag, and the progress records accumulated for the statedb handoff
// (spec.md §3, "Context (CSYNC)").
type Context struct {
	Local  *Replica
	Remote *Replica

	Direction Direction

	Config   *config.C
	Progress progress.Store
	Callback ProgressFunc
	Counters Counters

	// PendingRenames maps a path to its destination path, consulted by the
	// rename-adjustment function so a file being renamed-then-modified is
	// read from its new location (spec.md §4.2 step 3).
	PendingRenames map[string]string

	// ProgressRecords is the single-writer list of records assembled
	// during the run and handed to the statedb at the end (spec.md §5).
	ProgressRecords []*progress.Info

	abort int32
}

// Abort sets the write-once abort flag; safe to call concurrently with
// the walk (spec.md §5, "write-once flag set by the host").
func (ctx *Context) Abort() {
	atomic.StoreInt32(&ctx.abort, 1)
}

// Aborted reports whether Abort has been called.
func (ctx *Context) Aborted() bool {
	return atomic.LoadInt32(&ctx.abort) != 0
}

// source returns the replica acting as source for the current direction.
func (ctx *Context) source() *Replica {
	if ctx.Direction == RemoteToLocal {
		return ctx.Remote
	}
	return ctx.Local
}

// dest returns the replica acting as destination for the current direction.
func (ctx *Context) dest() *Replica {
	if ctx.Direction == RemoteToLocal {
		return ctx.Local
	}
	return ctx.Remote
}

// currentTree is the tree being walked for propagate_files: spec.md §4.2
// frames the pass as "for the current direction's tree", which is always
// the destination replica's reconciled view (the source is read from, the
// destination tree carries the instructions).
func (ctx *Context) currentTree() *Replica {
	return ctx.dest()
}

func (ctx *Context) emit(p Progress) {
	if ctx.Callback != nil {
		ctx.Callback(p)
	}
}

// renameAdjust consults PendingRenames so a source path that has been
// renamed-then-modified is read from its new location (spec.md §4.2 step
// 3). Entries with no pending rename are returned unchanged.
func (ctx *Context) renameAdjust(p string) string {
	if dst, ok := ctx.PendingRenames[p]; ok {
		return dst
	}
	return p
}
