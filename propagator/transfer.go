package propagator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/csync/progress"
	"github.com/nicolagi/csync/vio"
)

const maxTmpNameAttempts = 10

// pushFile is the file transfer engine of spec.md §4.2, the hardest and
// largest component: push one file from the direction's source replica to
// its destination replica, crash-safe, resumable, capability-driven.
//
// On success it returns (nil, nil). On failure it returns the Classified
// error and the *progress.Info that should be recorded against st: the
// resumed record if one existed, a fresh one when resume state was saved,
// or nil otherwise -- the caller (filePass, directly or via conflictEntry)
// threads that into recordError, which creates a record when given nil.
func pushFile(ctx *Context, st *FileStat) (*Classified, *progress.Info) {
	src := ctx.source()
	dst := ctx.dest()

	pi, err := ctx.Progress.Get(st.Phash, st.ModTime, st.MD5)
	if err != nil {
		return soft(errorf("pushFile", "load progress for %q: %v", st.Path, err)), nil
	}
	if pi != nil && pi.Blacklisted(ctx.Config.BlacklistThreshold) {
		return soft(errorf("pushFile", "%q: blacklisted after %d errors", st.Path, pi.Error)), pi
	}

	var cursor *vio.ChunkCursor
	if pi != nil {
		cursor = &vio.ChunkCursor{StartID: pi.Chunk, TransferID: pi.TransferID}
	}

	srcURI := joinURI(src.URI, ctx.renameAdjust(st.Path))
	dstURI := joinURI(dst.URI, ctx.renameAdjust(st.Path))

	ctx.Counters.CurrentFileNo++
	startKind, finishKind := StartUpload, FinishedUpload
	if ctx.Direction == RemoteToLocal {
		startKind, finishKind = StartDownload, FinishedDownload
	}
	ctx.emit(Progress{Kind: startKind, Path: st.Path, FileSize: st.Size, CurrentFileNo: ctx.Counters.CurrentFileNo})

	if ctx.Direction == LocalToRemote {
		fi, err := src.Driver.Stat(srcURI)
		if err != nil {
			return soft(errorf("pushFile", "pre-copy stat %q: %v", srcURI, err)), pi
		}
		if fi.Size != st.Size || !fi.ModTime.Equal(st.ModTime) {
			return soft(errorf("pushFile", "%q changed since planning, skipping this run", srcURI)), pi
		}
	}

	stage := shouldStage(ctx.Direction, dst.Driver.Capabilities())
	transport := chooseTransport(ctx.Direction, src.Driver.Capabilities(), dst.Driver.Capabilities())

	openFlags := vio.ORdOnly | vio.ONofollow
	if os.Geteuid() == 0 || os.Geteuid() == st.UID {
		openFlags |= vio.ONoatime
	}
	var sfp vio.Handle
	if transport != transportGet {
		sfp, err = src.Driver.Open(srcURI, openFlags, 0)
		if err != nil {
			if isENOMEM(err) {
				return fatal(errorf("pushFile", "open source %q: %v", srcURI, err)), pi
			}
			return soft(errorf("pushFile", "open source %q: %v", srcURI, err)), pi
		}
		defer closeQuietly(src.Driver, sfp, srcURI)
	}

	target := dstURI
	var dfp vio.Handle
	var tmpURI string
	resuming := false

	if stage {
		if pi != nil && pi.Tmpfile != "" {
			dfp, err = dst.Driver.Open(pi.Tmpfile, vio.OWrOnly|vio.OAppend, uint32(st.Mode))
			if err == nil {
				tmpURI = pi.Tmpfile
				resuming = true
			}
		}
		if dfp == nil {
			tmpURI, dfp, err = createTmpSibling(dst.Driver, dstURI, st.Mode)
			if err != nil {
				if isENOMEM(err) {
					return fatal(err), pi
				}
				return soft(err), pi
			}
		}
		target = tmpURI
	} else if transport != transportPut {
		dfp, err = dst.Driver.Open(dstURI, vio.OCreate|vio.OExcl|vio.OWrOnly, uint32(st.Mode))
		if err != nil {
			if isENOMEM(err) {
				return fatal(errorf("pushFile", "open dest %q: %v", dstURI, err)), pi
			}
			return soft(errorf("pushFile", "open dest %q: %v", dstURI, err)), pi
		}
	}

	if resuming && sfp != nil {
		fi, statErr := dst.Driver.Stat(tmpURI)
		if statErr != nil {
			return soft(errorf("pushFile", "stat resumed tmp %q: %v", tmpURI, statErr)), pi
		}
		if err := skipBytes(src.Driver, sfp, fi.Size); err != nil {
			return soft(errorf("pushFile", "seeking source to resume offset %d: %v", fi.Size, err)), pi
		}
	}

	params := vio.XferParams{Size: st.Size, ModTime: st.ModTime, Mode: st.Mode}

	if stage && dst.Type == "remote" {
		_ = dst.Driver.SetHidden(tmpURI, true)
	}

	xferErr := runTransport(ctx, transport, src.Driver, dst.Driver, sfp, dfp, srcURI, target, params, cursor, stage)

	if stage && dst.Type == "remote" {
		_ = dst.Driver.SetHidden(tmpURI, false)
	}

	if xferErr != nil {
		return handleTransferFailure(ctx, dst.Driver, st, tmpURI, stage, cursor, xferErr, pi)
	}
	if resuming {
		log.WithField("path", st.Path).Debug("Resumed transfer completed")
	}

	if dfp != nil {
		if err := dst.Driver.Close(dfp); err != nil {
			if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
				return fatal(errorf("pushFile", "close dest %q: %v", dstURI, err)), pi
			}
			log.WithFields(log.Fields{"side": "dest", "uri": dstURI, "cause": err.Error()}).Warning("Close failed, continuing")
		}
	}

	if dst.Driver.Capabilities().DoPostCopyStat {
		fi, err := dst.Driver.Stat(target)
		if err != nil {
			return soft(errorf("pushFile", "post-copy stat: %v", err)), pi
		}
		if fi.Size != st.Size {
			return soft(errorf("pushFile", "post-copy size mismatch: got %d want %d", fi.Size, st.Size)), pi
		}
		if st.MD5 == "" && fi.MD5 != "" {
			st.MD5 = fi.MD5
		}
	}

	if stage {
		if err := dst.Driver.Rename(tmpURI, dstURI); err != nil {
			if isENOMEM(err) {
				return fatal(errorf("pushFile", "rename %q to %q: %v", tmpURI, dstURI, err)), pi
			}
			return soft(errorf("pushFile", "rename %q to %q: %v", tmpURI, dstURI, err)), pi
		}
	}

	if st.Mode&07777 != ctx.Config.DefaultFileMode {
		if err := dst.Driver.Chmod(dstURI, st.Mode); err != nil {
			return soft(errorf("pushFile", "chmod %q: %v", dstURI, err)), pi
		}
	}
	if os.Geteuid() == 0 {
		_ = dst.Driver.Chown(dstURI, st.UID, st.GID)
	}
	_ = dst.Driver.Utimes(dstURI, st.ModTime)

	if id, err := dst.Driver.FileID(dstURI); err == nil {
		st.MD5 = id
	}

	st.Instruction = Updated
	ctx.Counters.ByteCurrent += st.Size
	ctx.emit(Progress{Kind: finishKind, Path: st.Path, FileSize: st.Size, CurrentOverallBytes: ctx.Counters.ByteCurrent})

	if pi != nil {
		_ = ctx.Progress.Delete(pi.Phash, pi.ModTime, pi.MD5)
	}
	return nil, nil
}

// shouldStage implements the staging decision table of spec.md §4.2.
func shouldStage(dir Direction, caps vio.Capabilities) bool {
	if dir == RemoteToLocal {
		return true
	}
	return !caps.AtomarCopySupport
}

type transportKind int

const (
	transportPut transportKind = iota
	transportGet
	transportSendfile
	transportBuffered
)

// chooseTransport picks one of the four transports in priority order
// (spec.md §4.2 "Transfer").
func chooseTransport(dir Direction, srcCaps, dstCaps vio.Capabilities) transportKind {
	switch {
	case dstCaps.PutSupport && dir == LocalToRemote:
		return transportPut
	case srcCaps.GetSupport && dir == RemoteToLocal:
		return transportGet
	case dstCaps.UseSendFileSupport || srcCaps.UseSendFileSupport:
		return transportSendfile
	default:
		return transportBuffered
	}
}

// runTransport dispatches to the chosen transport. Put writes directly to
// targetURI without a pre-opened destination handle (the driver creates
// the object itself); Get reads directly from srcURI into the already-open
// local destination handle dfp.
func runTransport(ctx *Context, t transportKind, src, dst vio.Driver, sfp, dfp vio.Handle, srcURI, targetURI string, params vio.XferParams, cursor *vio.ChunkCursor, stage bool) error {
	switch t {
	case transportPut:
		return dst.Put(sfp, targetURI, params)
	case transportGet:
		return src.Get(dfp, srcURI, params)
	case transportSendfile:
		if !stage {
			dst.SetProperty("hbf_info", cursor)
		}
		return dst.Sendfile(sfp, dfp, cursor)
	default:
		return bufferedCopy(ctx, src, dst, sfp, dfp)
	}
}

// skipBytes discards n bytes from the front of an already-open source
// handle, advancing it past the portion already staged at the destination
// on a resumed transfer (§4.2 "Transfer failure" / "resume").
func skipBytes(d vio.Driver, h vio.Handle, n int64) error {
	buf := make([]byte, 32*1024)
	for n > 0 {
		want := int64(len(buf))
		if n < want {
			want = n
		}
		read, err := d.Read(h, buf[:want])
		n -= int64(read)
		if err != nil {
			if err == io.EOF && n <= 0 {
				return nil
			}
			return err
		}
	}
	return nil
}

func bufferedCopy(ctx *Context, src, dst vio.Driver, sfp, dfp vio.Handle) error {
	bufSize := ctx.Config.MaxXferBufSize
	if bufSize == 0 {
		bufSize = 128 * 1024
	}
	buf := make([]byte, bufSize)
	for {
		n, rerr := src.Read(sfp, buf)
		if n > 0 {
			wn, werr := dst.Write(dfp, buf[:n])
			if werr != nil {
				return werr
			}
			if wn != n {
				return errorf("bufferedCopy", "short write: read %d, wrote %d", n, wn)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// createTmpSibling generates a fresh tmp name sibling of dstURI and opens it
// create+exclusive+write, retrying on EEXIST up to maxTmpNameAttempts
// times, mkdir-ing the parent (and detecting a non-advancing parent, an
// infinite-loop guard) on ENOENT.
func createTmpSibling(d vio.Driver, dstURI string, mode uint32) (string, vio.Handle, error) {
	lastParent := ""
	for attempt := 0; attempt < maxTmpNameAttempts; attempt++ {
		suffix, err := vio.RandomSuffix()
		if err != nil {
			return "", nil, errorf("createTmpSibling", "%v", err)
		}
		tmpURI := dstURI + ".~" + suffix + ".tmp"
		h, err := d.Open(tmpURI, vio.OCreate|vio.OExcl|vio.OWrOnly, mode)
		if err == nil {
			return tmpURI, h, nil
		}
		if os.IsExist(err) {
			continue
		}
		if os.IsNotExist(err) || errors.Is(err, vio.ErrNotFound) {
			parent := dirOf(dstURI)
			if parent == lastParent {
				return "", nil, errorf("createTmpSibling", "parent %q did not change across retries", parent)
			}
			lastParent = parent
			if mkErr := d.Mkdirs(parent, 0755); mkErr != nil {
				if isENOMEM(mkErr) {
					return "", nil, mkErr
				}
				return "", nil, errorf("createTmpSibling", "mkdirs %q: %v", parent, mkErr)
			}
			continue
		}
		return "", nil, errorf("createTmpSibling", "open %q: %v", tmpURI, err)
	}
	return "", nil, errorf("createTmpSibling", "%q: exhausted %d attempts", dstURI, maxTmpNameAttempts)
}

// handleTransferFailure preserves resume state per spec.md §4.2 "Transfer
// failure" before translating the error and returning soft/fatal.
func handleTransferFailure(ctx *Context, dst vio.Driver, st *FileStat, tmpURI string, staged bool, cursor *vio.ChunkCursor, xferErr error, pi *progress.Info) (*Classified, *progress.Info) {
	isEIO := errors.Is(xferErr, syscall.EIO)

	switch {
	case staged && tmpURI != "" && !isEIO:
		if fi, statErr := dst.Stat(tmpURI); statErr == nil && fi.Size > 0 {
			if pi == nil {
				pi = &progress.Info{Phash: st.Phash, ModTime: st.ModTime, MD5: st.MD5}
			}
			pi.Tmpfile = tmpURI
			pi.Chunk = 0
			pi.Error <<= 1
		} else {
			_ = dst.Unlink(tmpURI)
		}
	case !staged && cursor != nil:
		if pi == nil {
			pi = &progress.Info{Phash: st.Phash, ModTime: st.ModTime, MD5: st.MD5}
		}
		pi.TransferID = cursor.TransferID
		pi.Chunk = cursor.StartID
		dst.SetProperty("hbf_info", nil)
	case staged && tmpURI != "":
		_ = dst.Unlink(tmpURI)
	}

	class := Soft
	if isUserAbort(xferErr) {
		class = Fatal
	}
	msg := dst.ErrorString()
	if msg == "" {
		msg = xferErr.Error()
	}
	cerr := &Classified{Err: fmt.Errorf("transfer %q: %s", st.Path, msg), Class: class}
	return cerr, pi
}

// ErrUserAbort is returned (or wrapped) by a driver when a transfer is
// interrupted by the host-level abort flag (GLOSSARY "ERRNO_USER_ABORT").
var ErrUserAbort = errors.New("transfer aborted by user")

func isUserAbort(err error) bool {
	return errors.Is(err, ErrUserAbort)
}

func isENOMEM(err error) bool {
	return errors.Is(err, syscall.ENOMEM)
}

func closeQuietly(d vio.Driver, h vio.Handle, uri string) {
	if err := d.Close(h); err != nil {
		log.WithFields(log.Fields{"side": "source", "uri": uri, "cause": err.Error()}).Warning("Close failed, continuing")
	}
}

func joinURI(root, p string) string {
	if root == "" {
		return p
	}
	if strings.HasSuffix(root, "/") {
		return root + p
	}
	return root + "/" + p
}

func dirOf(uri string) string {
	i := strings.LastIndexByte(uri, '/')
	if i < 0 {
		return uri
	}
	return uri[:i]
}
