package propagator

import (
	"bytes"
	"io"
	"path"
	"strings"
	"time"

	"github.com/nicolagi/csync/progress"
	"github.com/nicolagi/csync/vio"
)

// conflictEntry implements the conflict operator (spec.md §4.5): back up
// the existing destination to a timestamped name, push the source file,
// and (on the REMOTE/download direction) remove the backup again if the
// two sides turned out to be byte-identical.
func conflictEntry(ctx *Context, st *FileStat, now time.Time) (*Classified, *progress.Info) {
	dst := ctx.dest()
	dstURI := joinURI(dst.URI, ctx.renameAdjust(st.Path))
	backupURI := conflictBackupURI(dstURI, now, ctx.Config.ConflictTimeFormat)

	if err := dst.Driver.Rename(dstURI, backupURI); err != nil {
		return soft(errorf("conflictEntry", "backup %q to %q: %v", dstURI, backupURI, err)), nil
	}

	cerr, pi := pushFile(ctx, st)
	if cerr != nil {
		return cerr, pi
	}

	if ctx.Direction == RemoteToLocal {
		identical, err := sameContent(dst.Driver, dstURI, backupURI)
		if err == nil && identical {
			_ = dst.Driver.Unlink(backupURI)
		}
	}
	return nil, nil
}

// conflictBackupURI builds "{dir}/{filename}_conflict-{YYYYMMDD-HHMMSS}{ext}"
// (spec.md §6, bit-exact suffix format) in local time.
func conflictBackupURI(uri string, now time.Time, timeFormat string) string {
	dir, base := path.Split(uri)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return dir + stem + "_conflict-" + now.Format(timeFormat) + ext
}

// sameContent reads both URIs in full through d and compares bytes. Used
// only to decide whether a conflict backup should be discarded again, so
// whole-file reads are acceptable even though the transfer engine itself
// never buffers a whole file when it can avoid it.
func sameContent(d vio.Driver, a, b string) (bool, error) {
	ab, err := readAll(d, a)
	if err != nil {
		return false, err
	}
	bb, err := readAll(d, b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

func readAll(d vio.Driver, uri string) ([]byte, error) {
	h, err := d.Open(uri, vio.ORdOnly, 0)
	if err != nil {
		return nil, err
	}
	defer func() { _ = d.Close(h) }()
	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	for {
		n, err := d.Read(h, chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
