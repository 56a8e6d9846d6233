package vio

import "time"

// OpenFlag mirrors the POSIX-style open(2) flags spec.md §6 requires VIO
// drivers to understand.
type OpenFlag uint32

const (
	ORdOnly OpenFlag = 1 << iota
	OWrOnly
	OCreate
	OExcl
	OAppend
	ONoctty
	ONofollow
	ONoatime
)

// Capabilities is the module-declared, fixed-per-driver boolean set of
// DATA MODEL §3.
type Capabilities struct {
	// AtomarCopySupport: the driver replaces files atomically itself; no
	// temp-sibling staging is required when writing to it.
	AtomarCopySupport bool
	// UseSendFileSupport: the driver exposes a Sendfile fast path.
	UseSendFileSupport bool
	// PutSupport: the driver exposes a whole-file Put(source, dest, stat).
	PutSupport bool
	// GetSupport: the driver exposes a whole-file Get(dest, source, stat).
	GetSupport bool
	// DoPostCopyStat: after a transfer, stat the destination and verify
	// size, possibly adopting the driver's md5.
	DoPostCopyStat bool
}

// FileInfo is the VioFileStat stat result of spec.md §6.
type FileInfo struct {
	Size    int64
	ModTime time.Time
	Inode   uint64
	MD5     string // opaque identity token; empty if the driver doesn't have one
	Mode    uint32
	IsDir   bool
}

// Handle is an opaque open file/object handle. Drivers return their own
// concrete type; the propagator never inspects it beyond passing it back.
type Handle interface{}

// XferParams carries the subset of FileStat a Put/Get/Sendfile transport
// needs to know about the file being transferred (size, times...), without
// requiring the vio package to import the propagator's FileStat type.
type XferParams struct {
	Size    int64
	ModTime time.Time
	Mode    uint32
}

// ChunkCursor is the hbf resume cursor of GLOSSARY "hbf": a chunked block
// transfer identity, installed as a module property around a direct
// (non-staged) Sendfile transfer to a REMOTE destination so the driver can
// read/update it (§4.2 "Transfer").
type ChunkCursor struct {
	StartID    int64
	TransferID int64
}

// Driver is the VIO driver interface consumed by the propagator (spec.md
// §6). Every call may block for arbitrary time (§5); none of them expose
// callback concurrency to the propagator.
type Driver interface {
	Capabilities() Capabilities

	Open(uri string, flags OpenFlag, mode uint32) (Handle, error)
	Close(h Handle) error
	Read(h Handle, buf []byte) (int, error)
	Write(h Handle, buf []byte) (int, error)
	Stat(uri string) (FileInfo, error)
	Rename(oldURI, newURI string) error
	Unlink(uri string) error
	Rmdir(uri string) error
	Mkdirs(uri string, mode uint32) error
	Chmod(uri string, mode uint32) error
	Chown(uri string, uid, gid int) error
	Utimes(uri string, modTime time.Time) error

	// Put/Get are present only when the corresponding capability is set;
	// called only then. Put copies from the local handle sfp to the
	// driver-addressed dfp URI; Get copies from the driver-addressed sfp
	// URI into the local handle dfp.
	Put(sfp Handle, dfpURI string, params XferParams) error
	Get(dfp Handle, sfpURI string, params XferParams) error

	// Sendfile copies directly between two open handles. cursor, when
	// non-nil, is the chunk resume cursor the driver may read and advance;
	// for a direct-to-remote, unstaged transfer the propagator also
	// installs it beforehand via SetProperty("hbf_info", ...).
	Sendfile(sfp, dfp Handle, cursor *ChunkCursor) error

	// FileID returns the driver's current opaque identity token (md5) for
	// uri -- used to fetch the final md5 after utimes, since some drivers
	// change the token on metadata writes (§4.2 step 5).
	FileID(uri string) (string, error)

	// SetHidden marks a tmp file hidden on hosts where that is
	// meaningful, used only while staging to tmp on a REMOTE destination
	// (§4.2 "on a remote destination... set the tmp file hidden").
	SetHidden(uri string, hidden bool) error

	// SetProperty installs a module-level property, used for the hbf
	// chunk cursor (see Sendfile) and is a no-op for drivers that do not
	// need it.
	SetProperty(name string, value interface{})

	// ErrorString returns the driver's own description of the last error,
	// preferred over the platform errno string when set (§4.7, §7).
	ErrorString() string
}
