// Package propagator applies a previously computed reconciliation plan
// between a LOCAL filesystem tree and a REMOTE tree reachable through a
// vio.Driver. It walks the reconciled tree for the current direction,
// executes each entry's instruction, and isolates per-entry failures so one
// bad file marks itself (and its ancestor directories) without aborting the
// rest of the run.
package propagator

import "time"

// EntryType is the kind of filesystem object a FileStat describes.
type EntryType int

const (
	File EntryType = iota
	Dir
	Slink
)

func (t EntryType) String() string {
	switch t {
	case File:
		return "file"
	case Dir:
		return "dir"
	case Slink:
		return "slink"
	default:
		return "unknown"
	}
}

// Instruction is the reconciler's verdict on an entry, and also the value
// the propagator leaves behind once it has acted on it.
type Instruction int

const (
	None Instruction = iota
	New
	Sync
	Remove
	Rename
	Conflict
	Updated
	Deleted
	Ignore
	Error
)

func (i Instruction) String() string {
	switch i {
	case None:
		return "NONE"
	case New:
		return "NEW"
	case Sync:
		return "SYNC"
	case Remove:
		return "REMOVE"
	case Rename:
		return "RENAME"
	case Conflict:
		return "CONFLICT"
	case Updated:
		return "UPDATED"
	case Deleted:
		return "DELETED"
	case Ignore:
		return "IGNORE"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FileStat is one path in one replica's tree (spec DATA MODEL, "FileStat
// (entry)"). It is owned by the tree that holds it; the propagator mutates
// Instruction, ErrorString and MD5 only.
type FileStat struct {
	// Path is normalised, slash-separated, relative to the replica root.
	Path string
	// DestPath is set only for RENAME entries.
	DestPath string
	// Phash is jhash64 of Path, the tree key and progress key.
	Phash uint64

	Type        EntryType
	Instruction Instruction

	Size    int64
	ModTime time.Time
	Mode    uint32
	UID     int
	GID     int
	Inode   uint64

	// MD5 is an opaque content/identity token assigned by the remote, not
	// necessarily a cryptographic MD5.
	MD5 string

	// ErrorString is set once by the first error recorded against this
	// entry (record_error never overwrites it).
	ErrorString string
}

// PathLen mirrors the C struct's cached path_len; in Go this is simply
// len(Path), kept as a method so callers that want the field-shaped access
// spec.md describes have it without duplicating the string.
func (st *FileStat) PathLen() int {
	return len(st.Path)
}
