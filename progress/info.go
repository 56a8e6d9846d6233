// Package progress implements the ProgressInfo durable record of spec.md
// §3 and a default journal-backed persistence layer satisfying the
// statedb lookup contract of spec.md §6 ("get_progressinfo"/
// "free_progressinfo"). The statedb's schema and storage engine are
// explicitly out of scope (spec.md §1); this package only commits to the
// record shape and the (phash, modtime, md5) identity key.
package progress

import (
	"fmt"
	"time"
)

// Info is the durable ProgressInfo record of spec.md §3. Identity is the
// triple (Phash, ModTime, MD5): any change to modtime or md5 invalidates a
// saved progress record and resume does not apply.
type Info struct {
	Phash      uint64
	ModTime    time.Time
	MD5        string
	Chunk      int64
	TransferID int64
	// Tmpfile is the path of a resumable staged tmp file, or "" if none.
	Tmpfile     string
	Error       int
	ErrorString string
}

// Key returns the composite identity key used to index records in the
// default journal store. Two Info values with equal Phash/ModTime/MD5
// always produce the same Key, and any difference in any of the three
// fields always produces a different one.
func (i Info) Key() string {
	return fmt.Sprintf("%x|%d|%s", i.Phash, i.ModTime.UnixNano(), i.MD5)
}

// Blacklisted reports whether this record's error counter exceeds
// threshold, per spec.md §3/§7: "A ProgressInfo whose error counter
// exceeds 3 blacklists the entry."
func (i Info) Blacklisted(threshold int) bool {
	return i.Error > threshold
}
