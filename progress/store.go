package progress

import "time"

// Store is the statedb lookup contract of spec.md §6: load a progress
// record by its identity triple, and hand back the list the propagator
// assembled during a run for persistence. free_progressinfo has no
// equivalent here -- Go's GC reclaims *Info once nothing references it.
type Store interface {
	// Get returns the persisted record for (phash, modtime, md5), or nil
	// (and a nil error) if none exists. A record is only a valid resume
	// point if all three fields match exactly (spec.md §3 Identity).
	Get(phash uint64, modTime time.Time, md5 string) (*Info, error)

	// Put persists (or replaces) the record for info.Key().
	Put(info *Info) error

	// Delete removes any record at the given identity, if present.
	Delete(phash uint64, modTime time.Time, md5 string) error
}

func key(phash uint64, modTime time.Time, md5 string) string {
	return Info{Phash: phash, ModTime: modTime, MD5: md5}.Key()
}
