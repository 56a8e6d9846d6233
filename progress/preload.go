package progress

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentLoads bounds how many Get calls Preload issues against the
// Store concurrently, same bound and shape as tree.Tree.grow's semaphore
// (golang.org/x/sync/errgroup.Group plus a buffered channel used as a
// semaphore).
const maxConcurrentLoads = 32

// Lookup identifies one entry whose progress record should be fetched
// ahead of a propagate_files pass.
type Lookup struct {
	Phash   uint64
	ModTime time.Time
	MD5     string
}

// Preload concurrently loads the ProgressInfo record (if any) for each of
// the given lookups, bounded to maxConcurrentLoads in flight at a time.
// The actual propagation passes stay strictly single-threaded (spec.md
// §5). Nothing in this module calls Preload: the propagator's pushFile
// does its own Store.Get per entry during pre-flight (§4.2 step 1).
func Preload(store Store, lookups []Lookup) (map[string]*Info, error) {
	results := make(map[string]*Info, len(lookups))
	keys := make([]string, len(lookups))
	values := make([]*Info, len(lookups))

	semc := make(chan struct{}, maxConcurrentLoads)
	g, _ := errgroup.WithContext(context.Background())
	for idx, l := range lookups {
		idx, l := idx, l
		g.Go(func() error {
			semc <- struct{}{}
			defer func() { <-semc }()
			info, err := store.Get(l.Phash, l.ModTime, l.MD5)
			if err != nil {
				return err
			}
			keys[idx] = key(l.Phash, l.ModTime, l.MD5)
			values[idx] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, k := range keys {
		if values[i] != nil {
			results[k] = values[i]
		}
	}
	return results, nil
}
