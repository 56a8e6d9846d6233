package propagator

import (
	"sync"
	"time"

	"github.com/nicolagi/csync/config"
	"github.com/nicolagi/csync/progress"
)

// memStore is a minimal map-backed progress.Store for tests that don't
// need the on-disk journal's crash-recovery behaviour (that's covered by
// package progress's own tests).
type memStore struct {
	mu      sync.Mutex
	records map[string]*progress.Info
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*progress.Info)}
}

func (s *memStore) Get(phash uint64, modTime time.Time, md5 string) (*progress.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.records[progress.Info{Phash: phash, ModTime: modTime, MD5: md5}.Key()]
	if !ok {
		return nil, nil
	}
	cp := *i
	return &cp, nil
}

func (s *memStore) Put(info *progress.Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *info
	s.records[info.Key()] = &cp
	return nil
}

func (s *memStore) Delete(phash uint64, modTime time.Time, md5 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, progress.Info{Phash: phash, ModTime: modTime, MD5: md5}.Key())
	return nil
}

func testConfig() *config.C {
	return &config.C{
		DefaultFileMode:    0644,
		DefaultDirMode:     0755,
		BlacklistThreshold: 3,
		MaxXferBufSize:     128 * 1024,
		ConflictTimeFormat: "20060102-150405",
	}
}
