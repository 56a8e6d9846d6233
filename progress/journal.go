package progress

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// archiveThresholdBytes triggers gzip-archival and compaction of the
// journal file, same threshold and technique as storage/paired.go's
// propagationLog (newPropagationLog).
const archiveThresholdBytes = 1024 * 1024

const defaultAsyncQueueSize = 4096

// Journal is the default Store: an append-only log of put/del records,
// replayed into an in-memory index on open, compacted and gzip-archived
// once it grows past archiveThresholdBytes. Grounded on
// storage/paired.go's propagationLog (readPropagationLog,
// archivePropagationLog, writePropagationLog, todo/done) and Paired's
// background-writer queue (EnsureBackgroundPuts).
type Journal struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	records map[string]*Info

	once  sync.Once
	queue chan *Info
	done  chan struct{}
}

// OpenJournal opens (creating if necessary) the journal file at path,
// replays it to rebuild the in-memory index, and compacts+archives it if
// it has grown past the threshold.
func OpenJournal(path string) (*Journal, error) {
	records, err := replay(path)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(path); err == nil && fi.Size() > archiveThresholdBytes {
		if err := archive(path); err != nil {
			return nil, err
		}
		if err := rewrite(path, records); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open %q for append: %w", path, err)
	}
	j := &Journal{path: path, f: f, records: records, queue: make(chan *Info, defaultAsyncQueueSize), done: make(chan struct{})}
	j.startBackgroundWriter()
	return j, nil
}

func replay(path string) (map[string]*Info, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open read-only %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	records := make(map[string]*Info)
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		i := strings.IndexByte(line, '\t')
		if i == -1 {
			return nil, fmt.Errorf("replay %q: malformed line %q", path, line)
		}
		verb, rest := line[:i], line[i+1:]
		switch verb {
		case "put":
			j := strings.IndexByte(rest, '\t')
			if j == -1 {
				return nil, fmt.Errorf("replay %q: malformed put line %q", path, line)
			}
			key := rest[:j]
			var info Info
			if err := json.Unmarshal([]byte(rest[j+1:]), &info); err != nil {
				return nil, fmt.Errorf("replay %q: %w", path, err)
			}
			records[key] = &info
		case "del":
			delete(records, rest)
		default:
			return nil, fmt.Errorf("replay %q: unknown verb %q", path, verb)
		}
	}
	return records, s.Err()
}

func archive(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archiving %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	archivePath := fmt.Sprintf("%s.%d.gz", path, time.Now().Unix())
	g, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("archiving %q: %w", path, err)
	}
	zw := gzip.NewWriter(g)
	if _, err := io.Copy(zw, f); err != nil {
		return fmt.Errorf("archiving %q: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return g.Close()
}

func rewrite(path string, records map[string]*Info) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "progress.*.log")
	if err != nil {
		return fmt.Errorf("could not create temp file to compact %q: %w", path, err)
	}
	for key, info := range records {
		if err := writeRecord(tmp, "put", key, info); err != nil {
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeRecord(w io.Writer, verb, key string, info *Info) error {
	if verb == "del" {
		_, err := fmt.Fprintf(w, "del\t%s\n", key)
		return err
	}
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "put\t%s\t%s\n", key, b)
	return err
}

func (j *Journal) Get(phash uint64, modTime time.Time, md5 string) (*Info, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	info, ok := j.records[key(phash, modTime, md5)]
	if !ok {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}

func (j *Journal) Put(info *Info) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := *info
	j.records[info.Key()] = &cp
	return writeRecord(j.f, "put", info.Key(), info)
}

func (j *Journal) Delete(phash uint64, modTime time.Time, md5 string) error {
	k := key(phash, modTime, md5)
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.records, k)
	return writeRecord(j.f, "del", k, nil)
}

// PersistAsync enqueues records for background persistence. Mirrors
// storage.Paired.Put's async queue: the caller (cmd/csync or cmd/csyncd,
// after a propagation run) does not block on the actual disk write.
func (j *Journal) PersistAsync(records []*Info) {
	for _, r := range records {
		j.queue <- r
	}
}

func (j *Journal) startBackgroundWriter() {
	j.once.Do(func() {
		go func() {
			defer close(j.done)
			for r := range j.queue {
				for {
					err := j.Put(r)
					if err == nil {
						break
					}
					log.WithFields(log.Fields{
						"op":    "persist",
						"key":   r.Key(),
						"cause": err.Error(),
					}).Warning("Could not persist progress record, will retry")
					time.Sleep(100 * time.Millisecond)
				}
			}
		}()
	})
}

// Close stops accepting further async writes and waits for the background
// writer to drain its queue and exit, so tests can assert with leaktest
// that the goroutine does not outlive the Journal. It is not safe to call
// PersistAsync again after Close.
func (j *Journal) Close() error {
	close(j.queue)
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
