package vio

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// MemoryDriver is an in-memory VIO driver used by propagator tests to
// exercise staging, resume and fault paths deterministically, without
// touching a real filesystem or S3. Grounded on storage.InMemory (map +
// mutex) but expanded to the full VIO surface plus fault injection.
type MemoryDriver struct {
	mu    sync.Mutex
	caps  Capabilities
	files map[string]*memObject

	// FailWriteAfter, when N > 0, lets the first N Write calls (counted
	// across all handles) succeed and makes every later one fail with
	// FailErr (default: a plain "injected write failure" error, not EIO, so
	// the staged tmp file is kept), simulating a transfer that dies partway
	// through -- used to test resumable staging (spec.md §4.2 "Transfer
	// failure").
	FailWriteAfter int
	FailErr        error
	writeCount     int

	lastErr string
}

type memObject struct {
	content []byte
	mode    uint32
	modTime time.Time
	isDir   bool
	hidden  bool
}

// NewMemoryDriver returns a MemoryDriver with the given capabilities.
func NewMemoryDriver(caps Capabilities) *MemoryDriver {
	return &MemoryDriver{caps: caps, files: make(map[string]*memObject)}
}

func (d *MemoryDriver) Capabilities() Capabilities { return d.caps }

func (d *MemoryDriver) key(uri string) string {
	return strings.TrimPrefix(uri, "/")
}

type memHandle struct {
	key    string
	read   *bytes.Reader
	write  *bytes.Buffer
	append bool
	driver *MemoryDriver
}

func (d *MemoryDriver) Open(uri string, flags OpenFlag, mode uint32) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := d.key(uri)
	if flags&OWrOnly != 0 {
		obj, exists := d.files[k]
		if flags&OExcl != 0 && exists {
			return nil, errorf("Open", "file exists")
		}
		if flags&OAppend != 0 && exists {
			buf := bytes.NewBuffer(append([]byte(nil), obj.content...))
			return &memHandle{key: k, write: buf, append: true, driver: d}, nil
		}
		return &memHandle{key: k, write: new(bytes.Buffer), driver: d}, nil
	}
	obj, ok := d.files[k]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%q", uri)
	}
	return &memHandle{key: k, read: bytes.NewReader(obj.content), driver: d}, nil
}

func (d *MemoryDriver) Close(h Handle) error {
	handle := h.(*memHandle)
	if handle.write == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[handle.key] = &memObject{content: handle.write.Bytes(), modTime: time.Now(), mode: 0644}
	return nil
}

func (d *MemoryDriver) Read(h Handle, buf []byte) (int, error) {
	return h.(*memHandle).read.Read(buf)
}

func (d *MemoryDriver) Write(h Handle, buf []byte) (int, error) {
	d.mu.Lock()
	d.writeCount++
	if d.FailWriteAfter > 0 && d.writeCount > d.FailWriteAfter {
		err := d.FailErr
		if err == nil {
			err = errors.New("injected write failure")
		}
		d.lastErr = err.Error()
		d.mu.Unlock()
		return 0, err
	}
	d.mu.Unlock()
	handle := h.(*memHandle)
	n, err := handle.write.Write(buf)
	if err == nil {
		// Commit bytes as they land, matching the append-mode behavior of
		// a real file: a crash mid-transfer leaves a tmp object on disk
		// whose size reflects everything written so far (spec.md §4.2
		// "Transfer failure" relies on being able to Stat that tmp file).
		d.mu.Lock()
		d.files[handle.key] = &memObject{content: append([]byte(nil), handle.write.Bytes()...), modTime: time.Now(), mode: 0644}
		d.mu.Unlock()
	}
	return n, err
}

func (d *MemoryDriver) Stat(uri string) (FileInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.files[d.key(uri)]
	if !ok {
		return FileInfo{}, errors.Wrapf(ErrNotFound, "%q", uri)
	}
	return FileInfo{Size: int64(len(obj.content)), ModTime: obj.modTime, Mode: obj.mode, IsDir: obj.isDir}, nil
}

func (d *MemoryDriver) Rename(oldURI, newURI string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ok := d.key(oldURI)
	nk := d.key(newURI)
	obj, exists := d.files[ok]
	if !exists {
		return errors.Wrapf(ErrNotFound, "%q", oldURI)
	}
	d.files[nk] = obj
	delete(d.files, ok)
	return nil
}

func (d *MemoryDriver) Unlink(uri string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, d.key(uri))
	return nil
}

func (d *MemoryDriver) Rmdir(uri string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	prefix := d.key(uri) + "/"
	for k := range d.files {
		if strings.HasPrefix(k, prefix) {
			return errors.Wrapf(syscall.ENOTEMPTY, "rmdir %q", uri)
		}
	}
	delete(d.files, d.key(uri))
	return nil
}

func (d *MemoryDriver) Mkdirs(uri string, mode uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := d.key(uri)
	if _, ok := d.files[k]; !ok {
		d.files[k] = &memObject{isDir: true, mode: mode, modTime: time.Now()}
	}
	return nil
}

func (d *MemoryDriver) Chmod(uri string, mode uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if obj, ok := d.files[d.key(uri)]; ok {
		obj.mode = mode
	}
	return nil
}

func (d *MemoryDriver) Chown(string, int, int) error { return nil }

func (d *MemoryDriver) Utimes(uri string, modTime time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if obj, ok := d.files[d.key(uri)]; ok {
		obj.modTime = modTime
	}
	return nil
}

func (d *MemoryDriver) Put(sfp Handle, dfpURI string, _ XferParams) error {
	h := sfp.(*memHandle)
	b := make([]byte, h.read.Len())
	_, _ = h.read.Read(b)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[d.key(dfpURI)] = &memObject{content: b, modTime: time.Now(), mode: 0644}
	return nil
}

func (d *MemoryDriver) Get(dfp Handle, sfpURI string, _ XferParams) error {
	d.mu.Lock()
	obj, ok := d.files[d.key(sfpURI)]
	d.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrNotFound, "%q", sfpURI)
	}
	h := dfp.(*memHandle)
	_, err := h.write.Write(obj.content)
	return err
}

func (d *MemoryDriver) Sendfile(sfp, dfp Handle, cursor *ChunkCursor) error {
	sh := sfp.(*memHandle)
	dh := dfp.(*memHandle)
	buf := make([]byte, 4096)
	for {
		n, err := d.Read(sh, buf)
		if n > 0 {
			if _, werr := d.Write(dh, buf[:n]); werr != nil {
				return werr
			}
			if cursor != nil {
				cursor.StartID++
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (d *MemoryDriver) FileID(uri string) (string, error) {
	fi, err := d.Stat(uri)
	if err != nil {
		return "", err
	}
	return fi.ModTime.UTC().Format(time.RFC3339Nano), nil
}

func (d *MemoryDriver) SetHidden(uri string, hidden bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if obj, ok := d.files[d.key(uri)]; ok {
		obj.hidden = hidden
	}
	return nil
}

func (d *MemoryDriver) SetProperty(string, interface{}) {}

func (d *MemoryDriver) ErrorString() string { return d.lastErr }

// Exists reports whether uri currently has an entry, for test assertions.
func (d *MemoryDriver) Exists(uri string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.files[d.key(uri)]
	return ok
}

// Content returns the current bytes stored at uri, for test assertions.
func (d *MemoryDriver) Content(uri string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.files[d.key(uri)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.content...), true
}
