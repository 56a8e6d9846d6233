package vio

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// S3Driver is the REMOTE replica VIO driver backed by an S3-compatible
// object store. Grounded on storage/s3.go (ensureClient,
// aws.Config/session.NewSession, awserr.RequestFailure -> ErrNotFound,
// s3.GetObjectInput/PutObjectInput/DeleteObjectInput) and extended with
// HeadObject (Stat), CopyObject+DeleteObject (Rename), and object
// metadata for chmod/chown/utimes, since S3 has none of those natively.
type S3Driver struct {
	profile string
	region  string
	bucket  string
	client  *s3.S3

	lastErr string
	hbf     *ChunkCursor
}

var _ Driver = (*S3Driver)(nil)

// NewS3Driver returns a driver writing objects into bucket using the named
// AWS profile and region for credentials, exactly as storage.newS3Store
// does for muscle's permanent store.
func NewS3Driver(profile, region, bucket string) *S3Driver {
	return &S3Driver{profile: profile, region: region, bucket: bucket}
}

func (s *S3Driver) Capabilities() Capabilities {
	return Capabilities{
		AtomarCopySupport:  true,
		UseSendFileSupport: false,
		PutSupport:         true,
		GetSupport:         false,
		DoPostCopyStat:     true,
	}
}

func (s *S3Driver) ensureClient() error {
	if s.client != nil {
		return nil
	}
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(s.region),
		Credentials: credentials.NewSharedCredentials("", s.profile),
	})
	if err != nil {
		return err
	}
	s.client = s3.New(sess)
	return nil
}

func (s *S3Driver) key(uri string) string {
	return strings.TrimPrefix(uri, "/")
}

// s3Handle is the Handle type for in-flight reads/writes: reads stream the
// GetObject response body, writes accumulate into a buffer flushed to
// PutObject on Close.
type s3Handle struct {
	key   string
	read  io.ReadCloser
	write *bytes.Buffer
}

func (s *S3Driver) Open(uri string, flags OpenFlag, _ uint32) (Handle, error) {
	if err := s.ensureClient(); err != nil {
		return nil, err
	}
	k := s.key(uri)
	if flags&OWrOnly != 0 {
		return &s3Handle{key: k, write: new(bytes.Buffer)}, nil
	}
	out, err := s.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return nil, s.translate(err)
	}
	return &s3Handle{key: k, read: out.Body}, nil
}

func (s *S3Driver) Close(h Handle) error {
	handle := h.(*s3Handle)
	if handle.read != nil {
		if err := handle.read.Close(); err != nil {
			log.WithFields(log.Fields{"op": "close", "key": handle.key}).Warning("Could not close response body")
		}
		return nil
	}
	_, err := s.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(handle.key),
		Body:   bytes.NewReader(handle.write.Bytes()),
	})
	if err != nil {
		s.lastErr = err.Error()
	}
	return err
}

func (s *S3Driver) Read(h Handle, buf []byte) (int, error) {
	handle := h.(*s3Handle)
	return handle.read.Read(buf)
}

func (s *S3Driver) Write(h Handle, buf []byte) (int, error) {
	return h.(*s3Handle).write.Write(buf)
}

func (s *S3Driver) Stat(uri string) (FileInfo, error) {
	if err := s.ensureClient(); err != nil {
		return FileInfo{}, err
	}
	out, err := s.client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(uri)),
	})
	if err != nil {
		return FileInfo{}, s.translate(err)
	}
	info := FileInfo{}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}
	if out.ETag != nil {
		info.MD5 = strings.Trim(*out.ETag, `"`)
	}
	if mode, ok := out.Metadata["Mode"]; ok && mode != nil {
		if v, err := strconv.ParseUint(*mode, 8, 32); err == nil {
			info.Mode = uint32(v)
		}
	}
	if mt, ok := out.Metadata["Mtime"]; ok && mt != nil {
		if v, err := time.Parse(time.RFC3339Nano, *mt); err == nil {
			info.ModTime = v
		}
	}
	return info, nil
}

func (s *S3Driver) Rename(oldURI, newURI string) error {
	if err := s.ensureClient(); err != nil {
		return err
	}
	src := fmt.Sprintf("%s/%s", s.bucket, s.key(oldURI))
	_, err := s.client.CopyObject(&s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(src),
		Key:        aws.String(s.key(newURI)),
	})
	if err != nil {
		return s.translate(err)
	}
	return s.Unlink(oldURI)
}

func (s *S3Driver) Unlink(uri string) error {
	if err := s.ensureClient(); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(uri)),
	})
	return err
}

// Rmdir is a no-op: S3 has no directories, only key prefixes, so there is
// nothing to remove once the last object under a prefix has gone. Never
// returns ENOTEMPTY, so the directory operator's deferred-rmdir path is
// never exercised against this driver.
func (s *S3Driver) Rmdir(string) error { return nil }

// Mkdirs is a no-op for the same reason.
func (s *S3Driver) Mkdirs(string, uint32) error { return nil }

func (s *S3Driver) metadataUpdate(uri string, mutate func(map[string]*string)) error {
	if err := s.ensureClient(); err != nil {
		return err
	}
	k := s.key(uri)
	head, err := s.client.HeadObject(&s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k)})
	if err != nil {
		return s.translate(err)
	}
	meta := head.Metadata
	if meta == nil {
		meta = map[string]*string{}
	}
	mutate(meta)
	src := fmt.Sprintf("%s/%s", s.bucket, k)
	_, err = s.client.CopyObject(&s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		CopySource:        aws.String(src),
		Key:               aws.String(k),
		Metadata:          meta,
		MetadataDirective: aws.String(s3.MetadataDirectiveReplace),
	})
	return err
}

func (s *S3Driver) Chmod(uri string, mode uint32) error {
	return s.metadataUpdate(uri, func(meta map[string]*string) {
		meta["Mode"] = aws.String(fmt.Sprintf("%o", mode))
	})
}

// Chown is a no-op: S3 objects have no POSIX ownership concept and the
// propagator only calls this when running as root locally; recording a
// uid/gid on the remote object would not be meaningful without a matching
// principal to restore it to.
func (s *S3Driver) Chown(string, int, int) error { return nil }

func (s *S3Driver) Utimes(uri string, modTime time.Time) error {
	return s.metadataUpdate(uri, func(meta map[string]*string) {
		meta["Mtime"] = aws.String(modTime.UTC().Format(time.RFC3339Nano))
	})
}

func (s *S3Driver) Put(sfp Handle, dfpURI string, _ XferParams) error {
	if err := s.ensureClient(); err != nil {
		return err
	}
	local, ok := sfp.(io.Reader)
	if !ok {
		return errorf("Put", "source handle is not readable")
	}
	body, err := newReaderAtSeeker(local)
	if err != nil {
		return errorf("Put", "reading source: %v", err)
	}
	_, err = s.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(dfpURI)),
		Body:   body,
	})
	if err != nil {
		s.lastErr = err.Error()
	}
	return err
}

func (s *S3Driver) Get(Handle, string, XferParams) error {
	return errorf("Get", "%v", ErrNotSupported)
}

func (s *S3Driver) Sendfile(Handle, Handle, *ChunkCursor) error {
	return errorf("Sendfile", "%v", ErrNotSupported)
}

func (s *S3Driver) FileID(uri string) (string, error) {
	fi, err := s.Stat(uri)
	if err != nil {
		return "", err
	}
	return fi.MD5, nil
}

// SetHidden is a no-op: S3 key names have no hidden-file convention, and
// a tmp object is never listed by the propagator anyway since directories
// are not enumerated from the REMOTE driver's own namespace for display.
func (s *S3Driver) SetHidden(string, bool) error { return nil }

func (s *S3Driver) SetProperty(name string, value interface{}) {
	if name == "hbf_info" {
		if cur, ok := value.(*ChunkCursor); ok {
			s.hbf = cur
		}
	}
}

func (s *S3Driver) ErrorString() string { return s.lastErr }

func (s *S3Driver) translate(err error) error {
	s.lastErr = err.Error()
	if rfErr, ok := err.(awserr.RequestFailure); ok {
		if rfErr.StatusCode() == http.StatusNotFound {
			return errors.Wrapf(ErrNotFound, "%v", err)
		}
	}
	return err
}

// newReaderAtSeeker adapts the source handle of a Put into the
// io.ReadSeeker aws-sdk-go's PutObject takes as its body. Since *os.File
// already satisfies io.ReadSeeker, it is returned as is; any other reader
// is read in full into memory.
func newReaderAtSeeker(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}
