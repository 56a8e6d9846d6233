package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// DefaultBaseDirectoryPath is where csync stores its configuration and
	// state database. It defaults to $CSYNC_BASE if set, otherwise
	// $HOME/lib/csync.
	DefaultBaseDirectoryPath string

	defaultMaxXferBufSize uint32 = 128 * 1024
)

func init() {
	if base := os.Getenv("CSYNC_BASE"); base != "" {
		DefaultBaseDirectoryPath = base
	} else {
		DefaultBaseDirectoryPath = os.ExpandEnv("$HOME/lib/csync")
	}
}

// C is the propagator's configuration: the two replica endpoints, the
// module capability set of DATA MODEL §3, and the knobs flagged as
// implementer-configurable by the Open Questions in spec.md §9.
type C struct {
	// LocalRoot is the filesystem root of the LOCAL replica.
	LocalRoot string

	// RemoteURI identifies the REMOTE replica. For the S3 driver this is
	// "s3://bucket/prefix".
	RemoteURI string

	S3Profile string
	S3Region  string
	S3Bucket  string

	// Capabilities, per DATA MODEL §3. Fixed per replica driver in
	// principle, but exposed here so a driver's defaults can be overridden
	// for testing.
	AtomarCopySupport  bool
	UseSendFileSupport bool
	PutSupport         bool
	GetSupport         bool
	DoPostCopyStat     bool

	// BlacklistThreshold is the error count beyond which an entry's
	// progress record is skipped for the remainder of the run (§3, §7).
	// Open Question in spec.md §9: made configurable, default 3.
	BlacklistThreshold int

	// MaxXferBufSize bounds the buffered read/write fallback transport
	// (§4.2 step "Transfer", option 4).
	MaxXferBufSize uint32

	// DefaultFileMode / DefaultDirMode are the modes that new_dir/push_file
	// skip chmod'ing when already matching (§4.3, §9 Open Question: "skip
	// when mode equals the default" re-derived here instead of hard-coded).
	DefaultFileMode uint32
	DefaultDirMode  uint32

	// ConflictTimeFormat is the local-time layout used to build the
	// conflict-backup suffix (§6): "{base}_conflict-{YYYYMMDD-HHMMSS}{ext}".
	ConflictTimeFormat string

	// ControlDir is the directory cmd/csyncd polls for dropped-in
	// reconciliation plan files (SPEC_FULL.md §10 "CLI").
	ControlDir string

	// ListenNetwork / ListenAddress are where cmd/csyncd listens for
	// readiness polling, e.g. "tcp" / "127.0.0.1:7934".
	ListenNetwork string
	ListenAddress string

	// PollIntervalMS is how often cmd/csyncd rescans ControlDir for new
	// plan files.
	PollIntervalMS int

	// Directory holding the csync config file and the progress journal.
	base string
}

// Load loads the configuration from the file called "config" in the
// provided base directory.
func Load(base string) (*C, error) {
	filename := filepath.Join(base, "config")
	fi, err := os.Stat(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "config.Load %q", filename)
	}
	if fi.Mode()&0077 != 0 {
		return nil, errors.Errorf("config.Load %q: mode is %#o, want at most %#o",
			filename, fi.Mode()&0777, fi.Mode()&0700)
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "config.Load")
	}
	defer func() {
		_ = f.Close()
	}()
	c, err := load(f)
	if err != nil {
		return nil, err
	}
	c.base = base
	applyDefaults(c)
	return c, nil
}

func applyDefaults(c *C) {
	if c.BlacklistThreshold == 0 {
		c.BlacklistThreshold = 3
	}
	if c.MaxXferBufSize == 0 {
		c.MaxXferBufSize = defaultMaxXferBufSize
	}
	if c.DefaultFileMode == 0 {
		c.DefaultFileMode = 0644
	}
	if c.DefaultDirMode == 0 {
		c.DefaultDirMode = 0755
	}
	if c.ConflictTimeFormat == "" {
		c.ConflictTimeFormat = "20060102-150405"
	}
	if c.ControlDir == "" {
		c.ControlDir = filepath.Join(c.base, "control")
	}
	if c.ListenNetwork == "" {
		c.ListenNetwork = "tcp"
	}
	if c.ListenAddress == "" {
		c.ListenAddress = "127.0.0.1:7934"
	}
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = 1000
	}
}

func load(f io.Reader) (*C, error) {
	c := C{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		i := strings.IndexAny(line, " \t")
		if i == -1 {
			return nil, errors.Errorf("load: no separator in %q", line)
		}
		key, val := line[:i], strings.TrimSpace(line[i:])
		switch key {
		case "local-root":
			c.LocalRoot = val
		case "remote-uri":
			c.RemoteURI = val
		case "s3-bucket":
			c.S3Bucket = val
		case "s3-profile":
			c.S3Profile = val
		case "s3-region":
			c.S3Region = val
		case "atomar-copy-support":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, errors.Wrap(err, "load")
			}
			c.AtomarCopySupport = b
		case "use-sendfile-support":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, errors.Wrap(err, "load")
			}
			c.UseSendFileSupport = b
		case "put-support":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, errors.Wrap(err, "load")
			}
			c.PutSupport = b
		case "get-support":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, errors.Wrap(err, "load")
			}
			c.GetSupport = b
		case "do-post-copy-stat":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, errors.Wrap(err, "load")
			}
			c.DoPostCopyStat = b
		case "blacklist-threshold":
			i, err := strconv.Atoi(val)
			if err != nil {
				return nil, errors.Wrap(err, "load")
			}
			c.BlacklistThreshold = i
		case "max-xfer-buf-size":
			i, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return nil, errors.Wrap(err, "load")
			}
			c.MaxXferBufSize = uint32(i)
		case "default-file-mode":
			i, err := strconv.ParseUint(val, 8, 32)
			if err != nil {
				return nil, errors.Wrap(err, "load")
			}
			c.DefaultFileMode = uint32(i)
		case "default-dir-mode":
			i, err := strconv.ParseUint(val, 8, 32)
			if err != nil {
				return nil, errors.Wrap(err, "load")
			}
			c.DefaultDirMode = uint32(i)
		case "conflict-time-format":
			c.ConflictTimeFormat = val
		case "control-dir":
			c.ControlDir = val
		case "listen-network":
			c.ListenNetwork = val
		case "listen-address":
			c.ListenAddress = val
		case "poll-interval-ms":
			i, err := strconv.Atoi(val)
			if err != nil {
				return nil, errors.Wrap(err, "load")
			}
			c.PollIntervalMS = i
		default:
			return nil, errors.Errorf("load: unknown key %q", key)
		}
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrap(err, "load")
	}
	return &c, nil
}

// ProgressJournalPath is where the default progress journal (see package
// progress) persists ProgressInfo records across runs.
func (c *C) ProgressJournalPath() string {
	return filepath.Join(c.base, "progress.log")
}

// StagingDirectoryPath returns the "staging" directory under the base
// directory. The transfer engine does not stage into it: its tmp files are
// siblings of the final destination.
func (c *C) StagingDirectoryPath() string {
	return filepath.Join(c.base, "staging")
}

// Initialize generates an initial configuration at the given directory.
func Initialize(baseDir string) error {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return errors.Wrapf(err, "%q: could not mkdir", baseDir)
	}
	p := filepath.Join(baseDir, "config")
	if _, err := os.Stat(p); err == nil {
		return errors.Errorf("%q: already exists", p)
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "%q: could not determine if it exists", p)
	}
	const tmpl = "" +
		"atomar-copy-support false\n" +
		"use-sendfile-support true\n" +
		"put-support true\n" +
		"get-support false\n" +
		"do-post-copy-stat true\n" +
		"blacklist-threshold 3\n" +
		"max-xfer-buf-size 131072\n"
	if err := os.WriteFile(p, []byte(tmpl), 0600); err != nil {
		return errors.Wrapf(err, "config.Initialize %q", p)
	}
	return nil
}
