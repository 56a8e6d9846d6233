package main

import (
	"flag"
	"io/ioutil"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/csync/config"
	"github.com/nicolagi/csync/internal/netutil"
	"github.com/nicolagi/csync/internal/planfile"
	"github.com/nicolagi/csync/progress"
	"github.com/nicolagi/csync/propagator"
	"github.com/nicolagi/csync/vio"
)

// daemon holds the long-lived state a csyncd process needs across poll
// cycles: both replica drivers, the progress journal and a mutex
// serialising propagation runs against the shutdown path (SIGHUP, SIGINT
// and SIGTERM all end the process). Grounded on cmd/musclefs/musclefs.go's ops struct
// (a bag of long-lived collaborators plus a mutex guarding the tree).
type daemon struct {
	mu     sync.Mutex
	cfg    *config.C
	local  vio.Driver
	remote vio.Driver
	store  *progress.Journal
}

func newRemoteDriver(cfg *config.C) vio.Driver {
	if strings.HasPrefix(cfg.RemoteURI, "s3://") {
		return vio.NewS3Driver(cfg.S3Profile, cfg.S3Region, cfg.S3Bucket)
	}
	return vio.NewLocalDriver(cfg.RemoteURI)
}

// pollControlDir scans cfg.ControlDir for plan files (named *.plan.json,
// oldest first) not yet processed, applies each one in turn, and moves it
// to a sibling .done or .failed suffix so it is never reprocessed.
func (d *daemon) pollControlDir() {
	entries, err := ioutil.ReadDir(d.cfg.ControlDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithField("cause", err).Warning("Could not scan control directory")
		}
		return
	}
	var plans []os.FileInfo
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".plan.json") {
			plans = append(plans, e)
		}
	}
	sort.Slice(plans, func(i, j int) bool {
		if !plans[i].ModTime().Equal(plans[j].ModTime()) {
			return plans[i].ModTime().Before(plans[j].ModTime())
		}
		return plans[i].Name() < plans[j].Name()
	})
	for _, fi := range plans {
		d.apply(filepath.Join(d.cfg.ControlDir, fi.Name()))
	}
}

func (d *daemon) apply(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	logger := log.WithField("plan", path)

	p, err := planfile.Load(path)
	if err != nil {
		logger.WithField("cause", err).Error("Could not load plan")
		markFailed(path)
		return
	}
	direction, err := p.ParseDirection()
	if err != nil {
		logger.WithField("cause", err).Error("Could not parse plan direction")
		markFailed(path)
		return
	}

	localTree := propagator.NewTree(nil)
	remoteTree := propagator.NewTree(nil)
	destTree := propagator.NewTree(p.Entries)
	if direction == propagator.LocalToRemote {
		remoteTree = destTree
	} else {
		localTree = destTree
	}

	ctx := &propagator.Context{
		Local:          &propagator.Replica{Type: "local", URI: "/", Driver: d.local, Tree: localTree},
		Remote:         &propagator.Replica{Type: "remote", URI: "/", Driver: d.remote, Tree: remoteTree},
		Direction:      direction,
		Config:         d.cfg,
		Progress:       d.store,
		PendingRenames: map[string]string{},
		Callback: func(pr propagator.Progress) {
			logger.WithField("kind", pr.Kind).Debug("progress")
		},
	}

	propagator.InitProgress(ctx)
	propErr := propagator.PropagateFiles(ctx)
	summary := propagator.FinalizeProgress(ctx)
	d.store.PersistAsync(ctx.ProgressRecords)

	if propErr != nil {
		logger.WithField("cause", propErr).Error("Propagation aborted")
		markFailed(path)
		return
	}
	logger.WithFields(log.Fields{
		"filesTransferred": summary.FilesTransferred,
		"bytesTransferred": summary.BytesTransferred,
		"errors":           summary.Errors,
	}).Info("Plan applied")
	if err := os.Rename(path, path+".done"); err != nil {
		logger.WithField("cause", err).Warning("Could not mark plan done")
	}
}

func markFailed(path string) {
	if err := os.Rename(path, path+".failed"); err != nil {
		log.WithFields(log.Fields{"plan": path, "cause": err}).Warning("Could not mark plan failed")
	}
}

// readinessListener accepts connections on cfg.ListenNetwork/ListenAddress
// and replies "OK\n" to each, so a caller (or a test) can use
// internal/netutil.WaitForListener to learn the daemon has finished
// starting up, matching cmd/musclefs's netutil.Listen-backed 9P listener
// readiness contract, minus the protocol.
func readinessListener(cfg *config.C) (net.Listener, error) {
	return netutil.Listen(cfg.ListenNetwork, cfg.ListenAddress)
}

func serveReadiness(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte("OK\n"))
		_ = conn.Close()
	}
}

func main() {
	// Do NOT turn on agent.ShutdownCleanup: the installed signal handler
	// below does a best-effort drain of in-flight plans before exiting,
	// and agent.ShutdownCleanup's own os.Exit would race it.
	if err := agent.Listen(agent.Options{}); err != nil {
		log.Warnf("Could not start gops agent: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	base := flag.String("base", config.DefaultBaseDirectoryPath, "`directory` for configuration, logs and the progress journal")
	logLevel := flag.String("log-level", "warning", "sets the log `level`")
	flag.Parse()

	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.JSONFormatter{})
	ll, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Could not parse log level %q: %v", *logLevel, err)
	}
	log.SetLevel(ll)

	cfg, err := config.Load(*base)
	if err != nil {
		log.Fatalf("Could not load config from %q: %v", *base, err)
	}
	if err := os.MkdirAll(cfg.ControlDir, 0700); err != nil {
		log.Fatalf("Could not create control directory %q: %v", cfg.ControlDir, err)
	}

	journal, err := progress.OpenJournal(cfg.ProgressJournalPath())
	if err != nil {
		log.Fatalf("Could not open progress journal: %v", err)
	}

	d := &daemon{
		cfg:    cfg,
		local:  vio.NewLocalDriver(cfg.LocalRoot),
		remote: newRemoteDriver(cfg),
		store:  journal,
	}

	ln, err := readinessListener(cfg)
	if err != nil {
		log.Fatalf("Could not start readiness listener on %s/%s: %v", cfg.ListenNetwork, cfg.ListenAddress, err)
	}
	go serveReadiness(ln)

	ticker := time.NewTicker(time.Duration(cfg.PollIntervalMS) * time.Millisecond)
	defer ticker.Stop()
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				d.pollControlDir()
			case <-stop:
				return
			}
		}
	}()

	log.WithField("control-dir", cfg.ControlDir).Info("Awaiting plans, or a signal to exit.")
	for sig := range sigc {
		log.Infof("Got signal %q, finishing in-flight plan before exiting.", sig)
		break
	}
	close(stop)
	_ = ln.Close()
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := journal.Close(); err != nil {
		log.Errorf("Could not close progress journal cleanly: %v", err)
	}
	agent.Close()
}
