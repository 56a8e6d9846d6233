package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/csync/config"
	"github.com/nicolagi/csync/internal/planfile"
	"github.com/nicolagi/csync/progress"
	"github.com/nicolagi/csync/propagator"
	"github.com/nicolagi/csync/vio"
)

// To set this at build time, use go build -ldflags '-X main.version=something'.
var version = "unknown"

var globalContext struct {
	base     string
	logLevel string
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&globalContext.base, "base", config.DefaultBaseDirectoryPath, "`directory` for configuration, logs and the progress journal")
	var levels []string
	for _, l := range log.AllLevels {
		levels = append(levels, l.String())
	}
	fs.StringVar(&globalContext.logLevel, "log-level", "warning", "sets the log `level`, among "+strings.Join(levels, ", "))
	return fs
}

func exitUsage(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	_, _ = fmt.Fprintf(os.Stderr, `Usage: %s COMMAND [ARGS]

Commands:

	push PLAN.json: propagate LOCAL -> REMOTE per the reconciliation plan
	pull PLAN.json: propagate REMOTE -> LOCAL per the reconciliation plan
	resume: not supported; exits with an error (pass the original plan to push/pull)
	version: show version information
`, os.Args[0])
	os.Exit(2)
}

func main() {
	pushFlags := newFlagSet("push")
	pullFlags := newFlagSet("pull")
	resumeFlags := newFlagSet("resume")
	versionFlags := newFlagSet("version")

	if len(os.Args) < 2 {
		exitUsage("command name required")
	}

	var planPath string
	switch cmd := os.Args[1]; cmd {
	case "push":
		_ = pushFlags.Parse(os.Args[2:])
		if pushFlags.NArg() != 1 {
			exitUsage("push: exactly one plan file argument expected")
		}
		planPath = pushFlags.Arg(0)
	case "pull":
		_ = pullFlags.Parse(os.Args[2:])
		if pullFlags.NArg() != 1 {
			exitUsage("pull: exactly one plan file argument expected")
		}
		planPath = pullFlags.Arg(0)
	case "resume":
		_ = resumeFlags.Parse(os.Args[2:])
		if resumeFlags.NArg() != 0 {
			exitUsage("resume: no args expected")
		}
	case "version":
		_ = versionFlags.Parse(os.Args[2:])
		fmt.Println(version)
		return
	default:
		exitUsage(fmt.Sprintf("%q: command not recognized", cmd))
	}

	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.JSONFormatter{})
	ll, err := log.ParseLevel(globalContext.logLevel)
	if err != nil {
		log.Fatalf("Could not parse log level %q: %v", globalContext.logLevel, err)
	}
	log.SetLevel(ll)

	cfg, err := config.Load(globalContext.base)
	if err != nil {
		log.Fatalf("Could not load config from %q: %v", globalContext.base, err)
	}

	journal, err := progress.OpenJournal(cfg.ProgressJournalPath())
	if err != nil {
		log.Fatalf("Could not open progress journal: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			log.Errorf("Could not close progress journal cleanly: %v", err)
		}
	}()

	localDriver := vio.NewLocalDriver(cfg.LocalRoot)
	remoteDriver, err := newRemoteDriver(cfg)
	if err != nil {
		log.Fatalf("Could not set up remote replica: %v", err)
	}

	switch os.Args[1] {
	case "push":
		runPlan(cfg, journal, localDriver, remoteDriver, planPath, propagator.LocalToRemote)
	case "pull":
		runPlan(cfg, journal, localDriver, remoteDriver, planPath, propagator.RemoteToLocal)
	case "resume":
		log.Fatal("resume: re-running from the progress journal alone requires a prior plan's entries; pass the original plan to push/pull instead")
	}
}

// newRemoteDriver picks the REMOTE replica's VIO driver by cfg.RemoteURI's
// scheme: "s3://bucket/prefix" selects the S3 driver, anything else is
// treated as a local path (useful for exercising two plain directories
// without AWS credentials).
func newRemoteDriver(cfg *config.C) (vio.Driver, error) {
	if strings.HasPrefix(cfg.RemoteURI, "s3://") {
		return vio.NewS3Driver(cfg.S3Profile, cfg.S3Region, cfg.S3Bucket), nil
	}
	return vio.NewLocalDriver(cfg.RemoteURI), nil
}

func runPlan(cfg *config.C, journal *progress.Journal, local, remote vio.Driver, planPath string, direction propagator.Direction) {
	p, err := planfile.Load(planPath)
	if err != nil {
		log.Fatalf("Could not load plan %q: %v", planPath, err)
	}
	parsed, err := p.ParseDirection()
	if err != nil {
		log.Fatalf("Could not parse plan %q: %v", planPath, err)
	}
	if parsed != direction {
		log.Fatalf("Plan %q declares direction %q, does not match the %s sub-command", planPath, p.Direction, direction)
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
		Local:          &propagator.Replica{Type: "local", URI: "/", Driver: local, Tree: localTree},
		Remote:         &propagator.Replica{Type: "remote", URI: "/", Driver: remote, Tree: remoteTree},
		Direction:      direction,
		Config:         cfg,
		Progress:       journal,
		PendingRenames: map[string]string{},
		Callback: func(p propagator.Progress) {
			log.WithFields(log.Fields{
				"kind": p.Kind,
				"path": p.Path,
			}).Debug("progress")
		},
	}

	propagator.InitProgress(ctx)
	if err := propagator.PropagateFiles(ctx); err != nil {
		log.Fatalf("Propagation aborted: %v", err)
	}
	summary := propagator.FinalizeProgress(ctx)
	journal.PersistAsync(ctx.ProgressRecords)
	fmt.Printf("files transferred: %d, bytes transferred: %d, errors: %d\n",
		summary.FilesTransferred, summary.BytesTransferred, summary.Errors)
}
