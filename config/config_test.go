package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config"), []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "local-root /srv/data\nremote-uri s3://bucket/prefix\n")
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.LocalRoot != "/srv/data" {
		t.Fatalf("got local root %q", c.LocalRoot)
	}
	if c.BlacklistThreshold != 3 {
		t.Fatalf("got blacklist threshold %d, want default 3", c.BlacklistThreshold)
	}
	if c.DefaultFileMode != 0644 || c.DefaultDirMode != 0755 {
		t.Fatalf("got default modes %#o/%#o", c.DefaultFileMode, c.DefaultDirMode)
	}
	if c.ConflictTimeFormat != "20060102-150405" {
		t.Fatalf("got conflict time format %q", c.ConflictTimeFormat)
	}
}

func TestLoadRejectsLooseFileMode(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "local-root /srv/data\n")
	if err := os.Chmod(filepath.Join(dir, "config"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected an error for a group/world readable config file")
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "bogus-key yes\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected an error for an unknown key")
	}
}

func TestLoadAppliesDaemonDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "local-root /srv/data\n")
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.ControlDir != filepath.Join(dir, "control") {
		t.Fatalf("got control dir %q", c.ControlDir)
	}
	if c.ListenNetwork != "tcp" || c.ListenAddress != "127.0.0.1:7934" {
		t.Fatalf("got listen %s/%s", c.ListenNetwork, c.ListenAddress)
	}
	if c.PollIntervalMS != 1000 {
		t.Fatalf("got poll interval %d", c.PollIntervalMS)
	}
}

func TestLoadOverridesDaemonSettings(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "control-dir /var/lib/csync/control\nlisten-network unix\nlisten-address /tmp/csyncd.sock\npoll-interval-ms 250\n")
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.ControlDir != "/var/lib/csync/control" {
		t.Fatalf("got control dir %q", c.ControlDir)
	}
	if c.ListenNetwork != "unix" || c.ListenAddress != "/tmp/csyncd.sock" {
		t.Fatalf("got listen %s/%s", c.ListenNetwork, c.ListenAddress)
	}
	if c.PollIntervalMS != 250 {
		t.Fatalf("got poll interval %d", c.PollIntervalMS)
	}
}

func TestLoadOverridesCapabilities(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "atomar-copy-support true\nput-support true\nblacklist-threshold 5\n")
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !c.AtomarCopySupport || !c.PutSupport {
		t.Fatalf("capabilities not parsed: %+v", c)
	}
	if c.BlacklistThreshold != 5 {
		t.Fatalf("got blacklist threshold %d", c.BlacklistThreshold)
	}
}
