package vio

import (
	"os"
	"testing"
)

func TestLocalDriverWriteReadRoundtrip(t *testing.T) {
	root := t.TempDir()
	d := NewLocalDriver(root)

	h, err := d.Open("/a.txt", OWrOnly|OCreate|OExcl, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Write(h, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(h); err != nil {
		t.Fatal(err)
	}

	rh, err := d.Open("/a.txt", ORdOnly, 0)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 16)
	n, err := d.Read(rh, buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q", buf[:n])
	}
	_ = d.Close(rh)
}

func TestLocalDriverStatNotFound(t *testing.T) {
	d := NewLocalDriver(t.TempDir())
	if _, err := d.Stat("/nope"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestLocalDriverMkdirsThenRmdir(t *testing.T) {
	d := NewLocalDriver(t.TempDir())
	if err := d.Mkdirs("/a/b", 0755); err != nil {
		t.Fatal(err)
	}
	fi, err := d.Stat("/a/b")
	if err != nil {
		t.Fatal(err)
	}
	if !fi.IsDir {
		t.Fatal("expected a directory")
	}
	if err := d.Rmdir("/a/b"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(root(d, "/a/b")); !os.IsNotExist(err) {
		t.Fatalf("expected dir to be gone, err=%v", err)
	}
}

func root(d *LocalDriver, uri string) string { return d.pathFor(uri) }
