package progress

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
)

func TestJournalPutGetRoundtrip(t *testing.T) {
	defer leaktest.Check(t)()

	path := filepath.Join(t.TempDir(), "progress.log")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = j.Close() }()

	mt := time.Now().Truncate(time.Second)
	info := &Info{Phash: 42, ModTime: mt, MD5: "abc", Chunk: 3, TransferID: 7, Tmpfile: "/tmp/x.~123", ErrorString: ""}
	if err := j.Put(info); err != nil {
		t.Fatal(err)
	}

	got, err := j.Get(42, mt, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected a record")
	}
	if diff := cmp.Diff(info, got); diff != "" {
		t.Fatalf("roundtripped record differs (-want +got):\n%s", diff)
	}
}

func TestJournalGetMissingReturnsNilNil(t *testing.T) {
	defer leaktest.Check(t)()
	path := filepath.Join(t.TempDir(), "progress.log")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = j.Close() }()

	got, err := j.Get(1, time.Now(), "x")
	if err != nil || got != nil {
		t.Fatalf("got %+v, %v", got, err)
	}
}

func TestJournalSurvivesReopen(t *testing.T) {
	defer leaktest.Check(t)()
	path := filepath.Join(t.TempDir(), "progress.log")
	mt := time.Now().Truncate(time.Second)

	j, err := OpenJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Put(&Info{Phash: 1, ModTime: mt, MD5: "m", Chunk: 9}); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	j2, err := OpenJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = j2.Close() }()
	got, err := j2.Get(1, mt, "m")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Chunk != 9 {
		t.Fatalf("got %+v", got)
	}
}

func TestJournalDelete(t *testing.T) {
	defer leaktest.Check(t)()
	path := filepath.Join(t.TempDir(), "progress.log")
	mt := time.Now().Truncate(time.Second)
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = j.Close() }()
	if err := j.Put(&Info{Phash: 5, ModTime: mt, MD5: "z"}); err != nil {
		t.Fatal(err)
	}
	if err := j.Delete(5, mt, "z"); err != nil {
		t.Fatal(err)
	}
	got, err := j.Get(5, mt, "z")
	if err != nil || got != nil {
		t.Fatalf("expected record gone, got %+v, %v", got, err)
	}
}

func TestJournalPersistAsync(t *testing.T) {
	defer leaktest.Check(t)()
	path := filepath.Join(t.TempDir(), "progress.log")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	mt := time.Now().Truncate(time.Second)
	j.PersistAsync([]*Info{{Phash: 1, ModTime: mt, MD5: "a"}, {Phash: 2, ModTime: mt, MD5: "b"}})
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	j2, err := OpenJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = j2.Close() }()
	if got, _ := j2.Get(1, mt, "a"); got == nil {
		t.Fatal("expected record 1 to have been persisted")
	}
	if got, _ := j2.Get(2, mt, "b"); got == nil {
		t.Fatal("expected record 2 to have been persisted")
	}
}
