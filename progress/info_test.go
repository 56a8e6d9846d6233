package progress

import (
	"testing"
	"time"
)

func TestKeyChangesWithAnyIdentityField(t *testing.T) {
	base := Info{Phash: 1, ModTime: time.Unix(100, 0), MD5: "x"}
	if base.Key() != base.Key() {
		t.Fatal("Key should be deterministic")
	}
	variants := []Info{
		{Phash: 2, ModTime: base.ModTime, MD5: base.MD5},
		{Phash: base.Phash, ModTime: time.Unix(200, 0), MD5: base.MD5},
		{Phash: base.Phash, ModTime: base.ModTime, MD5: "y"},
	}
	for _, v := range variants {
		if v.Key() == base.Key() {
			t.Fatalf("expected different key for %+v vs %+v", v, base)
		}
	}
}

func TestBlacklisted(t *testing.T) {
	i := Info{Error: 4}
	if !i.Blacklisted(3) {
		t.Fatal("error count 4 should be blacklisted at threshold 3")
	}
	i.Error = 3
	if i.Blacklisted(3) {
		t.Fatal("error count equal to threshold should not be blacklisted (strictly greater than)")
	}
}
