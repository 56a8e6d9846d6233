// Package vio defines the virtual I/O driver interface each replica
// (LOCAL filesystem, REMOTE object store) implements, plus the two
// concrete drivers this repository ships: a LOCAL filesystem driver and
// an S3-backed REMOTE driver. The propagator only ever talks to a
// replica through this interface (spec.md §6).
package vio

import (
	"crypto/rand"
	"fmt"

	"github.com/pkg/errors"
)

// Key identifies an object in the narrow Get/Put/Delete Store core.
type Key string

// Value is the byte content addressed by a Key.
type Value []byte

// Store is a narrow object-store core. Neither shipped driver implements
// or uses it: the S3 driver calls the S3 client directly, and RandomSuffix
// does not depend on it.
type Store interface {
	Get(Key) (Value, error)
	Put(Key, Value) error
	Delete(Key) error
}

var (
	// ErrNotFound is returned by Get/Stat/Delete when the key or path does
	// not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotSupported is returned for capability-gated operations the
	// driver does not implement (e.g., Sendfile on a driver that did not
	// declare UseSendFileSupport).
	ErrNotSupported = errors.New("not supported")
)

// RandomSuffix generates a short hex suffix for unique tmp file names,
// sibling of the final destination (spec.md §6 "Temp file naming").
// Grounded on storage.RandomKey's random-bytes-then-hex approach.
func RandomSuffix() (string, error) {
	b := make([]byte, 4)
	n, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	if n != len(b) {
		return "", errors.Errorf("wanted %d random bytes, got %d", len(b), n)
	}
	return fmt.Sprintf("%x", b), nil
}
