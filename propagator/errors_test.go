package propagator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoftAndFatalNilOnNilError(t *testing.T) {
	assert.Nil(t, soft(nil))
	assert.Nil(t, fatal(nil))
}

func TestSoftAndFatalClassification(t *testing.T) {
	base := errors.New("boom")

	s := soft(base)
	require := assert.New(t)
	require.Equal(Soft, s.Class)
	require.Same(base, s.Unwrap())

	f := fatal(base)
	require.Equal(Fatal, f.Class)
	require.Same(base, f.Unwrap())
}

func TestClassifiedErrorStringIncludesClass(t *testing.T) {
	c := soft(errors.New("disk full"))
	assert.Contains(t, c.Error(), "disk full")
	assert.Contains(t, c.Error(), "soft")
}

func TestClassifiedNilReceiverIsSafe(t *testing.T) {
	var c *Classified
	assert.Equal(t, "", c.Error())
	assert.Nil(t, c.Unwrap())
}

func TestErrorfPrefixesPackageAndMethod(t *testing.T) {
	err := errorf("pushFile", "open %q: %v", "/a", errors.New("nope"))
	assert.Contains(t, err.Error(), "propagator.pushFile")
	assert.Contains(t, err.Error(), "/a")
}
