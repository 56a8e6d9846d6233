package vio

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// DriverMock is a testify/mock-based Driver double, shipped outside
// _test.go so sibling packages' tests can import it, exactly as
// storage.StoreMock is in the teacher's storage/mocks.go.
type DriverMock struct {
	mock.Mock
	Caps Capabilities
}

var _ Driver = (*DriverMock)(nil)

func (d *DriverMock) Capabilities() Capabilities { return d.Caps }

func (d *DriverMock) Open(uri string, flags OpenFlag, mode uint32) (Handle, error) {
	a := d.Called(uri, flags, mode)
	return a.Get(0), a.Error(1)
}

func (d *DriverMock) Close(h Handle) error { return d.Called(h).Error(0) }

func (d *DriverMock) Read(h Handle, buf []byte) (int, error) {
	a := d.Called(h, buf)
	return a.Int(0), a.Error(1)
}

func (d *DriverMock) Write(h Handle, buf []byte) (int, error) {
	a := d.Called(h, buf)
	return a.Int(0), a.Error(1)
}

func (d *DriverMock) Stat(uri string) (FileInfo, error) {
	a := d.Called(uri)
	fi, _ := a.Get(0).(FileInfo)
	return fi, a.Error(1)
}

func (d *DriverMock) Rename(oldURI, newURI string) error { return d.Called(oldURI, newURI).Error(0) }
func (d *DriverMock) Unlink(uri string) error             { return d.Called(uri).Error(0) }
func (d *DriverMock) Rmdir(uri string) error              { return d.Called(uri).Error(0) }
func (d *DriverMock) Mkdirs(uri string, mode uint32) error {
	return d.Called(uri, mode).Error(0)
}
func (d *DriverMock) Chmod(uri string, mode uint32) error { return d.Called(uri, mode).Error(0) }
func (d *DriverMock) Chown(uri string, uid, gid int) error {
	return d.Called(uri, uid, gid).Error(0)
}
func (d *DriverMock) Utimes(uri string, modTime time.Time) error {
	return d.Called(uri, modTime).Error(0)
}
func (d *DriverMock) Put(sfp Handle, dfpURI string, params XferParams) error {
	return d.Called(sfp, dfpURI, params).Error(0)
}
func (d *DriverMock) Get(dfp Handle, sfpURI string, params XferParams) error {
	return d.Called(dfp, sfpURI, params).Error(0)
}
func (d *DriverMock) Sendfile(sfp, dfp Handle, cursor *ChunkCursor) error {
	return d.Called(sfp, dfp, cursor).Error(0)
}
func (d *DriverMock) FileID(uri string) (string, error) {
	a := d.Called(uri)
	return a.String(0), a.Error(1)
}
func (d *DriverMock) SetHidden(uri string, hidden bool) error {
	return d.Called(uri, hidden).Error(0)
}
func (d *DriverMock) SetProperty(name string, value interface{}) { d.Called(name, value) }
func (d *DriverMock) ErrorString() string                        { return d.Called().String(0) }
