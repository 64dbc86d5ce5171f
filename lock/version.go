package lock

import (
	"errors"
	"fmt"
)

// API version, packed as major<<16 | minor.
const (
	versionMajor = 1
	versionMinor = 0
)

// Version formatting errors.
var (
	// ErrNameTooLong reports that the rendered version string does not fit
	// the caller's buffer.
	ErrNameTooLong = errors.New("locksmith: version string does not fit buffer")

	// ErrIO reports that formatting itself failed.
	ErrIO = errors.New("locksmith: version formatting failed")
)

// Version returns the API version as a packed integer: the major version
// in the upper 16 bits, the minor in the lower 16.
func Version() uint32 {
	return versionMajor<<16 | versionMinor
}

// VersionToString renders the packed version ver as "major.minor" into
// buf and returns the number of bytes written. It fails with
// ErrNameTooLong when the rendered string does not fit and with ErrIO if
// formatting fails; buf is unspecified on error.
func VersionToString(ver uint32, buf []byte) (int, error) {
	s := fmt.Sprintf("%d.%d", (ver>>16)&0xffff, ver&0xffff)
	if len(s) == 0 {
		return 0, ErrIO
	}
	if len(s) > len(buf) {
		return 0, ErrNameTooLong
	}
	return copy(buf, s), nil
}

// VersionString returns the current API version as "major.minor".
func VersionString() string {
	return fmt.Sprintf("%d.%d", versionMajor, versionMinor)
}
