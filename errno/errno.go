// Package errno is the single error representation used throughout extentfs.
//
// The teacher this module is adapted from (dargueta/disko) carries two
// parallel designs for the same idea: a root-level DriverError that wraps a
// syscall.Errno, and a second, incompatible DriverError interface under
// errors/ built around a DiskoError string type. This package merges them
// into one: every error extentfs returns is a syscall.Errno wrapped with an
// optional descriptive message.
package errno

import (
	"fmt"
	"syscall"
)

// Error wraps a POSIX errno code with an optional human-readable message.
type Error struct {
	Errno   syscall.Errno
	message string
}

func (e *Error) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.Errno.Error()
}

// Is lets errors.Is(err, target) match against a bare syscall.Errno.
func (e *Error) Is(target error) bool {
	if other, ok := target.(syscall.Errno); ok {
		return e.Errno == other
	}
	return false
}

// New creates an Error with the default message derived from the errno code.
func New(code syscall.Errno) *Error {
	return &Error{Errno: code, message: code.Error()}
}

// Newf creates an Error from an errno code with a custom, formatted message.
func Newf(code syscall.Errno, format string, args ...any) *Error {
	return &Error{
		Errno:   code,
		message: fmt.Sprintf("%s: %s", code.Error(), fmt.Sprintf(format, args...)),
	}
}

// Wrap attaches an errno code to an existing error, preserving its message.
func Wrap(code syscall.Errno, err error) *Error {
	if err == nil {
		return New(code)
	}
	return &Error{Errno: code, message: err.Error()}
}

// Errno extracts the POSIX errno code from err, if any was attached.
func Errno(err error) (syscall.Errno, bool) {
	if e, ok := err.(*Error); ok {
		return e.Errno, true
	}
	return 0, false
}

// The taxonomy from the filesystem's error-handling design, mapped onto the
// nearest matching POSIX errno codes.
const (
	// ErrNameTooLong: a path exceeds PATH_MAX or a component exceeds NAME_MAX.
	ErrNameTooLong = syscall.ENAMETOOLONG
	// ErrNotFound: a path component is absent.
	ErrNotFound = syscall.ENOENT
	// ErrNotADirectory: a non-final path component is not a directory, or the
	// path does not begin with "/".
	ErrNotADirectory = syscall.ENOTDIR
	// ErrIsADirectory: an operation expected a regular file but found a directory.
	ErrIsADirectory = syscall.EISDIR
	// ErrNotEmpty: rmdir on a directory with at least one live child.
	ErrNotEmpty = syscall.ENOTEMPTY
	// ErrNoSpace: the inode bitmap, block bitmap, or a file's extent table is
	// exhausted.
	ErrNoSpace = syscall.ENOSPC
	// ErrOutOfMemory: the directory-enumeration filler rejected an entry.
	ErrOutOfMemory = syscall.ENOMEM
	// ErrExists: an object already exists at the requested path.
	ErrExists = syscall.EEXIST
	// ErrInvalidArgument: a malformed or out-of-range argument.
	ErrInvalidArgument = syscall.EINVAL
	// ErrIO: a lower-level read or write to the mapped image failed.
	ErrIO = syscall.EIO
)

func NameTooLong(format string, args ...any) *Error { return Newf(ErrNameTooLong, format, args...) }
func NotFound(format string, args ...any) *Error    { return Newf(ErrNotFound, format, args...) }
func NotADirectory(format string, args ...any) *Error {
	return Newf(ErrNotADirectory, format, args...)
}
func IsADirectory(format string, args ...any) *Error { return Newf(ErrIsADirectory, format, args...) }
func NotEmpty(format string, args ...any) *Error     { return Newf(ErrNotEmpty, format, args...) }
func NoSpace(format string, args ...any) *Error      { return Newf(ErrNoSpace, format, args...) }
func OutOfMemory(format string, args ...any) *Error  { return Newf(ErrOutOfMemory, format, args...) }
func Exists(format string, args ...any) *Error       { return Newf(ErrExists, format, args...) }
func InvalidArgument(format string, args ...any) *Error {
	return Newf(ErrInvalidArgument, format, args...)
}
func IO(format string, args ...any) *Error { return Newf(ErrIO, format, args...) }
