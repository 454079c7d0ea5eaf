package exitcode

import (
	"errors"
	"os"
)

const (
	Success     = 0
	BuildFailed = 1

	// Invalid flags, an unreadable config file or invalid option values
	Usage = 2
)

// Coder is an error that knows which exit code it maps to
type Coder interface {
	error
	ExitCode() int
}

// Get gets the exit code associated with an error. Cases:
//
//	nil => Success
//	errors implementing Coder => value returned by ExitCode
//	all other errors => BuildFailed
func Get(err error) int {
	if err == nil {
		return Success
	}

	if coder := Coder(nil); errors.As(err, &coder) {
		return coder.ExitCode()
	}

	return BuildFailed
}

// Set wraps an error in a Coder, setting its exit code
func Set(err error, code int) error {
	if err == nil {
		return nil
	}
	return coder{err, code}
}

var _ Coder = coder{}

type coder struct {
	error
	int
}

func (co coder) ExitCode() int {
	return co.int
}

func (co coder) Unwrap() error {
	return co.error
}

// Exit calls os.Exit with the exit code associated with err
func Exit(err error) {
	os.Exit(Get(err))
}
