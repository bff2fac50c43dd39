package main

import (
	"errors"

	engine "github.com/framesync/framesync/internal/sync"
)

// Exit codes follow sysexits(3) where one fits
const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 65 // EX_DATAERR: files were rejected
	exitNetwork    = 69 // EX_UNAVAILABLE: the remote could not be reached
	exitBusy       = 75 // EX_TEMPFAIL: another sync is running, retry later
	exitConfig     = 78 // EX_CONFIG
)

// errSilent fails a command whose output already described the failure
var errSilent = errors.New("command failed")

// exitError carries a specific exit code
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, engine.ErrBusy) {
		return exitBusy
	}
	if kind := engine.KindOf(err); kind != "" {
		return codeForKind(kind)
	}
	return exitFailure
}

func codeForKind(kind engine.ErrorKind) int {
	switch kind {
	case engine.KindBusy:
		return exitBusy
	case engine.KindValidation:
		return exitValidation
	case engine.KindNetwork:
		return exitNetwork
	case engine.KindConfiguration:
		return exitConfig
	}
	return exitFailure
}

// failed returns the error a command exits with after printing a failed
// result itself
func failed(kind engine.ErrorKind) error {
	return &exitError{code: codeForKind(kind), err: errSilent}
}
