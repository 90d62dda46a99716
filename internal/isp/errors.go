package isp

import (
	"errors"
	"fmt"
)

// ErrBypassed reports an operation skipped because the controller is
// exiting or paused. It is not a failure.
var ErrBypassed = errors.New("isp: bypassed")

// Error codes published in the status block last-error slot.
const (
	CodeGeneric    uint16 = 1
	CodeIoctl      uint16 = 2
	CodeBuffer     uint16 = 3
	CodeParam      uint16 = 4
	CodeContention uint16 = 5
)

// IoctlError is a failed control write or read on a device node.
type IoctlError struct {
	Op      string
	Control string
	Err     error
}

func (e *IoctlError) Error() string {
	if e.Control == "" {
		return fmt.Sprintf("ioctl %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ioctl %s (%s): %v", e.Op, e.Control, e.Err)
}

func (e *IoctlError) Unwrap() error { return e.Err }
func (e *IoctlError) Code() uint16  { return CodeIoctl }

// BufferError is a failed statistics or parameter buffer dequeue/requeue.
type BufferError struct {
	Op  string
	Err error
}

func (e *BufferError) Error() string {
	return fmt.Sprintf("buffer %s: %v", e.Op, e.Err)
}

func (e *BufferError) Unwrap() error { return e.Err }
func (e *BufferError) Code() uint16  { return CodeBuffer }

// ParamError is a merged parameter set that failed the hardware validity
// check. The update for that cycle is dropped.
type ParamError struct {
	Module string
	Reason string
}

func (e *ParamError) Error() string {
	if e.Module == "" {
		return "params: " + e.Reason
	}
	return fmt.Sprintf("params: module %s: %s", e.Module, e.Reason)
}

func (e *ParamError) Code() uint16 { return CodeParam }

// ContentionWarning is raised when a late statistics frame arrives while
// a previous delayed-stats marker is still outstanding. It is logged and
// never aborts processing.
type ContentionWarning struct {
	Pending  uint32
	Sequence uint32
}

func (e *ContentionWarning) Error() string {
	return fmt.Sprintf("delayed stats marker %d still pending at sequence %d", e.Pending, e.Sequence)
}

func (e *ContentionWarning) Code() uint16 { return CodeContention }

// IsBypassed reports whether err is, or wraps, ErrBypassed.
func IsBypassed(err error) bool {
	return errors.Is(err, ErrBypassed)
}
