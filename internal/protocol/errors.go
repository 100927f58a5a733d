package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure of a session. Every kind is terminal for
// the session; none is retried.
type ErrorKind int

const (
	// KindArgument is an invalid command, detected before any network activity.
	KindArgument ErrorKind = iota + 1
	// KindConnect is a failure to open the command connection.
	KindConnect
	// KindSend is a failure to write the command frame.
	KindSend
	// KindReceive covers framing failures on either channel, including a
	// peer that closed before a frame was complete.
	KindReceive
	// KindBind is a failure to open the data listener.
	KindBind
	// KindRejected is a status reply other than "OK".
	KindRejected
	// KindApplication is a data payload reporting a server-side error.
	KindApplication
	// KindWrite is a failure to store a received file locally.
	KindWrite
)

var kindNames = map[ErrorKind]string{
	KindArgument:    "argument",
	KindConnect:     "connect",
	KindSend:        "send",
	KindReceive:     "receive",
	KindBind:        "bind",
	KindRejected:    "rejected",
	KindApplication: "application",
	KindWrite:       "write",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ExitCode returns the process exit status used for this kind of failure.
func (k ErrorKind) ExitCode() int {
	switch k {
	case KindArgument:
		return 1
	case KindConnect:
		return 2
	case KindSend:
		return 3
	case KindReceive:
		return 4
	case KindBind:
		return 5
	case KindRejected:
		return 6
	case KindApplication:
		return 7
	case KindWrite:
		return 8
	default:
		return 1
	}
}

// Error is a typed session failure. Op names the step that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf returns an *Error of the given kind.
func Errorf(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0 if there
// is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
