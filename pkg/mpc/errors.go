package mpc

import (
	"errors"
	"fmt"
)

// Kind classifies client errors.
type Kind int

const (
	KindInvalidArgument Kind = iota + 1
	KindConnection
	KindCommand
	KindTruncated
)

// Sentinel errors for errors.Is checks against a Kind.
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument, Msg: "invalid argument"}
	ErrConnection      = &Error{Kind: KindConnection, Msg: "mpd connection failed"}
	ErrCommand         = &Error{Kind: KindCommand, Msg: "error running mpd command"}
	ErrTruncated       = &Error{Kind: KindTruncated, Msg: "result stream truncated"}
)

// CommandFailed is the message carried by every command error.
const CommandFailed = "error running mpd command"

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConnection:
		return "connection"
	case KindCommand:
		return "command"
	case KindTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// Code returns the reply error code used on the wire.
func (k Kind) Code() string {
	switch k {
	case KindInvalidArgument:
		return "INVALID"
	case KindConnection:
		return "CONNECTION"
	case KindCommand:
		return "COMMAND"
	case KindTruncated:
		return "TRUNCATED"
	default:
		return "INTERNAL"
	}
}

// Error carries a user-visible message, its kind and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can test against the
// sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// InvalidArgument builds an InvalidArgument error.
func InvalidArgument(op string, msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Op: op, Msg: msg}
}

// ConnectionError builds a ConnectionError carrying the daemon message.
func ConnectionError(op string, err error) *Error {
	return &Error{Kind: KindConnection, Op: op, Msg: "mpd connection failed", Err: err}
}

// CommandError builds a CommandError with the generic command message.
func CommandError(op string, err error) *Error {
	return &Error{Kind: KindCommand, Op: op, Msg: CommandFailed, Err: err}
}

// TruncatedError reports a result stream that ended before completion.
func TruncatedError(op string, err error) *Error {
	return &Error{Kind: KindTruncated, Op: op, Msg: "result stream truncated", Err: err}
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ReplyCode maps an error to the wire reply code.
func ReplyCode(err error) string {
	if k := KindOf(err); k != 0 {
		return k.Code()
	}
	return "INTERNAL"
}

// Message returns the message a script environment should see. Command
// errors never expose the transport cause.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	switch e.Kind {
	case KindCommand:
		return CommandFailed
	case KindConnection:
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	return e.Msg
}
