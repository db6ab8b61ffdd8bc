package errcode

import "fmt"

// Error represents a business error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
	}
}

// Is supports errors.Is matching by code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Client-side error codes (6xxx and up). Codes below 6000 are reserved for
// the backend envelope and are passed through as-is when an API call fails.
var (
	// Success
	ErrSuccess = New(0, "success")

	// Backend envelope errors (1xxx)
	ErrInvalidParam   = New(1001, "invalid parameter")
	ErrInternalServer = New(1002, "internal server error")
	ErrUnauthorized   = New(1003, "unauthorized")
	ErrForbidden      = New(1004, "forbidden")
	ErrNotFound       = New(1005, "not found")

	// Transport errors (6xxx)
	ErrTransport        = New(6001, "transport error")
	ErrDecodeResponse   = New(6002, "decode response failed")
	ErrSocketClosed     = New(6003, "socket connection closed")
	ErrSocketDial       = New(6004, "socket dial failed")
	ErrWriteChannelFull = New(6005, "socket write channel full")

	// Chat client errors (7xxx)
	ErrRoomResolve    = New(7001, "room resolution failed")
	ErrEmptyMessage   = New(7002, "empty message")
	ErrSendFailed     = New(7003, "send message failed")
	ErrHistoryFetch   = New(7004, "history fetch failed")
	ErrMarkReadFailed = New(7005, "mark read failed")
	ErrSurfaceClosed  = New(7006, "chat surface closed")
	ErrTokenExpired   = New(7007, "token expired")
	ErrUnknownTempId  = New(7008, "unknown temporary message id")
)

// FromCode maps a backend envelope code to an Error, preserving the
// backend message when one is supplied.
func FromCode(code int, msg string) *Error {
	if code == 0 {
		return nil
	}
	if msg == "" {
		msg = "backend error"
	}
	return New(code, msg)
}
