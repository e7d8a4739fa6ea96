package fanout

import "errors"

var (
	ErrMalformed       = errors.New("malformed inbound message")
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrPersist         = errors.New("message persistence failed")
	ErrUnknownSender   = errors.New("sender not found")
	ErrSendBufferFull  = errors.New("send buffer full")
	ErrConnClosed      = errors.New("connection closed")
)
