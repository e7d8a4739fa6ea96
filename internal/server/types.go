package server

import (
	"context"
	"strings"

	"github.com/Tyrowin/groupchat/internal/fanout"
)

// InboundHandler processes one raw payload received on a connection.
// *fanout.Broadcaster satisfies it.
type InboundHandler interface {
	HandleInbound(ctx context.Context, conn fanout.Conn, payload []byte) error
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
