//go:generate go run go.uber.org/mock/mockgen -source=collaborators.go -destination=mocks/mock_collaborators.go -package=mocks
package fanout

import "context"

// Conn is a live connection to one client. Implementations must be usable as
// map keys, which pointer receivers satisfy.
type Conn interface {
	ID() string
	IsOpen() bool
	// Send queues payload for delivery without blocking.
	Send(payload []byte) error
}

// Store appends chat messages. It must be safe for concurrent callers.
type Store interface {
	InsertMessage(ctx context.Context, sub Submission) (Persisted, error)
}

// Directory resolves user ids to display names. A miss returns
// ErrUnknownSender.
type Directory interface {
	FindUsernameByID(ctx context.Context, userID ID) (string, error)
}
