package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Broadcaster persists inbound chat messages and fans them out to the
// connections associated with their group.
type Broadcaster struct {
	store     Store
	directory Directory
	registry  *Registry
	log       *slog.Logger
}

func NewBroadcaster(store Store, directory Directory, registry *Registry, log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		store:     store,
		directory: directory,
		registry:  registry,
		log:       log,
	}
}

// HandleInbound processes one payload received from conn. Every returned
// error is terminal for this payload only; nothing is reported back to the
// sender. The steps run in a fixed order: persist, resolve the sender name,
// associate conn with the group, deliver. A failure at any step stops the
// steps after it.
func (b *Broadcaster) HandleInbound(ctx context.Context, conn Conn, payload []byte) error {
	msg, err := DecodeInbound(payload)
	if err != nil {
		return err
	}
	sub := msg.submission()

	persisted, err := b.store.InsertMessage(ctx, sub)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	username, err := b.directory.FindUsernameByID(ctx, sub.UserID)
	if err != nil {
		return fmt.Errorf("message %d left undelivered: %w", persisted.ID, err)
	}

	encoded, err := json.Marshal(newWireMessage(sub, persisted, username))
	if err != nil {
		return fmt.Errorf("encode message %d: %w", persisted.ID, err)
	}

	b.registry.Associate(conn, sub.GroupID)
	delivered := b.deliver(sub.GroupID, encoded)

	b.log.Debug("Message broadcast",
		"id", persisted.ID,
		"group", sub.GroupID.String(),
		"conn", conn.ID(),
		"count", delivered)
	return nil
}

// deliver sends payload to every open member of groupID and returns how many
// sends succeeded. A failing member never stops delivery to the others.
func (b *Broadcaster) deliver(groupID ID, payload []byte) int {
	delivered := 0
	for _, member := range b.registry.MembersOf(groupID) {
		if !member.IsOpen() {
			continue
		}
		if err := member.Send(payload); err != nil {
			b.log.Debug("Skipping member", "conn", member.ID(), "group", groupID.String(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// LogLevel picks the level a HandleInbound error is reported at.
func LogLevel(err error) slog.Level {
	switch {
	case errors.Is(err, ErrUnsupportedType):
		return slog.LevelDebug
	case errors.Is(err, ErrPersist):
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
