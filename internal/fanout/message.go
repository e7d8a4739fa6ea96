package fanout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// TypeMessage is the only inbound and outbound message type of the protocol.
const TypeMessage = "message"

// TimestampLayout renders wire timestamps as ISO-8601 UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var validate = validator.New()

// Inbound is a chat submission received from a connection.
type Inbound struct {
	Type        string `json:"type" validate:"required,eq=message"`
	Content     string `json:"content" validate:"required"`
	UserID      ID     `json:"userId" validate:"required"`
	GroupID     ID     `json:"groupId" validate:"required"`
	IsAnonymous *bool  `json:"isAnonymous" validate:"required"`
}

// WireMessage is the enriched message pushed to every member of a group.
// Username always carries the real sender name, whatever IsAnonymous says.
type WireMessage struct {
	Type        string `json:"type"`
	ID          uint64 `json:"id"`
	Content     string `json:"content"`
	UserID      ID     `json:"userId"`
	GroupID     ID     `json:"groupId"`
	IsAnonymous bool   `json:"isAnonymous"`
	Username    string `json:"username"`
	Timestamp   string `json:"timestamp"`
}

// Submission is what the store persists for one inbound message.
type Submission struct {
	Content     string
	UserID      ID
	GroupID     ID
	IsAnonymous bool
}

// Persisted is the store-assigned identity of a submission.
type Persisted struct {
	ID        uint64
	CreatedAt time.Time
}

type envelope struct {
	Type string `json:"type"`
}

// DecodeInbound parses and validates a raw payload. Payloads of any other
// type than TypeMessage yield ErrUnsupportedType, everything unusable yields
// ErrMalformed.
func DecodeInbound(payload []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type != TypeMessage {
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnsupportedType, env.Type)
	}

	var msg Inbound
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(msg); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

func (m Inbound) submission() Submission {
	return Submission{
		Content:     m.Content,
		UserID:      m.UserID,
		GroupID:     m.GroupID,
		IsAnonymous: *m.IsAnonymous,
	}
}

func newWireMessage(sub Submission, persisted Persisted, username string) WireMessage {
	return WireMessage{
		Type:        TypeMessage,
		ID:          persisted.ID,
		Content:     sub.Content,
		UserID:      sub.UserID,
		GroupID:     sub.GroupID,
		IsAnonymous: sub.IsAnonymous,
		Username:    username,
		Timestamp:   persisted.CreatedAt.UTC().Format(TimestampLayout),
	}
}
