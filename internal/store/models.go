package store

import (
	"time"

	"github.com/Tyrowin/groupchat/internal/fanout"
)

// Membership statuses of a user in a group.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// User is a registered account.
type User struct {
	ID                uint      `gorm:"primarykey" json:"id"`
	CreatedAt         time.Time `json:"-"`
	Username          string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	PasswordHash      string    `gorm:"size:255;not null" json:"-"`
	ProfilePictureURL *string   `gorm:"size:255" json:"profilePictureUrl"`
}

func (User) TableName() string {
	return "users"
}

// Group is a named chat room owned by its creator.
type Group struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	CreatorID uint      `gorm:"not null;index" json:"creatorId"`
}

func (Group) TableName() string {
	return "groups"
}

// GroupMember is the approval-gated membership of a user in a group. It is
// distinct from the live association of a connection with a group.
type GroupMember struct {
	GroupID   uint      `gorm:"primaryKey" json:"groupId"`
	UserID    uint      `gorm:"primaryKey" json:"userId"`
	Status    string    `gorm:"size:16;not null;index" json:"status"`
	CreatedAt time.Time `json:"-"`
}

func (GroupMember) TableName() string {
	return "group_members"
}

// Message is a persisted chat message. User and group ids are kept exactly as
// the sender supplied them.
type Message struct {
	ID          uint64    `gorm:"primarykey;autoIncrement"`
	Content     string    `gorm:"type:text;not null"`
	UserID      string    `gorm:"size:64;not null;index"`
	GroupID     string    `gorm:"size:64;not null;index"`
	IsAnonymous bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"index"`
}

func (Message) TableName() string {
	return "messages"
}

// HistoryEntry is one message of a group history joined with its sender. Ids
// and timestamps are encoded like the live wire message.
type HistoryEntry struct {
	ID                uint64    `json:"id"`
	Content           string    `json:"content"`
	Timestamp         string    `json:"timestamp"`
	IsAnonymous       bool      `json:"isAnonymous"`
	UserID            fanout.ID `json:"userId"`
	Username          string    `json:"username"`
	ProfilePictureURL *string   `json:"profilePictureUrl"`
}
