// Package store persists users, groups, memberships and chat messages in
// SQLite through GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Tyrowin/groupchat/internal/fanout"
	"github.com/samber/lo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrAlreadyMember = errors.New("membership already exists")
)

// Open connects to the SQLite database at path and creates missing tables.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// SQLite allows a single writer; one pooled connection queues concurrent
	// callers instead of failing them with SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&User{}, &Group{}, &GroupMember{}, &Message{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Store implements the message store and user directory used by the
// broadcaster, and the CRUD queries behind the HTTP API.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InsertMessage appends a chat message. The database assigns its id and the
// creation timestamp.
func (s *Store) InsertMessage(ctx context.Context, sub fanout.Submission) (fanout.Persisted, error) {
	msg := Message{
		Content:     sub.Content,
		UserID:      sub.UserID.String(),
		GroupID:     sub.GroupID.String(),
		IsAnonymous: sub.IsAnonymous,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fanout.Persisted{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return fanout.Persisted{ID: msg.ID, CreatedAt: msg.CreatedAt}, nil
}

// FindUsernameByID resolves a sender id. Ids that are not user ids at all
// are reported as unknown senders like missing users.
func (s *Store) FindUsernameByID(ctx context.Context, userID fanout.ID) (string, error) {
	id, err := strconv.ParseUint(userID.String(), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", fanout.ErrUnknownSender, userID.String())
	}
	user, err := s.FindUserByID(ctx, uint(id))
	if errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("%w: %d", fanout.ErrUnknownSender, id)
	}
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

func (s *Store) FindUserByID(ctx context.Context, id uint) (User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// CreateUser inserts a user with an already hashed password.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	user := User{Username: username, PasswordHash: passwordHash}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return User{}, err
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// CreateGroup inserts a group and makes its creator an approved member.
func (s *Store) CreateGroup(ctx context.Context, name string, creatorID uint) (Group, error) {
	group := Group{Name: name, CreatorID: creatorID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		return tx.Create(&GroupMember{
			GroupID: group.ID,
			UserID:  creatorID,
			Status:  StatusApproved,
		}).Error
	})
	if err != nil {
		return Group{}, fmt.Errorf("failed to create group: %w", err)
	}
	return group, nil
}

// ListGroups returns every group together with every membership row.
func (s *Store) ListGroups(ctx context.Context) ([]Group, []GroupMember, error) {
	groups := []Group{}
	if err := s.db.WithContext(ctx).Order("id").Find(&groups).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to list groups: %w", err)
	}
	memberships := []GroupMember{}
	if err := s.db.WithContext(ctx).Order("group_id, user_id").Find(&memberships).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return groups, memberships, nil
}

// RequestJoin records a pending membership request.
func (s *Store) RequestJoin(ctx context.Context, groupID, userID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&GroupMember{}).
			Where("group_id = ? AND user_id = ?", groupID, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyMember
		}
		return tx.Create(&GroupMember{GroupID: groupID, UserID: userID, Status: StatusPending}).Error
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyMember) {
			return err
		}
		return fmt.Errorf("failed to request join: %w", err)
	}
	return nil
}

// PendingRequests lists the users waiting for approval in a group.
func (s *Store) PendingRequests(ctx context.Context, groupID uint) ([]User, error) {
	users := []User{}
	err := s.db.WithContext(ctx).
		Joins("JOIN group_members ON group_members.user_id = users.id").
		Where("group_members.group_id = ? AND group_members.status = ?", groupID, StatusPending).
		Order("users.id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	return users, nil
}

// Approve turns a membership of a group into an approved one.
func (s *Store) Approve(ctx context.Context, groupID, userID uint) error {
	result := s.db.WithContext(ctx).Model(&GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Update("status", StatusApproved)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to approve member: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// History returns the messages of a group in persisted order with their
// senders resolved. Messages whose sender does not resolve are left out.
func (s *Store) History(ctx context.Context, groupID string) ([]HistoryEntry, error) {
	var messages []Message
	if err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("id").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	userIDs := lo.Uniq(lo.FilterMap(messages, func(m Message, _ int) (uint, bool) {
		id, err := strconv.ParseUint(m.UserID, 10, 64)
		return uint(id), err == nil
	}))
	var users []User
	if len(userIDs) > 0 {
		if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, fmt.Errorf("failed to fetch message senders: %w", err)
		}
	}
	byID := lo.KeyBy(users, func(u User) string {
		return strconv.FormatUint(uint64(u.ID), 10)
	})

	return lo.FilterMap(messages, func(m Message, _ int) (HistoryEntry, bool) {
		sender, ok := byID[m.UserID]
		if !ok {
			return HistoryEntry{}, false
		}
		return HistoryEntry{
			ID:                m.ID,
			Content:           m.Content,
			Timestamp:         m.CreatedAt.UTC().Format(fanout.TimestampLayout),
			IsAnonymous:       m.IsAnonymous,
			UserID:            fanout.ID(m.UserID),
			Username:          sender.Username,
			ProfilePictureURL: sender.ProfilePictureURL,
		}, true
	}), nil
}
