package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/groupchat/internal/fanout"
	"github.com/stretchr/testify/require"
)

// setupTestStore opens a fresh SQLite database in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })

	return New(db)
}

func TestStore_InsertMessage_Assigns_Increasing_IDs(t *testing.T) {
	req := require.New(t)
	s := setupTestStore(t)
	ctx := context.Background()
	before := time.Now().Add(-time.Second)

	first, err := s.InsertMessage(ctx, fanout.Submission{Content: "one", UserID: "1", GroupID: "g1"})
	req.NoError(err)
	second, err := s.InsertMessage(ctx, fanout.Submission{Content: "two", UserID: "1", GroupID: "g1", IsAnonymous: true})
	req.NoError(err)

	req.Greater(second.ID, first.ID)
	req.True(first.CreatedAt.After(before))

	var stored Message
	req.NoError(s.db.First(&stored, "id = ?", second.ID).Error)
	req.Equal("two", stored.Content)
	req.Equal("g1", stored.GroupID)
	req.True(stored.IsAnonymous)
}

func TestStore_InsertMessage_Concurrent_Callers(t *testing.T) {
	req := require.New(t)
	s := setupTestStore(t)

	const writers = 5
	const perWriter = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := s.InsertMessage(context.Background(), fanout.Submission{Content: "x", UserID: "1", GroupID: "g"}); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		req.NoError(err)
	}
	var count int64
	req.NoError(s.db.Model(&Message{}).Count(&count).Error)
	req.Equal(int64(writers*perWriter), count)
}

func TestStore_FindUsernameByID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	alice, err := s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)

	t.Run("existing user", func(t *testing.T) {
		name, err := s.FindUsernameByID(ctx, fanout.ID(itoa(alice.ID)))
		require.NoError(t, err)
		require.Equal(t, "alice", name)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := s.FindUsernameByID(ctx, "999")
		require.ErrorIs(t, err, fanout.ErrUnknownSender)
	})

	t.Run("non numeric id", func(t *testing.T) {
		_, err := s.FindUsernameByID(ctx, "g1")
		require.ErrorIs(t, err, fanout.ErrUnknownSender)
	})
}

func TestStore_CreateUser_Rejects_Duplicates(t *testing.T) {
	req := require.New(t)
	s := setupTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "bob", "hash")
	req.NoError(err)
	req.NotZero(user.ID)
	req.Nil(user.ProfilePictureURL)

	_, err = s.CreateUser(ctx, "bob", "other")
	req.ErrorIs(err, ErrUsernameTaken)

	found, err := s.FindUserByUsername(ctx, "bob")
	req.NoError(err)
	req.Equal("hash", found.PasswordHash)

	_, err = s.FindUserByUsername(ctx, "nobody")
	req.ErrorIs(err, ErrNotFound)
}

func TestStore_Group_Membership_Flow(t *testing.T) {
	req := require.New(t)
	s := setupTestStore(t)
	ctx := context.Background()
	owner, err := s.CreateUser(ctx, "owner", "hash")
	req.NoError(err)
	joiner, err := s.CreateUser(ctx, "joiner", "hash")
	req.NoError(err)

	// Given a group created by owner
	group, err := s.CreateGroup(ctx, "gophers", owner.ID)
	req.NoError(err)

	groups, memberships, err := s.ListGroups(ctx)
	req.NoError(err)
	req.Len(groups, 1)
	req.Equal([]GroupMember{{GroupID: group.ID, UserID: owner.ID, Status: StatusApproved}},
		stripTimes(memberships))

	// When joiner asks to join
	req.NoError(s.RequestJoin(ctx, group.ID, joiner.ID))
	req.ErrorIs(s.RequestJoin(ctx, group.ID, joiner.ID), ErrAlreadyMember)

	// Then the request is pending until approved
	pending, err := s.PendingRequests(ctx, group.ID)
	req.NoError(err)
	req.Len(pending, 1)
	req.Equal("joiner", pending[0].Username)

	req.NoError(s.Approve(ctx, group.ID, joiner.ID))
	pending, err = s.PendingRequests(ctx, group.ID)
	req.NoError(err)
	req.Empty(pending)

	req.ErrorIs(s.Approve(ctx, group.ID, 12345), ErrNotFound)
}

func TestStore_History(t *testing.T) {
	req := require.New(t)
	s := setupTestStore(t)
	ctx := context.Background()
	alice, err := s.CreateUser(ctx, "alice", "hash")
	req.NoError(err)
	aliceID := fanout.ID(itoa(alice.ID))

	_, err = s.InsertMessage(ctx, fanout.Submission{Content: "first", UserID: aliceID, GroupID: "7"})
	req.NoError(err)
	_, err = s.InsertMessage(ctx, fanout.Submission{Content: "elsewhere", UserID: aliceID, GroupID: "8"})
	req.NoError(err)
	_, err = s.InsertMessage(ctx, fanout.Submission{Content: "ghost", UserID: "404", GroupID: "7", IsAnonymous: true})
	req.NoError(err)

	_, err = s.InsertMessage(ctx, fanout.Submission{Content: "second", UserID: aliceID, GroupID: "7", IsAnonymous: true})
	req.NoError(err)

	history, err := s.History(ctx, "7")
	req.NoError(err)
	req.Len(history, 2)
	req.Equal("first", history[0].Content)
	req.Equal("alice", history[0].Username)
	req.Equal("second", history[1].Content)
	req.True(history[1].IsAnonymous)
	req.Less(history[0].ID, history[1].ID)

	// The unresolved sender's message is stored but never listed.
	var stored int64
	req.NoError(s.db.Model(&Message{}).Where("group_id = ?", "7").Count(&stored).Error)
	req.EqualValues(3, stored)

	empty, err := s.History(ctx, "nope")
	req.NoError(err)
	req.Empty(empty)
}

func TestStore_History_Matches_Wire_Format(t *testing.T) {
	req := require.New(t)
	s := setupTestStore(t)
	ctx := context.Background()
	alice, err := s.CreateUser(ctx, "alice", "hash")
	req.NoError(err)

	persisted, err := s.InsertMessage(ctx, fanout.Submission{Content: "hi", UserID: fanout.ID(itoa(alice.ID)), GroupID: "g1"})
	req.NoError(err)
	when := time.Date(2024, 5, 1, 12, 30, 45, 123456789, time.UTC)
	req.NoError(s.db.Model(&Message{}).Where("id = ?", persisted.ID).Update("created_at", when).Error)

	history, err := s.History(ctx, "g1")
	req.NoError(err)
	raw, err := json.Marshal(history)
	req.NoError(err)
	req.JSONEq(fmt.Sprintf(`[{
		"id": %d,
		"content": "hi",
		"timestamp": "2024-05-01T12:30:45.123Z",
		"isAnonymous": false,
		"userId": %d,
		"username": "alice",
		"profilePictureUrl": null
	}]`, persisted.ID, alice.ID), string(raw))
}

func stripTimes(members []GroupMember) []GroupMember {
	out := make([]GroupMember, len(members))
	for i, m := range members {
		m.CreatedAt = time.Time{}
		out[i] = m
	}
	return out
}

func itoa(id uint) string {
	return fmt.Sprint(id)
}
