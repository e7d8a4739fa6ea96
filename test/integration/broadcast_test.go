// Package integration contains end-to-end tests that run the whole server
// on a temporary database and talk to it over WebSocket and HTTP.
package integration

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/groupchat/internal/fanout"
	"github.com/Tyrowin/groupchat/internal/store"
	"github.com/Tyrowin/groupchat/test/testhelpers"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	receiveTimeout = 2 * time.Second
	quietPeriod    = 300 * time.Millisecond
)

func idOf(id uint) fanout.ID {
	return fanout.ID(strconv.FormatUint(uint64(id), 10))
}

// TestGroupMembersReceiveMessages walks two members of g1 and one member of
// g2 through a short conversation.
func TestGroupMembersReceiveMessages(t *testing.T) {
	r := require.New(t)
	app := testhelpers.NewApp(t, nil)
	alice := testhelpers.RegisterUser(t, app.HTTP.URL, "alice")
	bob := testhelpers.RegisterUser(t, app.HTTP.URL, "bob")

	a := testhelpers.MustConnect(t, app.WSURL)
	b := testhelpers.MustConnect(t, app.WSURL)
	c := testhelpers.MustConnect(t, app.WSURL)

	r.NoError(testhelpers.SendChat(a, alice, "g1", "hello"))
	got := testhelpers.ReceiveChat(t, a, receiveTimeout)
	r.Equal("hello", got.Content)
	r.Equal("alice", got.Username)

	r.NoError(testhelpers.SendChat(b, bob, "g1", "hi alice"))
	for _, conn := range []*websocket.Conn{a, b} {
		got := testhelpers.ReceiveChat(t, conn, receiveTimeout)
		r.Equal("hi alice", got.Content)
		r.Equal("bob", got.Username)
		r.Equal(fanout.ID("g1"), got.GroupID)
		r.Equal(idOf(bob), got.UserID)
	}

	r.NoError(testhelpers.SendChat(c, alice, "g2", "elsewhere"))
	got = testhelpers.ReceiveChat(t, c, receiveTimeout)
	r.Equal("elsewhere", got.Content)
	r.Equal(fanout.ID("g2"), got.GroupID)

	testhelpers.ExpectNoMessage(t, a, quietPeriod)
	testhelpers.ExpectNoMessage(t, b, quietPeriod)
}

// TestSwitchingGroupsMovesConnection sends from one connection into two
// groups in turn and checks the first group no longer reaches it.
func TestSwitchingGroupsMovesConnection(t *testing.T) {
	r := require.New(t)
	app := testhelpers.NewApp(t, nil)
	alice := testhelpers.RegisterUser(t, app.HTTP.URL, "alice")
	bob := testhelpers.RegisterUser(t, app.HTTP.URL, "bob")

	a := testhelpers.MustConnect(t, app.WSURL)
	b := testhelpers.MustConnect(t, app.WSURL)

	r.NoError(testhelpers.SendChat(a, alice, "g1", "in g1"))
	testhelpers.ReceiveChat(t, a, receiveTimeout)
	r.NoError(testhelpers.SendChat(a, alice, "g2", "in g2"))
	r.Equal(fanout.ID("g2"), testhelpers.ReceiveChat(t, a, receiveTimeout).GroupID)

	r.Eventually(func() bool {
		return len(app.Registry.MembersOf("g1")) == 0
	}, receiveTimeout, 10*time.Millisecond)
	r.NotContains(app.Registry.Groups(), fanout.ID("g1"))

	r.NoError(testhelpers.SendChat(b, bob, "g1", "anyone?"))
	r.Equal("anyone?", testhelpers.ReceiveChat(t, b, receiveTimeout).Content)
	testhelpers.ExpectNoMessage(t, a, quietPeriod)
}

// TestDisconnectRemovesSoleMember checks that the group of a disconnected
// sole member disappears from the live stats.
func TestDisconnectRemovesSoleMember(t *testing.T) {
	r := require.New(t)
	app := testhelpers.NewApp(t, nil)
	alice := testhelpers.RegisterUser(t, app.HTTP.URL, "alice")

	a, err := testhelpers.ConnectWebSocket(app.WSURL)
	r.NoError(err)
	r.NoError(testhelpers.SendChat(a, alice, "g3", "bye"))
	testhelpers.ReceiveChat(t, a, receiveTimeout)
	r.Contains(app.Registry.Groups(), fanout.ID("g3"))

	r.NoError(testhelpers.CloseWebSocket(a))

	r.Eventually(func() bool {
		return app.Server.Hub().ClientCount() == 0 && app.Registry.Len() == 0
	}, receiveTimeout, 20*time.Millisecond)

	resp := testhelpers.MakeRequest(t, http.MethodGet, app.HTTP.URL+"/stats", nil)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	var stats struct {
		Clients    int `json:"clients"`
		Groups     int `json:"groups"`
		Associated int `json:"associated"`
	}
	testhelpers.DecodeJSON(t, resp, &stats)
	r.Zero(stats.Clients)
	r.Zero(stats.Groups)
	r.Zero(stats.Associated)
}

// TestUnknownSenderIsPersistedButNotBroadcast sends as a user id that was
// never registered. The message takes an id but nobody ever sees it, live or
// in history.
func TestUnknownSenderIsPersistedButNotBroadcast(t *testing.T) {
	r := require.New(t)
	app := testhelpers.NewApp(t, nil)
	alice := testhelpers.RegisterUser(t, app.HTTP.URL, "alice")

	ghost := testhelpers.MustConnect(t, app.WSURL)
	r.NoError(testhelpers.SendChat(ghost, 42, "g1", "ghost"))
	testhelpers.ExpectNoMessage(t, ghost, quietPeriod)
	r.Empty(app.Registry.Groups())

	a := testhelpers.MustConnect(t, app.WSURL)
	r.NoError(testhelpers.SendChat(a, alice, "g1", "hello"))
	got := testhelpers.ReceiveChat(t, a, receiveTimeout)
	r.EqualValues(2, got.ID)

	resp := testhelpers.MakeRequest(t, http.MethodGet, app.HTTP.URL+"/api/groups/g1/messages", nil)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	var history []store.HistoryEntry
	testhelpers.DecodeJSON(t, resp, &history)
	r.Len(history, 1)
	r.Equal("hello", history[0].Content)
	r.Equal(idOf(alice), history[0].UserID)
}

// TestInvalidPayloadsKeepConnectionOpen sends garbage first and a valid
// message afterwards on the same connection.
func TestInvalidPayloadsKeepConnectionOpen(t *testing.T) {
	r := require.New(t)
	app := testhelpers.NewApp(t, nil)
	alice := testhelpers.RegisterUser(t, app.HTTP.URL, "alice")

	a := testhelpers.MustConnect(t, app.WSURL)
	payloads := []string{
		`not json`,
		`{"type":"message","content":"no ids"}`,
		`{"type":"typing","userId":1,"groupId":"g1"}`,
		`{"type":"message","content":"x","userId":true,"groupId":"g1","isAnonymous":false}`,
	}
	for _, p := range payloads {
		r.NoError(testhelpers.SendRawMessage(a, websocket.TextMessage, []byte(p)))
	}

	r.NoError(testhelpers.SendChat(a, alice, "g1", "still here"))
	got := testhelpers.ReceiveChat(t, a, receiveTimeout)
	r.Equal("still here", got.Content)

	history, err := app.Store.History(t.Context(), "g1")
	r.NoError(err)
	r.Len(history, 1)
}

// TestMessagesFromOneConnectionKeepOrder sends a burst from one member and
// checks both members see it in sending order with increasing ids.
func TestMessagesFromOneConnectionKeepOrder(t *testing.T) {
	r := require.New(t)
	app := testhelpers.NewApp(t, nil)
	alice := testhelpers.RegisterUser(t, app.HTTP.URL, "alice")
	bob := testhelpers.RegisterUser(t, app.HTTP.URL, "bob")

	a := testhelpers.MustConnect(t, app.WSURL)
	b := testhelpers.MustConnect(t, app.WSURL)
	r.NoError(testhelpers.SendChat(b, bob, "g1", "ready"))
	testhelpers.ReceiveChat(t, b, receiveTimeout)

	const count = 20
	for i := 0; i < count; i++ {
		r.NoError(testhelpers.SendChat(a, alice, "g1", strconv.Itoa(i)))
	}

	for _, conn := range []*websocket.Conn{a, b} {
		var lastID uint64
		for i := 0; i < count; i++ {
			got := testhelpers.ReceiveChat(t, conn, receiveTimeout)
			r.Equal(strconv.Itoa(i), got.Content)
			r.Greater(got.ID, lastID)
			lastID = got.ID
		}
	}
}

// TestConcurrentSendersAllDelivered has several members of one group send at
// the same time; every member receives every message exactly once.
func TestConcurrentSendersAllDelivered(t *testing.T) {
	r := require.New(t)
	app := testhelpers.NewApp(t, nil)

	const numClients = 4
	const perClient = 5
	conns := make([]*websocket.Conn, numClients)
	users := make([]uint, numClients)
	// Each join reaches every connection that joined before it.
	for i := range conns {
		users[i] = testhelpers.RegisterUser(t, app.HTTP.URL, "user"+strconv.Itoa(i))
		conns[i] = testhelpers.MustConnect(t, app.WSURL)
		r.NoError(testhelpers.SendChat(conns[i], users[i], "g1", "join"))
		for j := 0; j <= i; j++ {
			r.Equal("join", testhelpers.ReceiveChat(t, conns[j], receiveTimeout).Content)
		}
	}

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(conn *websocket.Conn, user uint) {
			defer wg.Done()
			for k := 0; k < perClient; k++ {
				_ = testhelpers.SendChat(conn, user, "g1", "burst")
			}
		}(conn, users[i])
	}
	wg.Wait()

	for _, conn := range conns {
		seen := map[uint64]bool{}
		for k := 0; k < numClients*perClient; k++ {
			got := testhelpers.ReceiveChat(t, conn, receiveTimeout)
			r.False(seen[got.ID], "duplicate delivery of %d", got.ID)
			seen[got.ID] = true
		}
		testhelpers.ExpectNoMessage(t, conn, quietPeriod)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
