// Package testhelpers provides common utilities and helper functions for testing the group chat server.
//
// It assembles the full application on a temporary SQLite database behind an
// httptest server, and offers helpers for speaking the chat protocol over
// WebSocket and calling the JSON API.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/groupchat/internal/account"
	"github.com/Tyrowin/groupchat/internal/fanout"
	"github.com/Tyrowin/groupchat/internal/server"
	"github.com/Tyrowin/groupchat/internal/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// TestOrigin is the origin the default test configuration allows and
// ConnectWebSocket sends.
const TestOrigin = "http://localhost:8080"

// App is a running instance of the whole server.
type App struct {
	HTTP     *httptest.Server
	WSURL    string
	Store    *store.Store
	Registry *fanout.Registry
	Server   *server.Server
}

// NewApp starts the server on a fresh database. mutate, when not nil, adjusts
// the configuration before the server is built. Everything is torn down when
// the test ends.
func NewApp(t *testing.T, mutate func(*server.Config)) *App {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{TestOrigin}
	cfg.DatabasePath = filepath.Join(t.TempDir(), "chat.db")
	cfg.BcryptCost = bcrypt.MinCost
	cfg.RateLimit.Burst = 100
	if mutate != nil {
		mutate(cfg)
	}

	log := slog.New(slog.DiscardHandler)
	db, err := store.Open(cfg.DatabasePath)
	require.NoError(t, err)
	st := store.New(db)

	registry := fanout.NewRegistry()
	srv := server.New(cfg, server.Dependencies{
		Inbound:  fanout.NewBroadcaster(st, st, registry, log),
		Registry: registry,
		Groups:   st,
		Accounts: account.NewService(st, account.NewPasswordHasher(cfg.BcryptCost)),
		Logger:   log,
	})
	go srv.Hub().Run()

	testServer := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Hub().Shutdown(2 * time.Second)
		testServer.Close()
		_ = store.Close(db)
	})

	return &App{
		HTTP:     testServer,
		WSURL:    WebSocketURL(testServer.URL),
		Store:    st,
		Registry: registry,
		Server:   srv,
	}
}

// WebSocketURL turns an http:// server URL into the ws:// URL of its chat endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect connects to url and closes the connection when the test ends.
func MustConnect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendChat sends a chat message. userID and groupID are sent as given, so
// numbers and strings both reach the server in their own JSON form.
func SendChat(conn *websocket.Conn, userID, groupID any, content string) error {
	return conn.WriteJSON(map[string]any{
		"type":        fanout.TypeMessage,
		"content":     content,
		"userId":      userID,
		"groupId":     groupID,
		"isAnonymous": false,
	})
}

// SendRawMessage sends a raw byte message over the WebSocket connection.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// ReceiveChat reads one broadcast message, failing the test if none arrives
// within timeout.
func ReceiveChat(t *testing.T, conn *websocket.Conn, timeout time.Duration) fanout.WireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	var msg fanout.WireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// ExpectNoMessage fails the test if conn receives anything within wait. The
// connection must not be read from afterwards.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message: %s", data)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// DecodeJSON decodes the response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

// RegisterUser creates an account through the API and returns its id.
func RegisterUser(t *testing.T, baseURL, username string) uint {
	t.Helper()
	resp := MakeRequest(t, http.MethodPost, baseURL+"/api/register", map[string]string{
		"username": username,
		"password": "secret-" + username,
	})
	AssertStatusCode(t, resp, http.StatusCreated)

	var body struct {
		User store.User `json:"user"`
	}
	DecodeJSON(t, resp, &body)
	return body.User.ID
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}
