package integration

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/groupchat/internal/server"
	"github.com/Tyrowin/groupchat/test/testhelpers"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialWithOrigin(t *testing.T, url, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	if resp != nil {
		t.Cleanup(func() { _ = resp.Body.Close() })
	}
	return conn, resp, err
}

// TestOriginValidation tests the origin policy of the WebSocket endpoint.
func TestOriginValidation(t *testing.T) {
	app := testhelpers.NewApp(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"http://example.com"}
	})

	t.Run("Missing Origin header", func(t *testing.T) {
		_, resp, err := dialWithOrigin(t, app.WSURL, "")
		require.Error(t, err)
		require.NotNil(t, resp)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Disallowed origin", func(t *testing.T) {
		_, resp, err := dialWithOrigin(t, app.WSURL, "http://evil.example.org")
		require.Error(t, err)
		require.NotNil(t, resp)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Malformed Origin URL", func(t *testing.T) {
		for _, origin := range []string{"not-a-url", "://missing-scheme", "http://", "javascript:alert(1)"} {
			_, _, err := dialWithOrigin(t, app.WSURL, origin)
			require.Error(t, err, "origin %q", origin)
		}
	})

	t.Run("Case sensitivity in origin matching", func(t *testing.T) {
		for _, origin := range []string{"http://EXAMPLE.COM", "http://Example.Com", "HTTP://example.com"} {
			_, _, err := dialWithOrigin(t, app.WSURL, origin)
			require.NoError(t, err, "origin %q", origin)
		}
	})
}

func TestWildcardOrigin(t *testing.T) {
	app := testhelpers.NewApp(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"*"}
	})

	_, _, err := dialWithOrigin(t, app.WSURL, "https://anywhere.example.net")
	require.NoError(t, err)
}

// TestMessageSizeLimit sends a frame over the configured limit; the server
// drops the connection.
func TestMessageSizeLimit(t *testing.T) {
	app := testhelpers.NewApp(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = 256
	})
	conn := testhelpers.MustConnect(t, app.WSURL)

	huge := `{"type":"message","content":"` + strings.Repeat("x", 1024) + `","userId":1,"groupId":"g1","isAnonymous":false}`
	require.NoError(t, testhelpers.SendRawMessage(conn, websocket.TextMessage, []byte(huge)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(receiveTimeout)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return app.Server.Hub().ClientCount() == 0
	}, receiveTimeout, 20*time.Millisecond)
}

// TestRateLimit exhausts the burst of a connection whose tokens do not
// refill during the test.
func TestRateLimit(t *testing.T) {
	r := require.New(t)
	app := testhelpers.NewApp(t, func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 2, RefillInterval: time.Hour}
	})
	alice := testhelpers.RegisterUser(t, app.HTTP.URL, "alice")
	conn := testhelpers.MustConnect(t, app.WSURL)

	for i := 0; i < 5; i++ {
		r.NoError(testhelpers.SendChat(conn, alice, "g1", "spam"))
	}
	testhelpers.ReceiveChat(t, conn, receiveTimeout)
	testhelpers.ReceiveChat(t, conn, receiveTimeout)
	testhelpers.ExpectNoMessage(t, conn, quietPeriod)

	history, err := app.Store.History(t.Context(), "g1")
	r.NoError(err)
	r.Len(history, 2)
}
