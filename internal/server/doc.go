// Package server exposes the group chat over HTTP: a WebSocket endpoint whose
// connections feed the fan-out broadcaster, and a JSON API for accounts,
// groups, membership and message history.
//
// A Hub owns the lifecycle of every WebSocket client. Clients implement
// fanout.Conn so the broadcaster can associate them with groups and queue
// messages on them without knowing about WebSockets.
package server
