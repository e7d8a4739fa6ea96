package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/groupchat/internal/fanout"
)

// Hub tracks every live WebSocket client and runs its pumps. Group
// membership lives in the fan-out registry; the hub only makes sure a client
// leaves it when the connection ends.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	registry   *fanout.Registry
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        *slog.Logger
}

// NewHub creates a Hub that removes closed clients from registry.
func NewHub(registry *fanout.Registry, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		registry:   registry,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
}

// Register hands client to the hub, which starts its pumps. It returns
// false when the hub is already shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes client from the hub and from its group. Once the hub is
// shutting down the client is released directly.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		h.release(client)
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's event loop. It returns once Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.start(client)

		case client := <-h.unregister:
			if h.release(client) {
				h.log.Info("Client unregistered", "addr", client.addr, "clients", h.ClientCount())
			}
		}
	}
}

func (h *Hub) start(client *Client) {
	h.mutex.Lock()
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()
	h.log.Info("Client registered", "addr", client.addr, "clients", clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// release forgets client, drops its group association and closes its send
// queue. It reports whether the client was still registered.
func (h *Hub) release(client *Client) bool {
	h.mutex.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.mutex.Unlock()

	if group, ok := h.registry.GroupOf(client); ok {
		h.log.Debug("Client left group", "conn", client.ID(), "group", group)
	}
	h.registry.Disassociate(client)
	client.markClosed()
	return ok
}

// shutdownClients closes every client connection so their pumps exit.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		h.release(client)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("Error closing client connection", "addr", client.addr, "error", err)
			}
		}
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown stops the hub and waits for all client goroutines to finish, or
// for timeout to pass.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
