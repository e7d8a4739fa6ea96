//go:generate go run go.uber.org/mock/mockgen -source=server.go -destination=mocks/mock_server.go -package=mocks
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Tyrowin/groupchat/internal/account"
	"github.com/Tyrowin/groupchat/internal/fanout"
	"github.com/Tyrowin/groupchat/internal/store"
	"github.com/gorilla/websocket"
)

// GroupStore holds groups, memberships and message history.
type GroupStore interface {
	CreateGroup(ctx context.Context, name string, creatorID uint) (store.Group, error)
	ListGroups(ctx context.Context) ([]store.Group, []store.GroupMember, error)
	RequestJoin(ctx context.Context, groupID, userID uint) error
	PendingRequests(ctx context.Context, groupID uint) ([]store.User, error)
	Approve(ctx context.Context, groupID, userID uint) error
	History(ctx context.Context, groupID string) ([]store.HistoryEntry, error)
}

// Accounts registers users and checks their credentials.
type Accounts interface {
	Register(ctx context.Context, creds account.Credentials) (store.User, error)
	Login(ctx context.Context, creds account.Credentials) (store.User, error)
}

// Dependencies are the collaborators a Server is built from.
type Dependencies struct {
	Inbound  InboundHandler
	Registry *fanout.Registry
	Groups   GroupStore
	Accounts Accounts
	Logger   *slog.Logger
}

// Server owns the hub and serves the WebSocket endpoint and the JSON API.
type Server struct {
	cfg      Config
	hub      *Hub
	inbound  InboundHandler
	registry *fanout.Registry
	groups   GroupStore
	accounts Accounts
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// New builds a Server. The returned server's hub is not running yet; start
// it with go s.Hub().Run().
func New(cfg *Config, deps Dependencies) *Server {
	c := sanitizeConfig(*cfg)
	origins := newOriginPolicy(c.AllowedOrigins, deps.Logger)

	return &Server{
		cfg:      c,
		hub:      NewHub(deps.Registry, deps.Logger),
		inbound:  deps.Inbound,
		registry: deps.Registry,
		groups:   deps.Groups,
		accounts: deps.Accounts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		log: deps.Logger,
	}
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return SetupRoutes(s)
}
