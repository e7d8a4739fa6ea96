package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Tyrowin/groupchat/internal/account"
	"github.com/Tyrowin/groupchat/internal/fanout"
	"github.com/Tyrowin/groupchat/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

var validate = validator.New()

type messageResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	Message string     `json:"message"`
	User    store.User `json:"user"`
}

type createGroupRequest struct {
	Name      string    `json:"name" validate:"required,max=100"`
	CreatorID fanout.ID `json:"creatorId" validate:"required"`
}

type createGroupResponse struct {
	Message string `json:"message"`
	GroupID uint   `json:"groupId"`
}

type groupsResponse struct {
	Groups      []store.Group       `json:"groups"`
	Memberships []store.GroupMember `json:"memberships"`
}

type memberRequest struct {
	UserID fanout.ID `json:"userId" validate:"required"`
}

type pendingRequest struct {
	UserID            uint    `json:"userId"`
	Username          string  `json:"username"`
	ProfilePictureURL *string `json:"profilePictureUrl"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// decodeBody reads a JSON body into dst and validates it.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

func parseUint(id string) (uint, bool) {
	n, err := strconv.ParseUint(id, 10, 0)
	return uint(n), err == nil
}

func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var creds account.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := s.accounts.Register(r.Context(), creds)
	switch {
	case errors.Is(err, account.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Username and password are required")
	case errors.Is(err, store.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already taken")
	case err != nil:
		s.log.Error("Registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
	default:
		s.log.Info("User registered", "user", user.ID)
		writeJSON(w, http.StatusCreated, userResponse{Message: "User registered successfully", User: user})
	}
}

func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds account.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := s.accounts.Login(r.Context(), creds)
	switch {
	case errors.Is(err, account.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Username and password are required")
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
	case err != nil:
		s.log.Error("Login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
	default:
		writeJSON(w, http.StatusOK, userResponse{Message: "Login successful", User: user})
	}
}

func (s *Server) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, memberships, err := s.groups.ListGroups(r.Context())
	if err != nil {
		s.log.Error("Listing groups failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, groupsResponse{Groups: groups, Memberships: memberships})
}

func (s *Server) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Group name and creator are required")
		return
	}
	creatorID, ok := parseUint(req.CreatorID.String())
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid creator id")
		return
	}

	group, err := s.groups.CreateGroup(r.Context(), req.Name, creatorID)
	if err != nil {
		s.log.Error("Creating group failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	s.log.Info("Group created", "group", group.ID, "user", creatorID)
	writeJSON(w, http.StatusCreated, createGroupResponse{Message: "Group created successfully", GroupID: group.ID})
}

// groupAndMember reads the group id from the path and the user id from the
// body. It writes a 400 response and returns false when either is invalid.
func groupAndMember(w http.ResponseWriter, r *http.Request) (uint, uint, bool) {
	groupID, ok := parseUint(mux.Vars(r)["groupId"])
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid group id")
		return 0, 0, false
	}
	var req memberRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "User id is required")
		return 0, 0, false
	}
	userID, ok := parseUint(req.UserID.String())
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return 0, 0, false
	}
	return groupID, userID, true
}

func (s *Server) JoinGroupHandler(w http.ResponseWriter, r *http.Request) {
	groupID, userID, ok := groupAndMember(w, r)
	if !ok {
		return
	}

	err := s.groups.RequestJoin(r.Context(), groupID, userID)
	switch {
	case errors.Is(err, store.ErrAlreadyMember):
		writeError(w, http.StatusConflict, "Join request already exists")
	case err != nil:
		s.log.Error("Join request failed", "group", groupID, "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
	default:
		writeJSON(w, http.StatusOK, messageResponse{Message: "Join request sent"})
	}
}

func (s *Server) PendingRequestsHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseUint(mux.Vars(r)["groupId"])
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid group id")
		return
	}

	users, err := s.groups.PendingRequests(r.Context(), groupID)
	if err != nil {
		s.log.Error("Listing join requests failed", "group", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(users, func(u store.User, _ int) pendingRequest {
		return pendingRequest{UserID: u.ID, Username: u.Username, ProfilePictureURL: u.ProfilePictureURL}
	}))
}

func (s *Server) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	groupID, userID, ok := groupAndMember(w, r)
	if !ok {
		return
	}

	err := s.groups.Approve(r.Context(), groupID, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Join request not found")
	case err != nil:
		s.log.Error("Approval failed", "group", groupID, "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
	default:
		writeJSON(w, http.StatusOK, messageResponse{Message: "User approved"})
	}
}

// MessagesHandler returns the history of a group. The group id is matched as
// stored, so string and numeric group ids are both served.
func (s *Server) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]

	entries, err := s.groups.History(r.Context(), groupID)
	if err != nil {
		s.log.Error("Fetching messages failed", "group", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
