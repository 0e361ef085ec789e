package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"hitch/internal/auth"
	"hitch/internal/content"
	"hitch/internal/ws"
)

// OpsHandler serves the operator-only endpoints. They bind to a separate
// loopback listener, so there is no auth on this surface.
type OpsHandler struct {
	authService *auth.AuthService
	hub         *ws.Hub
}

func NewOpsHandler(authService *auth.AuthService, hub *ws.Hub) *OpsHandler {
	return &OpsHandler{authService: authService, hub: hub}
}

type AddAccountRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role,omitempty"`
	Password    string `json:"password"`
}

type AddAccountResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

func (h *OpsHandler) AddAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req AddAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := content.ValidateUsername(req.Username); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		http.Error(w, "Password is required", http.StatusBadRequest)
		return
	}

	displayName := content.SanitizeName(req.DisplayName)
	if displayName == "" {
		displayName = req.Username
	}

	user, err := h.authService.AddUser(req.Username, displayName, req.Role, req.Password)
	if errors.Is(err, auth.ErrUserExists) {
		writeJSONStatus(w, http.StatusConflict, AddAccountResponse{
			Success: false,
			Message: "Account already exists",
		})
		return
	}
	if err != nil {
		http.Error(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, http.StatusCreated, AddAccountResponse{
		Success:  true,
		UserID:   user.ID,
		Username: user.UserName,
	})
}

func (h *OpsHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.hub.Stats())
}
