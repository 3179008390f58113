package handlers

import (
	"context"
	"errors"
	"net/http"

	"upkeep-bknd/internal/middleware"
	"upkeep-bknd/internal/models"
	"upkeep-bknd/internal/services"

	"go.uber.org/zap"
)

type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

type AuthHandler struct {
	users UserLookup
	logr  *zap.Logger
}

func NewAuthHandler(users UserLookup, logr *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, logr: logr}
}

type userInfo struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	AuthMethod string   `json:"auth_method"`
	Roles      []string `json:"roles"`
}

// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	u, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeJSON(w, http.StatusUnauthorized, errorResp{Error: "unknown user"})
			return
		}
		h.logr.Error("failed to load user", zap.Error(err), zap.String("user_id", userID))
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal server error"})
		return
	}

	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, userInfo{
		ID:         u.ID.String(),
		Email:      u.Email,
		Name:       u.Name,
		AuthMethod: middleware.AuthMethodFromContext(r.Context()),
		Roles:      roles,
	})
}
