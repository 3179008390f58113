package middleware

import (
	"context"
	"net/http"
	"strings"

	"upkeep-bknd/internal/auth"

	"go.uber.org/zap"
)

// TokenVerifier turns a bearer token into a caller identity.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Identity, error)
}

// TokenVersionChecker reports whether a token version is still current.
type TokenVersionChecker interface {
	CheckTokenVersion(ctx context.Context, userID string, tokenVersion int) (bool, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	versions TokenVersionChecker
	logr     *zap.Logger
}

type contextKey string

const (
	ContextUserIDKey  contextKey = "userID"
	ContextAuthMethod contextKey = "authMethod"
	ContextRolesKey   contextKey = "roles"
)

// NewAuthMiddleware creates a reusable JWT auth middleware instance.
// versions may be nil to skip the revocation check.
func NewAuthMiddleware(verifier TokenVerifier, versions TokenVersionChecker, logr *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		versions: versions,
		logr:     logr,
	}
}

// JWTAuth validates the token and attaches user info to request context
func (m *AuthMiddleware) JWTAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			writeError(w, http.StatusUnauthorized, "invalid token format")
			return
		}

		id, err := m.verifier.VerifyAccessToken(tokenString)
		if err != nil {
			m.logr.Warn("token parse error", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if m.versions != nil {
			valid, err := m.versions.CheckTokenVersion(r.Context(), id.UserID, id.TokenVersion)
			if err != nil {
				m.logr.Error("failed checking token version", zap.Error(err), zap.String("user_id", id.UserID))
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if !valid {
				m.logr.Warn("token version invalid", zap.String("user_id", id.UserID))
				writeError(w, http.StatusUnauthorized, "token revoked or invalid")
				return
			}
		}

		ctx := context.WithValue(r.Context(), ContextUserIDKey, id.UserID)
		ctx = context.WithValue(ctx, ContextAuthMethod, id.AuthMethod)
		ctx = context.WithValue(ctx, ContextRolesKey, id.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextUserIDKey).(string)
	return id
}

func AuthMethodFromContext(ctx context.Context) string {
	m, _ := ctx.Value(ContextAuthMethod).(string)
	return m
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(ContextRolesKey).([]string)
	return roles
}
