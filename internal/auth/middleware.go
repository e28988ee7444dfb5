package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pkazancev/task-tracker-api/pkg/respond"
)

type contextKey string

const userIDKey contextKey = "userID"

// Middleware is the single authorization gate: it verifies the bearer token
// and puts the decoded user id on the request context.
type Middleware struct {
	tokens *TokenService
	logger *zap.Logger
}

func NewMiddleware(tokens *TokenService, logger *zap.Logger) *Middleware {
	return &Middleware{
		tokens: tokens,
		logger: logger,
	}
}

func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			if errors.Is(err, ErrMissingToken) {
				respond.Error(w, r, http.StatusUnauthorized, "authorization header required")
			} else {
				respond.Error(w, r, http.StatusUnauthorized, "invalid authorization format")
			}
			return
		}

		claims, err := m.tokens.Verify(raw)
		if err != nil {
			m.logger.Debug("token rejected", zap.Error(err))
			switch err {
			case ErrExpiredToken:
				respond.Error(w, r, http.StatusUnauthorized, "token expired")
			default:
				respond.Error(w, r, http.StatusUnauthorized, "invalid token")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
	})
}

// bearerToken pulls the raw token out of the Authorization header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", ErrInvalidToken
	}
	return parts[1], nil
}

// WithUserID attaches an authenticated user id to the context.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user id from the request context.
func UserID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(userIDKey).(uuid.UUID)
	return id, ok
}
