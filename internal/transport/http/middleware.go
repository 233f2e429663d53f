package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-realtime/internal/auth"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUsername is the context key for storing username.
	ContextKeyUsername = "username"
)

var (
	errMissingAuth = errors.New("missing authorization header")
	errBadAuth     = errors.New("invalid authorization header format")
)

// AuthMiddleware creates a middleware that validates JWT tokens. With a nil
// config every request passes.
func AuthMiddleware(cfg *auth.JWTConfig, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil {
			c.Next()
			return
		}

		claims, err := claimsFromRequest(cfg, c.Request)
		if err != nil {
			logger.Debug().Err(err).Msg("request rejected")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyUsername, claims.Username)

		c.Next()
	}
}

// claimsFromRequest validates the bearer token on r.
func claimsFromRequest(cfg *auth.JWTConfig, r *http.Request) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, errMissingAuth
	}

	// Extract token from "Bearer <token>"
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errBadAuth
	}

	claims, err := auth.ValidateToken(cfg, parts[1])
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	return claims, nil
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
