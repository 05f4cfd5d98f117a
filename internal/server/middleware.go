package server

import (
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	bearerPrefix       = "Bearer "
	maxRequestIDLength = 128
)

// accessLog tags the request with an id and emits one line once the handler chain finishes.
func (h *httpHandler) accessLog(c *gin.Context) {
	start := time.Now()
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" || len(requestID) > maxRequestIDLength {
		requestID = newRequestID()
	}
	c.Set(requestIDContextKey, requestID)
	c.Header(requestIDHeader, requestID)

	c.Next()

	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("route", route),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(start)),
	}
	if user, ok := currentUser(c); ok {
		fields = append(fields, zap.Uint("user_id", user.ID))
	}
	h.logger.Info("http request", fields...)
}

// identify verifies a bearer token when one is present. Failures leave the request anonymous.
func (h *httpHandler) identify(c *gin.Context) {
	token, present := bearerToken(c.GetHeader("Authorization"))
	if !present {
		c.Next()
		return
	}
	identity, err := h.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.Next()
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

// requireUser rejects anonymous requests and resolves the caller's local user.
func (h *httpHandler) requireUser(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		respondError(c, apperrors.New(apperrors.KindUnauthenticated, "auth.require_user", "missing_identity",
			"Not authenticated", auth.ErrMissingToken))
		c.Abort()
		return
	}
	user, err := h.users.Resolve(c.Request.Context(), identity)
	if err != nil {
		respondError(c, err)
		c.Abort()
		return
	}
	c.Set(userContextKey, user)
	c.Next()
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

func currentIdentity(c *gin.Context) (auth.Identity, bool) {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}

func currentUser(c *gin.Context) (users.User, bool) {
	value, exists := c.Get(userContextKey)
	if !exists {
		return users.User{}, false
	}
	user, ok := value.(users.User)
	return user, ok
}

// requestUser returns the user resolved by requireUser, answering 401 when there is none.
func requestUser(c *gin.Context) (users.User, bool) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, apperrors.New(apperrors.KindUnauthenticated, "auth.require_user", "missing_user", "Not authenticated", nil))
	}
	return user, ok
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
