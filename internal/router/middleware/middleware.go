package middleware

import (
	"CommentThreads/internal/auth"
	"CommentThreads/internal/models"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"go.uber.org/zap"
	"net/http"
	"strings"
	"time"
)

const (
	RequestIDHeader = "X-Request-Id"

	loggerKey = "logger"
	actorKey  = "actor"
)

type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// LoggingMiddleware stores a request scoped logger tagged with the request id
// under "logger" and logs every finished request.
func LoggingMiddleware(log *zap.Logger) func(c *ginext.Context) {
	return func(c *ginext.Context) {
		start := time.Now()
		rid := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(RequestIDHeader, rid)

		reqLog := log.With(
			zap.String("request_id", rid),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		c.Set(loggerKey, reqLog)
		c.Next()

		reqLog.Info("Request handled",
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// ActorMiddleware resolves the bearer token into an actor. Requests without
// an Authorization header run as guests; a bad token is rejected.
func ActorMiddleware(tokens TokenParser) func(c *ginext.Context) {
	return func(c *ginext.Context) {
		log := c.MustGet(loggerKey).(*zap.Logger)
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			c.Set(actorKey, auth.Guest(c.ClientIP()))
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			log.Warn("Malformed authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ginext.H{"error": models.KeyAccessDenied})
			return
		}
		claims, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			log.Warn("Failed to parse token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, ginext.H{"error": models.KeyAccessDenied})
			return
		}
		actor, err := claims.Actor(c.ClientIP())
		if err != nil {
			log.Warn("Token carries no usable subject", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, ginext.H{"error": models.KeyAccessDenied})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// Actor returns the actor stored by ActorMiddleware, a guest when absent.
func Actor(c *ginext.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return auth.Guest(c.ClientIP())
}
