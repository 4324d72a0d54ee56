package middlewares

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tradedata/s3sync/internal/server/auth"
	"github.com/tradedata/s3sync/internal/server/handlers/api"
)

const (
	bearerPrefix = "Bearer "
	authHeader   = "Authorization"
	// SubjectKey holds the token subject in the gin context
	SubjectKey = "subject"
)

// JWTAuth rejects requests without a valid bearer token. It is a no-op when auth is disabled.
func JWTAuth(authService *auth.AuthService) gin.HandlerFunc {
	if !authService.IsEnabled() {
		slog.Warn("auth middleware disabled")
		return func(ctx *gin.Context) {
			ctx.Next()
		}
	}
	slog.Info("auth middleware enabled")
	return func(ctx *gin.Context) {
		authHeaderValue := ctx.GetHeader(authHeader)
		if authHeaderValue == "" {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeUnauthorized, errors.New("Authorization header is missing"))
			return
		}

		if !strings.HasPrefix(authHeaderValue, bearerPrefix) {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeUnauthorized, errors.New("Authorization header format must be Bearer {token}"))
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeaderValue, bearerPrefix))
		if tokenString == "" {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeUnauthorized, errors.New("token is missing"))
			return
		}

		claims, err := authService.ValidateAccessToken(ctx, tokenString)
		if err != nil {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeUnauthorized, err)
			return
		}

		ctx.Set(SubjectKey, claims.Subject)
		ctx.Next()
	}
}
