package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tradedata/s3sync/internal/config"
	"github.com/tradedata/s3sync/internal/server/handlers/files"
	"github.com/tradedata/s3sync/internal/server/middlewares"
	"github.com/tradedata/s3sync/internal/version"
)

func SetupRoutes(svc *Services, cfg *config.HTTPConfig) (http.Handler, error) {
	r := gin.New()

	filesH := files.New(svc.Backend, svc.Cache, svc.Job, svc.PresignExpiry)

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	r.Use(middlewares.GZIP())
	r.Use(middlewares.SecureHeaders())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middlewares.CORS(cfg.CORSOrigins))
	}

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)

	v1 := r.Group("/v1")
	if cfg.RateLimit != "" {
		limiter, err := middlewares.RateLimiter(cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		v1.Use(limiter)
	}
	v1.Use(middlewares.JWTAuth(svc.Auth))
	{
		v1.GET("/files", filesH.List)
		v1.GET("/url", filesH.PresignURL)
		v1.GET("/status", filesH.Status)
		v1.POST("/sync", filesH.TriggerSync)
	}

	return r, nil
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, "%s %s", version.AppName, version.Short())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Version,
	})
}
