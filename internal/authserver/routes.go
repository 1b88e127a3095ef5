package authserver

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"
)

func SetupRoutes(h *Handler) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	httpLogger := slog.Default().WithGroup("http")
	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
		Filters: []slogGin.Filter{
			slogGin.IgnorePath("/healthz"),
		},
	}))
	r.Use(gin.Recovery())
	r.Use(secureHeaders())

	r.GET("/healthz", HealthHandler)
	r.GET("/grant", h.Grant)
	r.GET("/code", rateLimiter(CodeRate), h.Code)

	return r.Handler()
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{"status": "ok"})
}
