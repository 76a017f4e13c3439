package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

// Logger emits one structured slog line per request. Errors and 5xx carry
// the request id and the gin error chain.
func Logger() gin.HandlerFunc {
	return sloggin.NewWithConfig(slog.Default(), sloggin.Config{
		WithRequestID: true,
		DefaultLevel:  slog.LevelDebug,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
	})
}
