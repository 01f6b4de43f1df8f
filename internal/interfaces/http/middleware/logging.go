package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// Logger routes gin's access log through the structured logger. The
// level follows the response: server errors log at error, client
// errors at warn, everything else at debug so routine polls stay out
// of production logs.
func Logger(log logger.Interface) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		args := []any{
			"method", param.Method,
			"path", param.Path,
			"status", param.StatusCode,
			"latency", param.Latency,
			"client_ip", param.ClientIP,
			"user_agent", param.Request.UserAgent(),
		}

		if param.ErrorMessage != "" {
			args = append(args, "error", param.ErrorMessage)
		}

		switch {
		case param.StatusCode >= 500:
			log.Errorw("HTTP request completed", args...)
		case param.StatusCode >= 400:
			log.Warnw("HTTP request completed", args...)
		default:
			log.Debugw("HTTP request completed", args...)
		}

		return ""
	})
}
