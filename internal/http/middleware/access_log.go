package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/domain/principal"
	"github.com/edirooss/firewatch-server/internal/service"
)

// AccessLog records HTTP request/response details with Zap after handling.
// MJPEG responses are logged as "stream" once the viewer leaves; their
// latency is the time the stream stayed open.
func AccessLog(log *zap.Logger, authsvc *service.AuthService) gin.HandlerFunc {
	log = log.Named("access")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		// collect all errors from Gin context
		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		// errors.Join returns nil if errs is empty
		joinedErr := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", c.Writer.Size()),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", latency),
		}
		if id, ok := c.Get(idParamKey); ok {
			key := "camera_id"
			if strings.HasPrefix(route, "/api/zones/") {
				key = "zone_id"
			}
			fields = append(fields, zap.Int64(key, id.(int64)))
		}
		if p := whoAmI(authsvc, c); p != nil {
			fields = append(fields, zap.Dict("auth",
				zap.String("id", p.ID),
				zap.String("role", p.Role.String()),
				zap.String("credential", p.Credential.String()),
			))
		}
		if joinedErr != nil {
			fields = append(fields, zap.Error(joinedErr))
		}

		msg := "request"
		if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "multipart/x-mixed-replace") {
			msg = "stream"
		}

		switch {
		case status >= 500:
			log.Error(msg, fields...)
		case status >= 400:
			log.Warn(msg, fields...)
		default:
			log.Info(msg, fields...)
		}
	}
}

func whoAmI(authsvc *service.AuthService, c *gin.Context) *principal.Principal {
	if authsvc == nil {
		return nil
	}
	return authsvc.WhoAmI(c)
}
