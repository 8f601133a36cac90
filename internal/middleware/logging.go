// Package middleware holds gin middleware shared by cmd/farced's
// router. Grounded on
// _examples/e2b-dev-infra/packages/api/internal/middleware/logging.go,
// trimmed of the team/auth context this service has no notion of.
package middleware

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sbraitsch/farce/internal/logger"
)

// Fn extracts extra zap fields from a request's gin.Context.
type Fn func(c *gin.Context) []zapcore.Field

// Skipper reports whether a request should be excluded from logging.
type Skipper func(c *gin.Context) bool

// Config controls LoggingMiddleware's behavior.
type Config struct {
	TimeFormat      string
	UTC             bool
	SkipPaths       []string
	SkipPathRegexps []*regexp.Regexp
	Context         Fn
	DefaultLevel    zapcore.Level
	Skipper         Skipper
}

// LoggingMiddleware logs one structured line per request, promoting the
// log level when the response status crosses 400 or 500, and folding
// any gin.Context errors recorded during the request into the line.
func LoggingMiddleware(l logger.Logger, conf Config) gin.HandlerFunc {
	skipPaths := make(map[string]bool, len(conf.SkipPaths))
	for _, path := range conf.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()

		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		c.Next()

		track := true
		if skipPaths[path] || (conf.Skipper != nil && conf.Skipper(c)) {
			track = false
		}
		if track {
			for _, reg := range conf.SkipPathRegexps {
				if reg.MatchString(path) {
					track = false
					break
				}
			}
		}
		if !track {
			return
		}

		end := time.Now()
		latency := end.Sub(start)
		if conf.UTC {
			end = end.UTC()
		}

		status := c.Writer.Status()
		fields := []zapcore.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("user-agent", c.Request.UserAgent()),
			zap.Duration("latency", latency),
		}
		if conf.TimeFormat != "" {
			fields = append(fields, zap.String("time", end.Format(conf.TimeFormat)))
		}
		if conf.Context != nil {
			fields = append(fields, conf.Context(c)...)
		}
		if len(c.Errors) > 0 {
			errs := make([]error, 0, len(c.Errors))
			for _, e := range c.Errors {
				errs = append(errs, e.Err)
			}
			fields = append(fields, zap.Error(errors.Join(errs...)))
		}

		level := conf.DefaultLevel
		if status >= http.StatusInternalServerError {
			level = zapcore.ErrorLevel
		} else if status >= http.StatusBadRequest {
			level = zapcore.WarnLevel
		}

		l.Log(ctx, level, path, fields...)
	}
}
