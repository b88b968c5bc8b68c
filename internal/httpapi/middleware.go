package httpapi

import (
	"crypto/subtle"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/lo"
)

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"duration", v.Latency,
				"ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "err", v.Error)
			}
			s.logger.Info("HTTP request", fields...)
			return nil
		},
	})
}

// observe records request counts and latency per matched route.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(c.Request().Method, route, c.Response().Status, time.Since(start))
		return err
	}
}

// authenticate checks the bearer token against the configured API token.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if token == "" {
			s.logger.Warn("authentication failed: no token", "ip", c.RealIP(), "path", c.Request().URL.Path)
			return newAPIError(http.StatusUnauthorized, CodeMissingToken,
				"Access token required. Please provide a Bearer token in the Authorization header.",
				map[string]any{"expectedFormat": "Authorization: Bearer your-api-token-here"},
			)
		}
		if s.apiToken == "" {
			s.logger.Error("API_TOKEN is not set")
			return newAPIError(http.StatusInternalServerError, CodeServerConfig,
				"Server authentication not properly configured", nil)
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.apiToken)) != 1 {
			s.logger.Warn("authentication failed: invalid token", "ip", c.RealIP(), "path", c.Request().URL.Path)
			return newAPIError(http.StatusForbidden, CodeInvalidToken, "Invalid access token provided", nil)
		}
		return next(c)
	}
}

// bearerToken returns the credential after the scheme, or "".
func bearerToken(header string) string {
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

// originMatcher accepts origins equal to an entry of allowed, where "*"
// matches any run of characters. Requests without an Origin never reach it.
func originMatcher(allowed []string, logger *log.Logger) func(string) (bool, error) {
	patterns := lo.Map(allowed, func(o string, _ int) *regexp.Regexp {
		quoted := strings.ReplaceAll(regexp.QuoteMeta(o), `\*`, ".*")
		return regexp.MustCompile("^" + quoted + "$")
	})
	return func(origin string) (bool, error) {
		if origin == "" {
			return true, nil
		}
		if lo.ContainsBy(patterns, func(p *regexp.Regexp) bool { return p.MatchString(origin) }) {
			return true, nil
		}
		logger.Warn("CORS blocked origin", "origin", origin, "allowed", allowed)
		return false, nil
	}
}
