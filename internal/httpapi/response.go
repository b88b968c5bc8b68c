package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rcliao/memory-server/internal/model"
	"github.com/rcliao/memory-server/internal/store"
)

// Error codes carried in the envelope.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeMissingToken   = "MISSING_TOKEN"
	CodeInvalidToken   = "INVALID_TOKEN"
	CodeServerConfig   = "SERVER_CONFIG_ERROR"
	CodeMemoryNotFound = "MEMORY_NOT_FOUND"
	CodeRouteNotFound  = "ROUTE_NOT_FOUND"
	CodeRateLimited    = "RATE_LIMIT_EXCEEDED"
	CodeUnhealthy      = "UNHEALTHY"
	CodeInternal       = "INTERNAL_SERVER_ERROR"
	CodeHTTP           = "HTTP_ERROR"
)

const internalMessage = "An internal server error occurred"

// Envelope wraps every JSON response.
type Envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data"`
	Error     *APIError `json:"error"`
	Timestamp string    `json:"timestamp"`
	RequestID string    `json:"requestId"`
}

// APIError is the error member of an Envelope. Handlers return it as an
// error and the server's error handler renders it with Status.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func newAPIError(status int, code, message string, details any) *APIError {
	if details == nil {
		details = map[string]any{}
	}
	return &APIError{Status: status, Code: code, Message: message, Details: details}
}

func validationError(field, message string, received any) *APIError {
	return newAPIError(http.StatusBadRequest, CodeValidation, message, map[string]any{
		"field":    field,
		"received": received,
	})
}

func notFound(id, userID string) *APIError {
	return newAPIError(http.StatusNotFound, CodeMemoryNotFound,
		"Memory with ID "+id+" not found for user "+userID,
		map[string]any{"memoryId": id, "userId": userID},
	)
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func (s *Server) timestamp() string {
	return model.FormatTime(s.now())
}

func (s *Server) ok(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{
		Success:   true,
		Data:      data,
		Timestamp: s.timestamp(),
		RequestID: requestID(c),
	})
}

func (s *Server) fail(c echo.Context, apiErr *APIError) error {
	return c.JSON(apiErr.Status, Envelope{
		Success:   false,
		Error:     apiErr,
		Timestamp: s.timestamp(),
		RequestID: requestID(c),
	})
}

// handleError renders every error that escapes a handler or middleware.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = s.fromHTTPError(c, httpErr)
	case errors.Is(err, store.ErrInvalidKey):
		apiErr = newAPIError(http.StatusBadRequest, CodeValidation, "Request validation failed",
			map[string]any{"error": err.Error()})
	default:
		apiErr = newAPIError(http.StatusInternalServerError, CodeInternal, internalMessage, nil)
		if !s.production {
			apiErr.Details = map[string]any{"error": err.Error()}
		}
	}

	if apiErr.Status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Request().Method, "path", c.Request().URL.Path, "request_id", requestID(c), "err", err)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(apiErr.Status)
	} else {
		werr = s.fail(c, apiErr)
	}
	if werr != nil {
		s.logger.Error("failed to write error response", "err", werr)
	}
}

func (s *Server) fromHTTPError(c echo.Context, he *echo.HTTPError) *APIError {
	switch he.Code {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		s.logger.Warn("route not found", "method", c.Request().Method, "path", c.Request().URL.Path, "ip", c.RealIP())
		return newAPIError(http.StatusNotFound, CodeRouteNotFound,
			"Route "+c.Request().Method+" "+c.Request().URL.Path+" not found",
			map[string]any{"availableRoutes": availableRoutes},
		)
	case http.StatusBadRequest:
		return newAPIError(http.StatusBadRequest, CodeValidation, "Request validation failed",
			map[string]any{"error": httpMessage(he)})
	}

	if he.Code >= http.StatusInternalServerError {
		apiErr := newAPIError(he.Code, CodeInternal, internalMessage, nil)
		if !s.production {
			apiErr.Details = map[string]any{"error": httpMessage(he)}
		}
		return apiErr
	}
	return newAPIError(he.Code, CodeHTTP, httpMessage(he), nil)
}

func httpMessage(he *echo.HTTPError) string {
	if he.Internal != nil {
		return he.Internal.Error()
	}
	if m, ok := he.Message.(string); ok {
		return m
	}
	return http.StatusText(he.Code)
}
