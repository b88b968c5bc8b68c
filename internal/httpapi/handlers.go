package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rcliao/memory-server/internal/model"
	"github.com/rcliao/memory-server/internal/service"
)

type memoryRequest struct {
	Text     *string        `json:"text"`
	UserID   string         `json:"userId"`
	Metadata model.Metadata `json:"metadata"`
}

func (r memoryRequest) validate() *APIError {
	if r.Text == nil || strings.TrimSpace(*r.Text) == "" {
		return validationError("text", "Text is required and must be a string", "undefined")
	}
	return nil
}

func (s *Server) userID(candidate string) string {
	if u := strings.TrimSpace(candidate); u != "" {
		return u
	}
	return s.defaultUserID
}

// queryLimit parses the limit query parameter, applying def when absent.
func queryLimit(c echo.Context, def, upper int) (int, *APIError) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > upper {
		return 0, validationError("limit", "Limit must be a number between 1 and "+strconv.Itoa(upper), raw)
	}
	return n, nil
}

func (s *Server) handleRoot(c echo.Context) error {
	endpoints := map[string]string{
		"health":         "GET /api/health",
		"info":           "GET /api/info",
		"saveMemory":     "POST /api/memory/save",
		"getAllMemories": "GET /api/memory/all",
		"searchMemories": "GET /api/memory/search",
		"getMemory":      "GET /api/memory/:id",
		"updateMemory":   "PUT /api/memory/:id",
		"deleteMemory":   "DELETE /api/memory/:id",
	}
	if s.sse {
		endpoints["mcpSSE"] = "GET /sse"
		endpoints["mcpMessage"] = "POST /message"
	}
	return s.ok(c, http.StatusOK, map[string]any{
		"name":           service.Name + " - HTTP API",
		"version":        service.Version,
		"description":    "HTTP API for long term memory storage and retrieval",
		"transport":      s.transport,
		"endpoints":      endpoints,
		"authentication": "Bearer token required for memory operations",
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	h := s.svc.Health(c.Request().Context())
	if h.Healthy() {
		return s.ok(c, http.StatusOK, h)
	}
	details := map[string]any{}
	if h.Error != "" {
		details["error"] = h.Error
	}
	return c.JSON(http.StatusServiceUnavailable, Envelope{
		Success:   false,
		Data:      h,
		Error:     newAPIError(http.StatusServiceUnavailable, CodeUnhealthy, "Service is not healthy", details),
		Timestamp: s.timestamp(),
		RequestID: requestID(c),
	})
}

func (s *Server) handleInfo(c echo.Context) error {
	return s.ok(c, http.StatusOK, s.svc.Info())
}

func (s *Server) handleSave(c echo.Context) error {
	var req memoryRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if apiErr := req.validate(); apiErr != nil {
		return apiErr
	}
	userID := s.userID(req.UserID)

	res, err := s.svc.SaveMemory(c.Request().Context(), *req.Text, userID, req.Metadata)
	if err != nil {
		return err
	}
	return s.ok(c, http.StatusCreated, map[string]any{
		"id":      res.ID,
		"message": res.Message,
		"userId":  userID,
	})
}

func (s *Server) handleGetAll(c echo.Context) error {
	limit, apiErr := queryLimit(c, DefaultListLimit, MaxListLimit)
	if apiErr != nil {
		return apiErr
	}
	userID := s.userID(c.QueryParam("userId"))

	records, err := s.svc.GetAllMemories(c.Request().Context(), userID, limit)
	if err != nil {
		return err
	}
	if records == nil {
		records = []model.Record{}
	}
	return s.ok(c, http.StatusOK, map[string]any{
		"memories": records,
		"count":    len(records),
		"userId":   userID,
		"limit":    limit,
	})
}

func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("query")
	if strings.TrimSpace(query) == "" {
		return validationError("query", "Query is required and must be a string", "undefined")
	}
	limit, apiErr := queryLimit(c, DefaultSearchLimit, MaxSearchLimit)
	if apiErr != nil {
		return apiErr
	}
	userID := s.userID(c.QueryParam("userId"))

	results, err := s.svc.SearchMemories(c.Request().Context(), query, userID, limit)
	if err != nil {
		return err
	}
	return s.ok(c, http.StatusOK, map[string]any{
		"memories": results,
		"count":    len(results),
		"query":    query,
		"userId":   userID,
		"limit":    limit,
	})
}

func (s *Server) handleGet(c echo.Context) error {
	id := c.Param("id")
	userID := s.userID(c.QueryParam("userId"))

	rec, err := s.svc.GetMemory(c.Request().Context(), id, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		return notFound(id, userID)
	}
	return s.ok(c, http.StatusOK, map[string]any{
		"memory": rec,
		"userId": userID,
	})
}

func (s *Server) handleUpdate(c echo.Context) error {
	id := c.Param("id")
	var req memoryRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if apiErr := req.validate(); apiErr != nil {
		return apiErr
	}
	userID := s.userID(req.UserID)

	ok, err := s.svc.UpdateMemory(c.Request().Context(), id, userID, *req.Text, req.Metadata)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(id, userID)
	}
	return s.ok(c, http.StatusOK, map[string]any{
		"id":      id,
		"message": "Memory updated successfully",
		"userId":  userID,
	})
}

func (s *Server) handleDelete(c echo.Context) error {
	id := c.Param("id")
	userID := s.userID(c.QueryParam("userId"))

	ok, err := s.svc.DeleteMemory(c.Request().Context(), id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(id, userID)
	}
	return s.ok(c, http.StatusOK, map[string]any{
		"id":      id,
		"message": "Memory deleted successfully",
		"userId":  userID,
	})
}
