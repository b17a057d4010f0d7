package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/gallerydiscover/api/apierr"
	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/orchestrator"
	"github.com/use-agent/gallerydiscover/scan"
)

// dispatchErrorStatus maps an EngineError's category to the HTTP status
// the teacher's handlers used for the equivalent scrape/batch/crawl
// failures: validation is a 400, everything else a 502 (the engine's own
// problem, not the caller's).
func dispatchErrorStatus(msg string) int {
	if strings.Contains(msg, string(models.CategoryValidation)) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// requestID reads the caller's correlation ID from X-Request-Id, the
// conventional header for this; Dispatch assigns a fresh one when absent.
func requestID(c *gin.Context) string {
	return c.GetHeader("X-Request-Id")
}

func respondDispatchError(c *gin.Context, env orchestrator.Envelope) {
	c.AbortWithStatusJSON(dispatchErrorStatus(env.Error), apierr.New("DISPATCH_FAILED", env.Error))
}

// PostScan returns a handler for POST /api/v1/scan.
func PostScan(s *scan.Scanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req scan.ScanStartRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, apierr.New("BAD_REQUEST", "url is required"))
			return
		}
		env := s.Router().Dispatch(c.Request.Context(), requestID(c), orchestrator.ActionScanStart, req)
		if !env.OK {
			respondDispatchError(c, env)
			return
		}
		c.JSON(http.StatusAccepted, env)
	}
}

// PostScanStop returns a handler for POST /api/v1/scan/:id/stop.
func PostScanStop(s *scan.Scanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		env := s.Router().Dispatch(c.Request.Context(), requestID(c), orchestrator.ActionScanStop, c.Param("id"))
		if !env.OK {
			respondDispatchError(c, env)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// PostPaginationNext returns a handler for POST /api/v1/pagination/:id/next.
func PostPaginationNext(s *scan.Scanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		env := s.Router().Dispatch(c.Request.Context(), requestID(c), orchestrator.ActionPaginationNavigateNext, c.Param("id"))
		if !env.OK {
			respondDispatchError(c, env)
			return
		}
		c.JSON(http.StatusOK, env)
	}
}

// GetPaginationState returns a handler for GET /api/v1/pagination/:id.
func GetPaginationState(s *scan.Scanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		env := s.Router().Dispatch(c.Request.Context(), requestID(c), orchestrator.ActionPaginationGetState, c.Param("id"))
		if !env.OK {
			respondDispatchError(c, env)
			return
		}
		c.JSON(http.StatusOK, env)
	}
}

// PostExport returns a handler for POST /api/v1/scan/:id/export.
func PostExport(s *scan.Scanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Filename string `json:"filename"`
		}
		_ = c.ShouldBindJSON(&body)
		req := scan.ExportDataRequest{ScanID: c.Param("id"), Filename: body.Filename}
		env := s.Router().Dispatch(c.Request.Context(), requestID(c), orchestrator.ActionExportData, req)
		if !env.OK {
			respondDispatchError(c, env)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// PostRetry returns a handler for POST /api/v1/retry.
func PostRetry(s *scan.Scanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			TaskID        string `json:"task_id"`
			OperationName string `json:"operation_name"`
			Category      string `json:"category"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.TaskID == "" || req.OperationName == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, apierr.New("BAD_REQUEST", "task_id and operation_name are required"))
			return
		}
		submitReq := scan.RetrySubmitRequest{
			TaskID:    req.TaskID,
			Operation: models.Operation{Name: req.OperationName},
			Category:  models.ErrorCategory(req.Category),
		}
		env := s.Router().Dispatch(c.Request.Context(), requestID(c), orchestrator.ActionRetrySubmit, submitReq)
		if !env.OK {
			respondDispatchError(c, env)
			return
		}
		c.Status(http.StatusAccepted)
	}
}

// DeleteRetry returns a handler for DELETE /api/v1/retry/:id.
func DeleteRetry(s *scan.Scanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		env := s.Router().Dispatch(c.Request.Context(), requestID(c), orchestrator.ActionRetryCancel, c.Param("id"))
		if !env.OK {
			respondDispatchError(c, env)
			return
		}
		if cancelled, _ := env.Data.(bool); !cancelled {
			c.AbortWithStatusJSON(http.StatusNotFound, apierr.New("NOT_FOUND", "no such retry task"))
			return
		}
		c.Status(http.StatusNoContent)
	}
}
