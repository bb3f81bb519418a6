package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
)

const (
	msgSubmitted     = "Code submission successful"
	msgSubmitFailed  = "Failed to submit code for execution"
	msgResultFailed  = "Failed to read execution result"
	msgEngineFailed  = "Failed to query container engine"
	healthCheckLimit = 3 * time.Second
)

type handler struct {
	coordinator Coordinator
	engine      EngineInfo
	checks      map[string]HealthCheck
}

type submitResponse struct {
	TaskID  *string `json:"taskId"`
	Message string  `json:"message"`
	Code    int     `json:"code,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type languageView struct {
	Name             string  `json:"name"`
	Image            string  `json:"image"`
	FileExtension    string  `json:"fileExtension"`
	Compiled         bool    `json:"compiled"`
	MemoryLimitBytes int64   `json:"memoryLimitBytes"`
	CPULimit         float64 `json:"cpuLimit"`
	TimeoutMillis    int64   `json:"timeoutMs"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *handler) execute(c *gin.Context) {
	var req execution.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, submitResponse{
			Message: err.Error(),
			Code:    execution.CodeValidationError,
		})
		return
	}

	taskID, err := h.coordinator.Submit(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		if errors.Is(err, execution.ErrUnsupportedLanguage) {
			c.JSON(http.StatusBadRequest, submitResponse{
				Message: "Unsupported language: " + req.Language,
				Code:    execution.CodeUnsupportedLang,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, submitResponse{
			Message: msgSubmitFailed,
			Code:    execution.BusinessCode(err),
		})
		return
	}

	c.JSON(http.StatusOK, submitResponse{TaskID: &taskID, Message: msgSubmitted})
}

func (h *handler) result(c *gin.Context) {
	outcome, err := h.coordinator.GetResult(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		if errors.Is(err, execution.ErrResultNotAvailable) {
			msg := execution.ErrResultNotAvailable.Error()
			c.JSON(http.StatusBadRequest, execution.Outcome{StatusID: execution.StatusFailure, Stderr: &msg})
			return
		}
		_ = c.Error(err)
		msg := msgResultFailed
		c.JSON(http.StatusInternalServerError, execution.Outcome{StatusID: execution.StatusFailure, Stderr: &msg})
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *handler) languages(c *gin.Context) {
	specs, err := h.coordinator.Languages(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Message: err.Error(), Code: execution.BusinessCode(err)})
		return
	}

	views := make([]languageView, 0, len(specs))
	for _, s := range specs {
		views = append(views, languageView{
			Name:             s.Name,
			Image:            s.Image,
			FileExtension:    s.FileExtension,
			Compiled:         s.CompileCommand != "",
			MemoryLimitBytes: s.MemoryLimitBytes,
			CPULimit:         s.CPULimit,
			TimeoutMillis:    s.Timeout.Milliseconds(),
		})
	}
	c.JSON(http.StatusOK, views)
}

func (h *handler) health(c *gin.Context) {
	if len(h.checks) == 0 {
		c.JSON(http.StatusOK, healthResponse{Status: "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckLimit)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	c.JSON(status, resp)
}

func (h *handler) engineInfo(c *gin.Context) {
	info, err := h.engine.Info(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, errorResponse{Message: msgEngineFailed, Code: execution.CodeExecutionError})
		return
	}
	c.JSON(http.StatusOK, info)
}
