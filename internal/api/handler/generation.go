package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timmy/csvgen/internal/api/middleware"
	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/service"
)

// GenerationHandler handles job submission, status and download endpoints.
type GenerationHandler struct {
	svc         *service.GenerationService
	fieldTypes  []string
	defaultRows int
}

// NewGenerationHandler creates a new generation handler.
// Parameters:
//   - svc: generation service instance.
//   - fieldTypes: column kinds the generator supports.
//   - defaultRows: row count used when a request omits rowCount.
// Returns:
//   - *GenerationHandler: initialized handler.
func NewGenerationHandler(svc *service.GenerationService, fieldTypes []string, defaultRows int) *GenerationHandler {
	return &GenerationHandler{svc: svc, fieldTypes: fieldTypes, defaultRows: defaultRows}
}

// GenerateRequest is the body of POST /api/generate-csv.
type GenerateRequest struct {
	Fields   []domain.Column `json:"fields"`
	RowCount *int            `json:"rowCount"`
}

// GenerateResponse acknowledges an accepted job.
type GenerateResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// FieldTypes handles GET /api/field-types.
func (h *GenerationHandler) FieldTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"fieldTypes": h.fieldTypes,
		"fallback":   "value_<row>",
	})
}

// Generate handles POST /api/generate-csv.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	rows := h.defaultRows
	if req.RowCount != nil {
		rows = *req.RowCount
	}

	jobID, err := h.svc.Submit(c.Request.Context(), service.SubmitRequest{
		Columns:  req.Fields,
		RowCount: rows,
	})
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": verr.Error(),
				"field": verr.Field,
			})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("Failed to submit generation job")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to start generation: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, GenerateResponse{
		Success: true,
		JobID:   jobID,
		Message: "CSV generation started",
	})
}

// GetJob handles GET /api/jobs/:id.
func (h *GenerationHandler) GetJob(c *gin.Context) {
	job, err := h.svc.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job":            job,
		"processingTime": job.ProcessingTimeMs(),
	})
}

// Download handles GET /api/download/:id.
// Published artifacts redirect to object storage, local ones are streamed.
func (h *GenerationHandler) Download(c *gin.Context) {
	jobID := c.Param("id")
	path, err := h.svc.ArtifactPath(jobID)
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	case errors.Is(err, service.ErrArtifactNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	job, _ := h.svc.Get(jobID)
	if strings.HasPrefix(job.DownloadURL, "http://") || strings.HasPrefix(job.DownloadURL, "https://") {
		c.Redirect(http.StatusFound, job.DownloadURL)
		return
	}

	c.FileAttachment(path, job.FileName)
}

// WorkerStatus handles GET /api/worker-status.
func (h *GenerationHandler) WorkerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.PoolStatus())
}
