package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/timmy/csvgen/internal/api/middleware"
	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryStore is the read side of the generation history.
type HistoryStore interface {
	List(ctx context.Context, limit, offset int) ([]domain.GenerationRecord, error)
	GetByJobID(ctx context.Context, jobID string) (*domain.GenerationRecord, error)
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
}

// HistoryHandler serves persisted generation records.
type HistoryHandler struct {
	store HistoryStore
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(store HistoryStore) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// List handles GET /api/history?limit=&offset=. The status counts cover all records.
func (h *HistoryHandler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultHistoryLimit)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	limit = min(limit, maxHistoryLimit)

	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	recs, err := h.store.List(c.Request.Context(), limit, offset)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to list history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
		return
	}

	counts, err := h.store.CountByStatus(c.Request.Context())
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to count history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history":      recs,
		"statusCounts": counts,
		"limit":        limit,
		"offset":       offset,
	})
}

// Get handles GET /api/history/:id.
func (h *HistoryHandler) Get(c *gin.Context) {
	rec, err := h.store.GetByJobID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
