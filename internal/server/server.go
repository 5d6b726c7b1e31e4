// package server exposes the release metadata API over HTTP
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"tonearm/internal/models"
	"tonearm/internal/shared"
)

// JobService is the subset of the job manager the HTTP layer depends on.
type JobService interface {
	Submit(ctx context.Context, query models.Query) (*models.Job, error)
	Poll(ctx context.Context, id string) (*models.Job, error)
	Cancel(ctx context.Context, id string) (*models.Job, error)
}

// Handler serves the release metadata endpoints.
type Handler struct {
	jobs   JobService
	logger *log.Logger
}

// NewHandler builds a handler over a job service. A nil logger falls back to
// the package default.
func NewHandler(jobs JobService, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{jobs: jobs, logger: shared.WithLogger(logger, "component", "server")}
}

// RegisterRoutes attaches the handler's routes to a router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/music/release_metadata", h.submit)
	rg.GET("/music/release_metadata/:job_id", h.poll)
	rg.DELETE("/music/release_metadata/:job_id", h.cancel)
}

// NewRouter builds the service router with the handler's routes and a
// health endpoint mounted.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h.RegisterRoutes(&router.RouterGroup)
	return router
}

type submitRequest struct {
	Artist  string `json:"artist_name"`
	Release string `json:"release_name"`
	Country string `json:"country_code"`
}

func (h *Handler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	query := models.Query{
		Artist:  strings.TrimSpace(req.Artist),
		Release: strings.TrimSpace(req.Release),
		Country: strings.TrimSpace(req.Country),
	}
	if query.Artist == "" || query.Release == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "artist_name and release_name are required"})
		return
	}

	job, err := h.jobs.Submit(c.Request.Context(), query)
	if err != nil {
		h.writeError(c, err)
		return
	}

	// A freshly accepted job reports "queued"; cache hits come back
	// already terminal and report their real state.
	status := string(job.State)
	if job.State == models.JobPending {
		status = "queued"
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.ID,
		"status": status,
	})
}

func (h *Handler) poll(c *gin.Context) {
	job, err := h.jobs.Poll(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *Handler) cancel(c *gin.Context) {
	job, err := h.jobs.Cancel(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": job.ID,
		"status": string(job.State),
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, shared.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, shared.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, shared.ErrCacheUnavailable):
		h.logger.Error("cache backend unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache unavailable"})
	default:
		h.logger.Error("request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// New builds an [http.Server] for the router bound to addr.
func New(addr string, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
