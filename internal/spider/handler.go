package spider

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Registry *Registry
	Manager  *Manager
}

func NewHandler(registry *Registry, manager *Manager) *Handler {
	return &Handler{Registry: registry, Manager: manager}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.create)              // POST /jobs
	rg.GET("", h.list)                 // GET  /jobs
	rg.POST("/sweep", h.sweep)         // POST /jobs/sweep
	rg.POST("/:name/start", h.start)   // POST /jobs/:name/start
	rg.POST("/:name/pause", h.pause)   // POST /jobs/:name/pause
	rg.POST("/:name/resume", h.resume) // POST /jobs/:name/resume
	rg.POST("/:name/expire", h.expire) // POST /jobs/:name/expire
}

type createJobRequest struct {
	Name            string   `json:"name" binding:"required"`
	SubjectIDs      []string `json:"subject_ids" binding:"required"`
	DownloadToLocal bool     `json:"download_to_local"`
}

func (h *Handler) create(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and subject_ids are required"})
		return
	}
	if strings.TrimSpace(req.Name) == "" || len(req.SubjectIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and subject_ids must be non-empty"})
		return
	}

	job, err := h.Registry.Create(c.Request.Context(), req.Name, req.SubjectIDs, req.DownloadToLocal)
	if err != nil {
		if errors.Is(err, ErrDuplicateName) {
			c.JSON(http.StatusConflict, gin.H{"error": "job name already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (h *Handler) list(c *gin.Context) {
	page := parseInt(c.Query("page"), 1)
	perPage := parseInt(c.Query("per_page"), 20)

	jobs, err := h.Registry.List(c.Request.Context(), page, perPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":    jobs.Total,
		"page":     page,
		"per_page": perPage,
		"items":    jobs.Items,
	})
}

func (h *Handler) start(c *gin.Context) {
	name := c.Param("name")
	runID, err := h.Manager.Start(c.Request.Context(), name)
	if err != nil {
		status, msg := transitionError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"name": name, "run_id": runID})
}

func (h *Handler) pause(c *gin.Context) {
	name := c.Param("name")
	if err := h.Registry.Pause(c.Request.Context(), name); err != nil {
		status, msg := transitionError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	// the runner notices the row change at the next subject boundary
	c.JSON(http.StatusOK, gin.H{"name": name, "status": "inactive"})
}

func (h *Handler) resume(c *gin.Context) {
	name := c.Param("name")
	if err := h.Registry.Resume(c.Request.Context(), name); err != nil {
		status, msg := transitionError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	// resuming restarts the runner over the whole id list; the
	// ingestor's idempotence gate makes already-done subjects cheap. A
	// still-draining run just sees the row active again at its next
	// subject boundary.
	runID, err := h.Manager.Start(c.Request.Context(), name)
	if err != nil && !errors.Is(err, ErrAlreadyRunning) {
		status, msg := transitionError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "status": "active", "run_id": runID})
}

func (h *Handler) expire(c *gin.Context) {
	name := c.Param("name")
	if err := h.Registry.Expire(c.Request.Context(), name); err != nil {
		status, msg := transitionError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	h.Manager.Stop(name)
	c.JSON(http.StatusOK, gin.H{"name": name, "status": "expired"})
}

func (h *Handler) sweep(c *gin.Context) {
	removed, err := h.Registry.SweepExpired(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func transitionError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound, "job not found"
	case errors.Is(err, ErrBadTransition):
		return http.StatusConflict, "status does not allow this transition"
	case errors.Is(err, ErrAlreadyRunning):
		return http.StatusConflict, "job already running"
	default:
		return http.StatusInternalServerError, "operation failed"
	}
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
