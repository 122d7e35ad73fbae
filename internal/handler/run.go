package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shiptoday/nanochat/internal/repository"
	"github.com/shiptoday/nanochat/internal/service/generator"
)

// RunStatusProvider 提供当前运行的实时进度
type RunStatusProvider interface {
	RunID() string
	Running() bool
	Total() int
	Stats() generator.StatsSnapshot
}

// RunStatus GET /api/run/status 的响应
type RunStatus struct {
	RunID          string         `json:"run_id"`
	Running        bool           `json:"running"`
	Total          int            `json:"total"`
	Accepted       int            `json:"accepted"`
	Rejected       int            `json:"rejected"`
	Pending        int            `json:"pending"`
	RejectedByKind map[string]int `json:"rejected_by_kind"`
}

type RunHandler struct {
	status      RunStatusProvider
	runRepo     repository.RunRepository
	outcomeRepo repository.OutcomeRepository
}

// NewRunHandler runRepo/outcomeRepo 为空时历史查询接口返回 404
func NewRunHandler(status RunStatusProvider, runRepo repository.RunRepository, outcomeRepo repository.OutcomeRepository) *RunHandler {
	return &RunHandler{
		status:      status,
		runRepo:     runRepo,
		outcomeRepo: outcomeRepo,
	}
}

// Status 当前运行进度
func (h *RunHandler) Status(c *gin.Context) {
	snapshot := h.status.Stats()
	total := h.status.Total()
	pending := total - snapshot.Accepted - snapshot.Rejected
	if pending < 0 {
		pending = 0
	}
	c.JSON(http.StatusOK, RunStatus{
		RunID:          h.status.RunID(),
		Running:        h.status.Running(),
		Total:          total,
		Accepted:       snapshot.Accepted,
		Rejected:       snapshot.Rejected,
		Pending:        pending,
		RejectedByKind: snapshot.RejectedByKind,
	})
}

// List 历史运行列表
func (h *RunHandler) List(c *gin.Context) {
	if h.runRepo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run ledger is disabled"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	runs, err := h.runRepo.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

// Get 单次运行详情及拒绝原因分布
func (h *RunHandler) Get(c *gin.Context) {
	if h.runRepo == nil || h.outcomeRepo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run ledger is disabled"})
		return
	}
	runID := c.Param("id")

	run, err := h.runRepo.Get(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	byKind, err := h.outcomeRepo.CountByKind(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":              run,
		"rejected_by_kind": byKind,
	})
}
