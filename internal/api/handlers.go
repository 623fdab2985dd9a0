package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RishiKendai/twinscan/internal/config"
	"github.com/RishiKendai/twinscan/internal/export"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/RishiKendai/twinscan/internal/plagiarism"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// CorpusService runs and queries comparisons over stored corpora
type CorpusService interface {
	Compute(ctx context.Context, p plagiarism.ComputeParams) (*models.RunReport, error)
	Status(ctx context.Context, corpusID string) (models.Step, error)
	LatestRun(ctx context.Context, corpusID string) (*models.RunReport, error)
	Matrix(ctx context.Context, corpusID string) (*plagiarism.SimilarityMatrix, error)
	Suspects(ctx context.Context, corpusID string, thresholdPercent float64) ([]plagiarism.SuspectPair, error)
	Ranking(ctx context.Context, corpusID, target string) ([]plagiarism.SimilarityEntry, error)
	Report(ctx context.Context, corpusID, a, b string) ([]byte, error)
}

type SourceCounter interface {
	CountSourcesByCorpusID(ctx context.Context, corpusID string) (int64, error)
}

// Handler holds dependencies for handlers
type Handler struct {
	cfg            *config.Config
	service        CorpusService
	sources        SourceCounter
	status         plagiarism.StatusTracker
	computeSem     chan struct{}
	computeTimeout time.Duration
	running        sync.WaitGroup
}

func NewHandler(
	cfg *config.Config,
	service CorpusService,
	sources SourceCounter,
	status plagiarism.StatusTracker,
) *Handler {
	sem := make(chan struct{}, max(cfg.MaxConcurrentCompute, 1))

	return &Handler{
		cfg:            cfg,
		service:        service,
		sources:        sources,
		status:         status,
		computeSem:     sem,
		computeTimeout: cfg.ComputationTimeout,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

func (h *Handler) Compute(c *gin.Context) {
	var req models.ComputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	params, apiErr := h.computeParams(req)
	if apiErr != nil {
		c.JSON(http.StatusBadRequest, apiErr)
		return
	}

	ctx := c.Request.Context()
	count, err := h.sources.CountSourcesByCorpusID(ctx, req.CorpusID)
	if err != nil {
		log.Error().Err(err).Str("corpusId", req.CorpusID).Msg("Failed to count sources")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to check corpus",
			Code:  "INTERNAL_ERROR",
		})
		return
	}
	if count == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "No source files found for corpusId",
			Code:  "CORPUS_NOT_FOUND",
		})
		return
	}

	select {
	case h.computeSem <- struct{}{}:
	case <-ctx.Done():
		c.JSON(http.StatusRequestTimeout, ErrorResponse{
			Error: "Request cancelled",
			Code:  "REQUEST_TIMEOUT",
		})
		return
	}

	if h.status != nil {
		if err := h.status.UpdateStatus(ctx, req.CorpusID, models.StepInitiated); err != nil {
			log.Warn().Err(err).Str("corpusId", req.CorpusID).Msg("Failed to update initiated status")
		}
	}

	c.JSON(http.StatusAccepted, models.ComputeResponse{
		Step:     models.StepInitiated,
		CorpusID: params.CorpusID,
		RunID:    params.RunID,
	})

	h.running.Add(1)
	go h.processComputation(params)
}

func (h *Handler) processComputation(params plagiarism.ComputeParams) {
	defer h.running.Done()
	defer func() { <-h.computeSem }()

	ctx, cancel := context.WithTimeout(context.Background(), h.computeTimeout)
	defer cancel()

	report, err := h.service.Compute(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("corpusId", params.CorpusID).Str("runId", params.RunID).Msg("Computation failed")
		return
	}

	log.Debug().
		Str("corpusId", params.CorpusID).
		Str("runId", params.RunID).
		Int("suspects", report.SuspectCount).
		Msg("Computation completed successfully")
}

// Wait blocks until every accepted computation has finished
func (h *Handler) Wait() {
	h.running.Wait()
}

func (h *Handler) computeParams(req models.ComputeRequest) (plagiarism.ComputeParams, *ErrorResponse) {
	if strings.TrimSpace(req.CorpusID) == "" {
		return plagiarism.ComputeParams{}, &ErrorResponse{Error: "corpusId is required", Code: "INVALID_CORPUS_ID"}
	}

	mode, err := plagiarism.ParseMode(req.Mode)
	if err != nil {
		return plagiarism.ComputeParams{}, &ErrorResponse{Error: err.Error(), Code: "INVALID_MODE"}
	}
	if mode == plagiarism.OneToMany && req.Target == "" {
		return plagiarism.ComputeParams{}, &ErrorResponse{Error: "target is required for one_to_many", Code: "INVALID_TARGET"}
	}

	threshold := h.cfg.ThresholdPercent
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if err := plagiarism.ValidateThreshold(threshold); err != nil {
		return plagiarism.ComputeParams{}, &ErrorResponse{Error: err.Error(), Code: "INVALID_THRESHOLD"}
	}

	return plagiarism.ComputeParams{
		CorpusID:         req.CorpusID,
		RunID:            plagiarism.NewRunID(),
		Mode:             mode,
		Target:           req.Target,
		ThresholdPercent: threshold,
	}, nil
}

func (h *Handler) Status(c *gin.Context) {
	corpusID := c.Param("corpusId")
	step, err := h.service.Status(c.Request.Context(), corpusID)
	if err != nil {
		internalError(c, err, corpusID, "Failed to read run status")
		return
	}
	run, err := h.service.LatestRun(c.Request.Context(), corpusID)
	if err != nil {
		internalError(c, err, corpusID, "Failed to read latest run")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"corpusId": corpusID,
		"step":     step,
		"lastRun":  run,
	})
}

func (h *Handler) MatrixCSV(c *gin.Context) {
	corpusID := c.Param("corpusId")
	m, err := h.service.Matrix(c.Request.Context(), corpusID)
	if err != nil {
		internalError(c, err, corpusID, "Failed to load matrix")
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", corpusID+".csv"))
	c.Status(http.StatusOK)
	if err := export.WriteMatrixCSV(c.Writer, m); err != nil {
		log.Error().Err(err).Str("corpusId", corpusID).Msg("Failed to write matrix CSV")
	}
}

func (h *Handler) Suspects(c *gin.Context) {
	corpusID := c.Param("corpusId")
	threshold, ok := h.thresholdParam(c)
	if !ok {
		return
	}

	suspects, err := h.service.Suspects(c.Request.Context(), corpusID, threshold)
	if err != nil {
		if errors.Is(err, plagiarism.ErrInvalidThreshold) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_THRESHOLD"})
			return
		}
		internalError(c, err, corpusID, "Failed to classify pairs")
		return
	}

	out := make([]models.SuspectResponse, 0, len(suspects))
	for _, s := range suspects {
		out = append(out, models.SuspectResponse{
			FileA:      s.A,
			FileB:      s.B,
			Similarity: s.Score,
			Percent:    s.Percent(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"corpusId":  corpusID,
		"threshold": threshold,
		"suspects":  out,
	})
}

func (h *Handler) Ranking(c *gin.Context) {
	corpusID := c.Param("corpusId")
	target := c.Query("target")
	if target == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "target is required", Code: "INVALID_TARGET"})
		return
	}
	threshold, ok := h.thresholdParam(c)
	if !ok {
		return
	}

	ranked, err := h.service.Ranking(c.Request.Context(), corpusID, target)
	if err != nil {
		if errors.Is(err, plagiarism.ErrTargetNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "TARGET_NOT_FOUND"})
			return
		}
		internalError(c, err, corpusID, "Failed to rank target")
		return
	}

	out := make([]models.RankingResponse, 0, len(ranked))
	for _, e := range ranked {
		out = append(out, models.RankingResponse{
			File:       e.Other(target),
			Similarity: e.Score,
			Percent:    e.Percent(),
			Label:      plagiarism.Label(e.Score, threshold),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"corpusId": corpusID,
		"target":   target,
		"ranking":  out,
	})
}

func (h *Handler) Report(c *gin.Context) {
	corpusID := c.Param("corpusId")
	a, b := c.Query("a"), c.Query("b")
	if a == "" || b == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "both a and b are required", Code: "INVALID_PAIR"})
		return
	}

	body, err := h.service.Report(c.Request.Context(), corpusID, a, b)
	if err != nil {
		if errors.Is(err, plagiarism.ErrReportNotAvailable) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "REPORT_NOT_AVAILABLE"})
			return
		}
		internalError(c, err, corpusID, "Failed to build report")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", body)
}

// thresholdParam reads ?threshold=, falling back to the configured default.
// It writes the error response itself when the value is unusable.
func (h *Handler) thresholdParam(c *gin.Context) (float64, bool) {
	raw := c.Query("threshold")
	if raw == "" {
		return h.cfg.ThresholdPercent, true
	}
	threshold, err := strconv.ParseFloat(raw, 64)
	if err == nil {
		err = plagiarism.ValidateThreshold(threshold)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid threshold %q", raw),
			Code:  "INVALID_THRESHOLD",
		})
		return 0, false
	}
	return threshold, true
}

func internalError(c *gin.Context, err error, corpusID, msg string) {
	log.Error().Err(err).Str("corpusId", corpusID).Msg(msg)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: msg,
		Code:  "INTERNAL_ERROR",
	})
}
