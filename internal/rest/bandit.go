package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"replyBandit/domain"
	"replyBandit/internal/middleware"
	"replyBandit/pkg/logger"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	BanditHandler struct {
		validate      *validator.Validate
		banditService BanditService
		timeout       time.Duration
	}

	BanditService interface {
		Decide(ctx context.Context, req domain.DecisionRequest) (domain.DecisionRecord, error)
		Explain(ctx context.Context, req domain.DecisionRequest) ([]domain.DebugCandidate, error)
		Feedback(ctx context.Context, fb domain.FeedbackRecord) (domain.FeedbackResult, error)
		Evaluate(ctx context.Context, records []domain.EvaluationRecord, reference *domain.FeatureProfile) (domain.EvaluationReport, error)
		EvaluateLog(ctx context.Context, limit int, reference *domain.FeatureProfile) (domain.EvaluationReport, error)
		Summary(ctx context.Context, limit int) (domain.LogSummary, error)
	}

	MetaRequest struct {
		Length      *int     `json:"length" validate:"required,gte=0"`
		IsQuestion  bool     `json:"is_question"`
		Politeness  float64  `json:"politeness"`
		EmojiCount  int      `json:"emoji_count" validate:"gte=0"`
		SafetyScore *float64 `json:"safety_score,omitempty"`
	}

	CandidateRequest struct {
		Text  string      `json:"text"`
		Style string      `json:"style" validate:"required"`
		Meta  MetaRequest `json:"meta"`
	}

	ExplorationRequest struct {
		Alpha      float64 `json:"alpha" validate:"gte=0"`
		Epsilon    float64 `json:"epsilon" validate:"gte=0,lt=1"`
		PriorScale float64 `json:"prior_scale" validate:"gte=0"`
	}

	DecisionRequest struct {
		TurnID      string              `json:"turn_id" validate:"omitempty,max=128"`
		SessionID   string              `json:"session_id" validate:"omitempty,max=128"`
		History     []string            `json:"history"`
		Utterance   string              `json:"utterance"`
		Candidates  []CandidateRequest  `json:"candidates" validate:"required,min=1,dive"`
		Exploration *ExplorationRequest `json:"exploration,omitempty"`
	}

	FeedbackRequest struct {
		TurnID   string   `json:"turn_id" validate:"required"`
		ArmIndex *int     `json:"arm_index" validate:"required,gte=0"`
		Reward   *float64 `json:"reward" validate:"required"`
	}

	EvaluateRequest struct {
		Records   []domain.EvaluationRecord `json:"records" validate:"required,min=1"`
		Reference *domain.FeatureProfile    `json:"reference,omitempty"`
	}

	EvaluateLogRequest struct {
		Limit     int                    `json:"limit" validate:"gte=0"`
		Reference *domain.FeatureProfile `json:"reference,omitempty"`
	}
)

// writeError renders a service error in the shared error envelope.
func writeError(c echo.Context, err error) error {
	status := middleware.StatusFor(err)
	return c.JSON(status, middleware.ErrorBody(status, err.Error()))
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, middleware.ErrorBody(http.StatusBadRequest, message))
}

func NewBanditHandler(svc BanditService) *BanditHandler {
	return &BanditHandler{
		validate:      validator.New(),
		banditService: svc,
		timeout:       10 * time.Second,
	}
}

func (r DecisionRequest) toDomain() domain.DecisionRequest {
	out := domain.DecisionRequest{
		TurnID:    r.TurnID,
		SessionID: r.SessionID,
		Context: domain.Context{
			History:   r.History,
			Utterance: r.Utterance,
		},
		Candidates: make([]domain.Candidate, len(r.Candidates)),
	}
	for i, c := range r.Candidates {
		out.Candidates[i] = domain.Candidate{
			Text:  c.Text,
			Style: c.Style,
			Meta: domain.StyleMetadata{
				Length:      c.Meta.Length,
				IsQuestion:  c.Meta.IsQuestion,
				Politeness:  c.Meta.Politeness,
				EmojiCount:  c.Meta.EmojiCount,
				SafetyScore: c.Meta.SafetyScore,
			},
		}
	}
	if r.Exploration != nil {
		out.Exploration = &domain.ExplorationConfig{
			Alpha:      r.Exploration.Alpha,
			Epsilon:    r.Exploration.Epsilon,
			PriorScale: r.Exploration.PriorScale,
		}
	}
	return out
}

func (h *BanditHandler) bindDecision(c echo.Context) (domain.DecisionRequest, error) {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return domain.DecisionRequest{}, err
	}
	if err := h.validate.Struct(&req); err != nil {
		return domain.DecisionRequest{}, err
	}
	return req.toDomain(), nil
}

// POST /api/v1/decisions
func (h *BanditHandler) Decide(c echo.Context) error {
	req, err := h.bindDecision(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	rec, err := h.banditService.Decide(ctx, req)
	if err != nil {
		logger.Warn("bandit_decide_failed", "error", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(domain.NewDecisionResponse(rec)))
}

// POST /api/v1/decisions/explain
func (h *BanditHandler) Explain(c echo.Context) error {
	req, err := h.bindDecision(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	debug, err := h.banditService.Explain(ctx, req)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(debug))
}

// POST /api/v1/feedback
func (h *BanditHandler) Feedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	res, err := h.banditService.Feedback(ctx, domain.FeedbackRecord{
		TurnID:     req.TurnID,
		ArmIndex:   *req.ArmIndex,
		Reward:     *req.Reward,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("bandit_feedback_failed", "turn_id", req.TurnID, "error", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(res))
}

// POST /api/v1/evaluations
func (h *BanditHandler) Evaluate(c echo.Context) error {
	var req EvaluateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	rep, err := h.banditService.Evaluate(ctx, req.Records, req.Reference)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(rep))
}

// POST /api/v1/evaluations/log
func (h *BanditHandler) EvaluateLog(c echo.Context) error {
	var req EvaluateLogRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	rep, err := h.banditService.EvaluateLog(ctx, req.Limit, req.Reference)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(rep))
}

// GET /api/v1/summary?limit=500
func (h *BanditHandler) Summary(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "invalid limit")
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	sum, err := h.banditService.Summary(ctx, limit)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(sum))
}
