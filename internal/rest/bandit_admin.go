package rest

import (
	"context"
	"net/http"

	"replyBandit/domain"
	"replyBandit/internal/middleware"
	"replyBandit/pkg/logger"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type BanditAdminService interface {
	Arms(ctx context.Context) ([]domain.ArmView, error)
	ResetArm(ctx context.Context, arm string) error
	SaveSnapshot(ctx context.Context) (domain.StoreSnapshot, error)
	Exploration(ctx context.Context) (domain.ExplorationConfig, bool, error)
	SetExploration(ctx context.Context, cfg domain.ExplorationConfig) error
}

type BanditAdminHandler struct {
	validate *validator.Validate
	svc      BanditAdminService
}

func NewBanditAdminHandler(svc BanditAdminService) *BanditAdminHandler {
	return &BanditAdminHandler{
		validate: validator.New(),
		svc:      svc,
	}
}

// GET /api/v1/admin/arms
func (h *BanditAdminHandler) Arms(c echo.Context) error {
	arms, err := h.svc.Arms(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(arms))
}

// POST /api/v1/admin/arms/:arm/reset
func (h *BanditAdminHandler) ResetArm(c echo.Context) error {
	arm := c.Param("arm")
	if err := h.svc.ResetArm(c.Request().Context(), arm); err != nil {
		return writeError(c, err)
	}
	logger.Info("admin_arm_reset", "arm", arm, "by", c.Get("user_id"))
	return c.JSON(http.StatusOK, fres.Response.StatusOK("arm reset"))
}

// POST /api/v1/admin/snapshots
func (h *BanditAdminHandler) SaveSnapshot(c echo.Context) error {
	snap, err := h.svc.SaveSnapshot(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(echo.Map{
		"version_id": snap.VersionID,
		"parent_id":  snap.ParentID,
		"updates":    snap.Updates,
	}))
}

// GET /api/v1/admin/exploration
func (h *BanditAdminHandler) GetExploration(c echo.Context) error {
	cfg, ok, err := h.svc.Exploration(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	if !ok {
		return c.JSON(http.StatusNotFound, middleware.ErrorBody(http.StatusNotFound, "no exploration override stored"))
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(cfg))
}

// PUT /api/v1/admin/exploration
func (h *BanditAdminHandler) PutExploration(c echo.Context) error {
	var body ExplorationRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body: "+err.Error())
	}
	if err := h.validate.Struct(&body); err != nil {
		return badRequest(c, err.Error())
	}

	cfg := domain.ExplorationConfig{
		Alpha:      body.Alpha,
		Epsilon:    body.Epsilon,
		PriorScale: body.PriorScale,
	}
	if err := h.svc.SetExploration(c.Request().Context(), cfg); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(cfg))
}
