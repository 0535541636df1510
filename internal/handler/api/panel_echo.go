package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"MacroPanel/internal/domain/models"
	domrepo "MacroPanel/internal/domain/repository"
	"MacroPanel/internal/service/ratelimit"
	"MacroPanel/internal/usecase"
	xhttp "MacroPanel/pkg/http"
	xlogger "MacroPanel/pkg/logger"
	"MacroPanel/pkg/queue"
)

var errorMappings = []xhttp.ErrorMapping{
	{Target: models.ErrConfig, Code: "ERR_INVALID_CONFIG", Status: http.StatusBadRequest},
	{Target: models.ErrDataShape, Code: "ERR_DATA_SHAPE", Status: http.StatusBadRequest},
	{Target: models.ErrInvariant, Code: "ERR_INVARIANT", Status: http.StatusInternalServerError},
	{Target: models.ErrUnavailable, Code: "ERR_UNAVAILABLE", Status: http.StatusServiceUnavailable},
	{Target: queue.ErrNotFound, Code: "ERR_NOT_FOUND", Status: http.StatusNotFound},
}

// PanelEchoHandler serves the score, split, weight, composite and hedge
// endpoints.
type PanelEchoHandler struct {
	logger     *xlogger.Logger
	scores     *usecase.ScoreUseCase
	jobs       *usecase.ScoreJobs
	splits     *usecase.SplitUseCase
	weights    *usecase.WeightsUseCase
	composites *usecase.CompositeUseCase
	hedges     *usecase.HedgeUseCase
	store      domrepo.PanelStore
	limiter    *ratelimit.Limiter
}

// UseCases groups the operations the handler exposes.
type UseCases struct {
	Scores     *usecase.ScoreUseCase
	Jobs       *usecase.ScoreJobs
	Splits     *usecase.SplitUseCase
	Weights    *usecase.WeightsUseCase
	Composites *usecase.CompositeUseCase
	Hedges     *usecase.HedgeUseCase
}

// NewPanelEchoHandler builds the handler; limiter and store may be nil.
func NewPanelEchoHandler(
	logger *xlogger.Logger,
	uc UseCases,
	store domrepo.PanelStore,
	limiter *ratelimit.Limiter,
) *PanelEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &PanelEchoHandler{
		logger:     logger.With("api"),
		scores:     uc.Scores,
		jobs:       uc.Jobs,
		splits:     uc.Splits,
		weights:    uc.Weights,
		composites: uc.Composites,
		hedges:     uc.Hedges,
		store:      store,
		limiter:    limiter,
	}
}

func (h *PanelEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	var mw []echo.MiddlewareFunc
	if h.limiter != nil {
		mw = append(mw, h.limiter.Middleware())
	}
	g := e.Group("/api/v1", mw...)
	g.POST("/scores", h.Score)
	g.POST("/scores/jobs", h.SubmitScoreJob)
	g.GET("/scores/jobs/:id", h.ScoreJob)
	g.POST("/splits", h.Split)
	g.POST("/weights/cap", h.Cap)
	g.POST("/composites", h.Composite)
	g.POST("/hedge-ratios", h.HedgeRatios)
}

func (h *PanelEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := xhttp.FromError(err, errorMappings...)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.String("path", c.Path()), xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.String("path", c.Path()), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *PanelEchoHandler) Score(c echo.Context) error {
	req := &models.ScoreRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.scores.Score(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "score", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PanelEchoHandler) SubmitScoreJob(c echo.Context) error {
	req := &models.ScoreRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	id, err := h.jobs.Submit(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "submit score job", err)
	}
	return xhttp.AcceptedResponse(c, models.JobResponse{ID: id, State: string(queue.StateQueued)})
}

func (h *PanelEchoHandler) ScoreJob(c echo.Context) error {
	res, err := h.jobs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("job %s not found", c.Param("id")).WithParam("id", c.Param("id")))
		}
		return h.fail(c, "score job", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PanelEchoHandler) Split(c echo.Context) error {
	req := &models.SplitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.splits.Split(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "split", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PanelEchoHandler) Cap(c echo.Context) error {
	req := &models.CapRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.weights.Cap(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "cap weights", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PanelEchoHandler) Composite(c echo.Context) error {
	req := &models.CompositeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.composites.Compose(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "composite", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PanelEchoHandler) HedgeRatios(c echo.Context) error {
	req := &models.HedgeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.hedges.Ratios(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "hedge ratios", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PanelEchoHandler) Health(c echo.Context) error {
	if h.store != nil {
		if err := h.store.Health(c.Request().Context()); err != nil {
			return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"store":  err.Error(),
			})
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

var _ xhttp.Handler = (*PanelEchoHandler)(nil)
