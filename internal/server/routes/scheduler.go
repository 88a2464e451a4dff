package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/leaselock"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/republic"

	"github.com/labstack/echo/v4"
)

const sleepTimeout = 30 * time.Second

func GetStatusHandler(c echo.Context) error {
	type getStatusParams struct {
		LogLines int `query:"log_lines" validate:"gte=0,lte=1000"`
	}

	params := new(getStatusParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	return c.JSON(http.StatusOK, appOf(c).Engine.Status(params.LogLines))
}

func GetQueueHandler(c echo.Context) error {
	type getQueueParams struct {
		Caste string `param:"caste" validate:"required,oneof=reasoner investigator pricer"`
	}

	params := new(getQueueParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	caste, _ := republic.ParseCaste(params.Caste)
	return c.JSON(http.StatusOK, appOf(c).Engine.Queue(caste))
}

func GetArtifactsHandler(c echo.Context) error {
	type getArtifactsParams struct {
		Kind string `param:"kind" validate:"required,oneof=hypothesis judgement alert"`
	}

	params := new(getArtifactsParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	engine := appOf(c).Engine
	var res []common.Artifact
	switch params.Kind {
	case common.ArtifactHypothesis:
		res = engine.Hypotheses()
	case common.ArtifactJudgement:
		res = engine.Judgements()
	case common.ArtifactAlert:
		res = engine.Alerts()
	}
	if res == nil {
		res = []common.Artifact{}
	}
	return c.JSON(http.StatusOK, res)
}

func GetMarketsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, appOf(c).Engine.Markets())
}

func AwakenHandler(c echo.Context) error {
	app := appOf(c)
	if err := app.Engine.Awaken(app.BaseContext); err != nil {
		if errors.Is(err, leaselock.ErrBusy) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "Graph is owned by another scheduler"})
		}
		logger.Error("[Server] Awaken failed", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to awaken scheduler"})
	}
	return c.JSON(http.StatusOK, app.Engine.Status(0))
}

func SleepHandler(c echo.Context) error {
	app := appOf(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), sleepTimeout)
	defer cancel()

	if err := app.Engine.Sleep(ctx); err != nil {
		logger.Error("[Server] Sleep failed", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to stop scheduler"})
	}
	return c.JSON(http.StatusOK, app.Engine.Status(0))
}

func PatrolHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, appOf(c).Engine.Patrol())
}
