package routes

import (
	"net/http"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"

	"github.com/labstack/echo/v4"
)

func GetBreakersHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, appOf(c).Trism.Breakers())
}

func GetBreakerHandler(c echo.Context) error {
	type getBreakerParams struct {
		SourceID string `param:"source" validate:"required"`
	}

	params := new(getBreakerParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	state, ok := appOf(c).Trism.Breaker(params.SourceID)
	if !ok {
		return notFound(c, "Source")
	}
	return c.JSON(http.StatusOK, state)
}

func EvaluateHandler(c echo.Context) error {
	type evaluateParams struct {
		SourceID string `json:"source_id" validate:"required"`
		Content  string `json:"content" validate:"required"`
	}

	params := new(evaluateParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	return c.JSON(http.StatusOK, appOf(c).Trism.Evaluate(params.SourceID, params.Content))
}

func ResetTrismHandler(c echo.Context) error {
	type resetParams struct {
		SourceIDs []string `json:"source_ids"`
	}

	params := new(resetParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}

	appOf(c).Trism.Reset(params.SourceIDs...)
	logger.Info("[Server] Trust state reset", "sources", params.SourceIDs)

	return c.NoContent(http.StatusNoContent)
}
