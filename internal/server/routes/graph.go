package routes

import (
	"net/http"

	"github.com/Meugenn/knowledge-graph-sub001/internal/server/middleware"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/graph"

	"github.com/labstack/echo/v4"
)

func appOf(c echo.Context) *middleware.App {
	return c.(*middleware.AppContext).App
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
}

func notFound(c echo.Context, what string) error {
	return c.JSON(http.StatusNotFound, map[string]string{"error": what + " not found"})
}

func GetGraphHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, appOf(c).Graph.Snapshot())
}

func GetNodesHandler(c echo.Context) error {
	type getNodesParams struct {
		Query string `query:"q"`
		Limit int    `query:"limit" validate:"gte=0,lte=1000"`
	}

	params := new(getNodesParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	g := appOf(c).Graph
	var nodes []common.Node
	if params.Query != "" {
		nodes = g.SearchByText(params.Query)
	} else {
		nodes = g.AllNodes()
	}
	if nodes == nil {
		nodes = []common.Node{}
	}
	if params.Limit > 0 && len(nodes) > params.Limit {
		nodes = nodes[:params.Limit]
	}

	return c.JSON(http.StatusOK, nodes)
}

func GetNodeHandler(c echo.Context) error {
	type getNodeParams struct {
		ID string `param:"id" validate:"required"`
	}

	params := new(getNodeParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	node, ok := appOf(c).Graph.GetNode(params.ID)
	if !ok {
		return notFound(c, "Node")
	}
	return c.JSON(http.StatusOK, node)
}

func GetNeighbourhoodHandler(c echo.Context) error {
	type getNeighbourhoodParams struct {
		ID    string `param:"id" validate:"required"`
		Depth int    `query:"depth" validate:"gte=0,lte=5"`
	}

	params := new(getNeighbourhoodParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	depth := params.Depth
	if c.QueryParam("depth") == "" {
		depth = 1
	}
	return c.JSON(http.StatusOK, appOf(c).Graph.Neighbourhood(params.ID, depth))
}

func GetDensityHandler(c echo.Context) error {
	type getDensityParams struct {
		ID string `param:"id" validate:"required"`
	}

	params := new(getDensityParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	return c.JSON(http.StatusOK, appOf(c).Graph.CausalDensity(params.ID))
}

func GetRingsHandler(c echo.Context) error {
	type getRingsParams struct {
		MinLength int  `query:"min_length" validate:"omitempty,gte=2,lte=8"`
		Unique    bool `query:"unique"`
	}

	params := new(getRingsParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	minLength := params.MinLength
	if minLength == 0 {
		minLength = 3
	}
	rings := appOf(c).Graph.DetectRings(minLength)
	if params.Unique {
		rings = graph.UniqueRings(rings)
	}
	if rings == nil {
		rings = [][]string{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"min_length": minLength,
		"count":      len(rings),
		"rings":      rings,
	})
}
