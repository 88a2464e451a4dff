package routes

import (
	"net/http"

	"github.com/Meugenn/knowledge-graph-sub001/internal/queue"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"

	"github.com/labstack/echo/v4"
)

func CreatePaperHandler(c echo.Context) error {
	type createPaperParams struct {
		ID            string   `json:"id"`
		Kind          string   `json:"kind" validate:"omitempty,oneof=paper author"`
		Title         string   `json:"title" validate:"required"`
		Abstract      string   `json:"abstract"`
		Year          int      `json:"year" validate:"gte=0"`
		CitationCount int      `json:"citation_count" validate:"gte=0"`
		Fields        []string `json:"fields"`
		Authors       []string `json:"authors"`
		URL           string   `json:"url" validate:"omitempty,url"`
	}

	params := new(createPaperParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	node := queue.SanitizeNode(common.Node{
		ID:            params.ID,
		Kind:          params.Kind,
		Title:         params.Title,
		Abstract:      params.Abstract,
		Year:          params.Year,
		CitationCount: params.CitationCount,
		Fields:        params.Fields,
		Authors:       params.Authors,
		URL:           params.URL,
		Source:        common.SourceSeeded,
	})
	if node.Title == "" {
		return badRequest(c)
	}

	stored := appOf(c).Engine.Ingest(node)
	logger.Info("[Server] Paper ingested", "id", stored.ID, "title", stored.Title)

	return c.JSON(http.StatusCreated, stored)
}
