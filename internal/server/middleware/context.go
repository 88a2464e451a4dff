package middleware

import (
	"context"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/graph"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/republic"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/trism"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

type App struct {
	Graph  *graph.Store
	Engine *republic.Engine
	Trism  *trism.Layer

	// BaseContext outlives requests; the scheduler loops run on it.
	BaseContext context.Context

	// KeyFunc verifies bearer JWTs. Nil disables JWT auth.
	KeyFunc jwt.Keyfunc

	MasterAPIKey   string
	MasterUserID   string
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	if app.BaseContext == nil {
		app.BaseContext = context.Background()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
