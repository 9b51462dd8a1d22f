package http

import (
	stdhttp "net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Middleware holds the optional cross-cutting layers; nil entries are skipped.
type Middleware struct {
	XRay           echo.MiddlewareFunc
	Metrics        echo.MiddlewareFunc
	RequestLogger  echo.MiddlewareFunc
	Auth           echo.MiddlewareFunc
	MetricsHandler stdhttp.Handler
}

type Handlers struct {
	Applications *ApplicationsHandler
	Issues       *IssuesHandler
	Extensions   *ExtensionsHandler
}

func newEcho(m Middleware) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewRequestValidator()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	for _, mw := range []echo.MiddlewareFunc{m.XRay, m.Metrics, m.RequestLogger, m.Auth} {
		if mw != nil {
			e.Use(mw)
		}
	}
	return e
}

func NewRouter(h Handlers, m Middleware) *echo.Echo {
	e := newEcho(m)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(stdhttp.StatusOK, map[string]string{"status": "ok"})
	})
	if m.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(m.MetricsHandler))
	}

	apps := e.Group("/applications")
	apps.GET("", h.Applications.List)
	apps.POST("", h.Applications.Create)
	apps.GET("/:applicationId", h.Applications.Get)
	apps.PATCH("/:applicationId", h.Applications.Patch)
	apps.DELETE("/:applicationId", h.Applications.Delete)

	apps.POST("/:applicationId/issues", h.Issues.Create)
	apps.PATCH("/:applicationId/issues/:issueId", h.Issues.Patch)
	apps.DELETE("/:applicationId/issues/:issueId", h.Issues.Delete)

	apps.POST("/:applicationId/extensions", h.Extensions.Create)
	apps.PATCH("/:applicationId/extensions/:extensionId", h.Extensions.Update)

	e.GET("/issues", h.Issues.List)
	return e
}
