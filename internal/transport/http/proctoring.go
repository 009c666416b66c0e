package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

type proctoringAPI struct {
	service *app.ProctoringService
}

type violationResponse struct {
	Violation domain.Violation          `json:"violation"`
	Session   domain.ProctoringSession `json:"session"`
}

func registerProctoringAPI(v1 *echo.Group, authed echo.MiddlewareFunc, svc *app.ProctoringService) {
	api := proctoringAPI{service: svc}

	g := v1.Group("/proctoring", authed)
	g.POST("/sessions", api.start)
	g.GET("/sessions/:id", api.get)
	g.POST("/sessions/:id/end", api.end)
	g.POST("/sessions/:id/violations", api.record)
	g.GET("/sessions/:id/violations", api.violations)
	g.POST("/violations/:id/resolve", api.resolve, staffOnly)
	g.GET("/quizzes/:id/settings", api.settings)
	g.PUT("/quizzes/:id/settings", api.updateSettings, staffOnly)
}

func (api *proctoringAPI) start(c echo.Context) error {
	in := new(app.SessionInput)
	if err := bind(c, in); err != nil {
		return err
	}
	s, err := api.service.Start(c.Request().Context(), actorFrom(c), *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, s)
}

func (api *proctoringAPI) get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	s, err := api.service.Get(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (api *proctoringAPI) end(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	s, err := api.service.End(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (api *proctoringAPI) record(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.ViolationInput)
	if err := bind(c, in); err != nil {
		return err
	}
	v, s, err := api.service.RecordViolation(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, violationResponse{Violation: v, Session: s})
}

func (api *proctoringAPI) violations(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	list, err := api.service.Violations(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (api *proctoringAPI) resolve(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.ResolveInput)
	if err := bind(c, in); err != nil {
		return err
	}
	v, err := api.service.Resolve(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (api *proctoringAPI) settings(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	s, err := api.service.Settings(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (api *proctoringAPI) updateSettings(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.SettingsInput)
	if err := bind(c, in); err != nil {
		return err
	}
	s, err := api.service.UpdateSettings(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}
