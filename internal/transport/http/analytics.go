package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"quiz-platform/internal/app"
)

type analyticsAPI struct {
	service *app.AnalyticsService
}

func registerAnalyticsAPI(v1 *echo.Group, authed echo.MiddlewareFunc, svc *app.AnalyticsService) {
	api := analyticsAPI{service: svc}

	g := v1.Group("/analytics", authed)
	g.GET("/me", api.progress)
	g.GET("/users/:id", api.user)
	g.GET("/system", api.system, adminOnly)
	g.GET("/quizzes/:id", api.quiz, staffOnly)
	g.GET("/instructor", api.instructor, staffOnly)
	g.GET("/courses/:id", api.course, staffOnly)
	g.POST("/events", api.track)
}

func (api *analyticsAPI) progress(c echo.Context) error {
	p, err := api.service.Progress(c.Request().Context(), actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (api *analyticsAPI) user(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	stats, err := api.service.UserStats(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (api *analyticsAPI) system(c echo.Context) error {
	stats, err := api.service.System(c.Request().Context(), actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (api *analyticsAPI) quiz(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	stats, err := api.service.Quiz(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (api *analyticsAPI) instructor(c echo.Context) error {
	stats, err := api.service.Instructor(c.Request().Context(), actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (api *analyticsAPI) course(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	stats, err := api.service.Course(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (api *analyticsAPI) track(c echo.Context) error {
	in := new(app.EventInput)
	if err := bind(c, in); err != nil {
		return err
	}
	ev, err := api.service.Track(c.Request().Context(), actorFrom(c), *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ev)
}
