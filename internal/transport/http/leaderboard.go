package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"quiz-platform/internal/app"
)

type leaderboardAPI struct {
	service *app.LeaderboardService
}

func registerLeaderboardAPI(v1 *echo.Group, authed echo.MiddlewareFunc, svc *app.LeaderboardService) {
	api := leaderboardAPI{service: svc}

	g := v1.Group("/quizzes/:id/leaderboard", authed)
	g.GET("", api.top)
	g.GET("/me", api.rank)
}

func (api *leaderboardAPI) top(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	lb, err := api.service.Top(c.Request().Context(), id, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lb)
}

func (api *leaderboardAPI) rank(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	entry, err := api.service.Rank(c.Request().Context(), id, actorFrom(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entry)
}
