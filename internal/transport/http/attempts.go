package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

type attemptAPI struct {
	service *app.AttemptService
}

type validityRequest struct {
	IsValid bool `json:"is_valid"`
}

func registerAttemptAPI(v1 *echo.Group, authed echo.MiddlewareFunc, svc *app.AttemptService) {
	api := attemptAPI{service: svc}

	qg := v1.Group("/quizzes/:id", authed)
	qg.GET("/questions", api.questions)
	qg.POST("/attempts", api.start)
	qg.POST("/submit", api.submitQuiz)
	qg.GET("/attempts", api.forQuiz, staffOnly)

	ag := v1.Group("/attempts", authed)
	ag.GET("/mine", api.mine)
	ag.GET("", api.all, adminOnly)
	ag.GET("/:id", api.get)
	ag.GET("/:id/review", api.review)
	ag.POST("/:id/submit", api.submit)
	ag.POST("/:id/recompute", api.recompute, staffOnly)
	ag.PATCH("/:id/validity", api.validity, adminOnly)

	gg := v1.Group("/grading", authed, staffOnly)
	gg.GET("/pending", api.pending)
	gg.POST("/answers/:id", api.grade)
}

func (api *attemptAPI) questions(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	sheet, err := api.service.Questions(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sheet)
}

func (api *attemptAPI) start(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	sheet, err := api.service.Start(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sheet)
}

func (api *attemptAPI) submitQuiz(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.SubmitInput)
	if err := bind(c, in); err != nil {
		return err
	}
	a, err := api.service.SubmitQuiz(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (api *attemptAPI) submit(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.SubmitInput)
	if err := bind(c, in); err != nil {
		return err
	}
	a, err := api.service.Submit(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (api *attemptAPI) get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := api.service.Get(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (api *attemptAPI) review(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	r, err := api.service.Review(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (api *attemptAPI) mine(c echo.Context) error {
	f, err := attemptFilter(c)
	if err != nil {
		return err
	}
	list, meta, err := api.service.Mine(c.Request().Context(), actorFrom(c), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{Data: list, Meta: meta})
}

func (api *attemptAPI) forQuiz(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	f, err := attemptFilter(c)
	if err != nil {
		return err
	}
	list, meta, err := api.service.ForQuiz(c.Request().Context(), actorFrom(c), id, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{Data: list, Meta: meta})
}

func (api *attemptAPI) all(c echo.Context) error {
	f, err := attemptFilter(c)
	if err != nil {
		return err
	}
	if f.UserID, err = queryID(c, "user_id"); err != nil {
		return err
	}
	list, meta, err := api.service.All(c.Request().Context(), actorFrom(c), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{Data: list, Meta: meta})
}

func (api *attemptAPI) pending(c echo.Context) error {
	quizID, err := queryID(c, "quiz_id")
	if err != nil {
		return err
	}
	list, err := api.service.Pending(c.Request().Context(), actorFrom(c), quizID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (api *attemptAPI) grade(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(domain.ManualGrade)
	if err := bind(c, in); err != nil {
		return err
	}
	a, err := api.service.Grade(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (api *attemptAPI) recompute(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := api.service.Recompute(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (api *attemptAPI) validity(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(validityRequest)
	if err := bind(c, in); err != nil {
		return err
	}
	a, err := api.service.SetValidity(c.Request().Context(), actorFrom(c), id, in.IsValid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func attemptFilter(c echo.Context) (domain.AttemptFilter, error) {
	page, err := pageParams(c)
	if err != nil {
		return domain.AttemptFilter{}, err
	}
	quizID, err := queryID(c, "quiz_id")
	if err != nil {
		return domain.AttemptFilter{}, err
	}
	return domain.AttemptFilter{
		Page:      page,
		QuizID:    quizID,
		Status:    domain.AttemptStatus(c.QueryParam("status")),
		OnlyValid: queryBool(c, "only_valid"),
	}, nil
}
