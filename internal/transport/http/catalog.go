package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

type catalogAPI struct {
	service *app.CatalogService
}

type publishRequest struct {
	Published bool `json:"is_published"`
}

func registerCatalogAPI(v1 *echo.Group, authed echo.MiddlewareFunc, svc *app.CatalogService) {
	api := catalogAPI{service: svc}

	v1.GET("/tags", api.tags)

	qg := v1.Group("/quizzes", authed)
	qg.GET("", api.list)
	qg.GET("/:id", api.get)
	qg.POST("", api.create, staffOnly)
	qg.PUT("/:id", api.update, staffOnly)
	qg.PATCH("/:id/publish", api.publish, staffOnly)
	qg.DELETE("/:id", api.delete, staffOnly)
	qg.POST("/:id/questions", api.addQuestion, staffOnly)

	sg := v1.Group("/questions", authed, staffOnly)
	sg.PUT("/:id", api.updateQuestion)
	sg.DELETE("/:id", api.deleteQuestion)
}

func (api *catalogAPI) tags(c echo.Context) error {
	tags, err := api.service.ListTags(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tags)
}

func (api *catalogAPI) list(c echo.Context) error {
	page, err := pageParams(c)
	if err != nil {
		return err
	}
	createdBy, err := queryID(c, "created_by")
	if err != nil {
		return err
	}
	f := domain.QuizFilter{
		Page:               page,
		Difficulty:         domain.Difficulty(c.QueryParam("difficulty")),
		Tag:                strings.TrimSpace(c.QueryParam("tag")),
		Search:             strings.TrimSpace(c.QueryParam("search")),
		CreatedBy:          createdBy,
		IncludeUnpublished: queryBool(c, "include_unpublished"),
	}
	quizzes, meta, err := api.service.ListQuizzes(c.Request().Context(), actorFrom(c), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{Data: quizzes, Meta: meta})
}

func (api *catalogAPI) get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	quiz, err := api.service.GetQuiz(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, quiz)
}

func (api *catalogAPI) create(c echo.Context) error {
	in := new(app.QuizInput)
	if err := bind(c, in); err != nil {
		return err
	}
	quiz, err := api.service.CreateQuiz(c.Request().Context(), actorFrom(c), *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, quiz)
}

func (api *catalogAPI) update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.QuizInput)
	if err := bind(c, in); err != nil {
		return err
	}
	quiz, err := api.service.UpdateQuiz(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, quiz)
}

func (api *catalogAPI) publish(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(publishRequest)
	if err := bind(c, in); err != nil {
		return err
	}
	quiz, err := api.service.SetPublished(c.Request().Context(), actorFrom(c), id, in.Published)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, quiz)
}

func (api *catalogAPI) delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := api.service.DeleteQuiz(c.Request().Context(), actorFrom(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (api *catalogAPI) addQuestion(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.QuestionInput)
	if err := bind(c, in); err != nil {
		return err
	}
	q, err := api.service.AddQuestion(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, q)
}

func (api *catalogAPI) updateQuestion(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.QuestionInput)
	if err := bind(c, in); err != nil {
		return err
	}
	q, err := api.service.UpdateQuestion(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, q)
}

func (api *catalogAPI) deleteQuestion(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := api.service.DeleteQuestion(c.Request().Context(), actorFrom(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
