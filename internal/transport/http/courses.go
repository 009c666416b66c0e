package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

type courseAPI struct {
	service *app.CourseService
}

func registerCourseAPI(v1 *echo.Group, authed, optional echo.MiddlewareFunc, svc *app.CourseService) {
	api := courseAPI{service: svc}

	pub := v1.Group("/courses", optional)
	pub.GET("", api.list)
	pub.GET("/slug/:slug", api.getBySlug)
	pub.GET("/:id", api.get)
	pub.GET("/:id/ratings", api.ratings)

	cg := v1.Group("/courses", authed)
	cg.GET("/enrollments/mine", api.myEnrollments)
	cg.POST("", api.create, staffOnly)
	cg.PUT("/:id", api.update, staffOnly)
	cg.DELETE("/:id", api.delete, staffOnly)
	cg.POST("/:id/lessons", api.addLesson, staffOnly)
	cg.POST("/:id/enroll", api.enroll)
	cg.POST("/:id/drop", api.drop)
	cg.GET("/:id/progress", api.progress)
	cg.POST("/:id/ratings", api.rate)

	lg := v1.Group("/lessons", authed)
	lg.PUT("/:id", api.updateLesson, staffOnly)
	lg.DELETE("/:id", api.deleteLesson, staffOnly)
	lg.POST("/:id/start", api.startLesson)
	lg.POST("/:id/complete", api.completeLesson)
}

func (api *courseAPI) list(c echo.Context) error {
	page, err := pageParams(c)
	if err != nil {
		return err
	}
	instructor, err := queryID(c, "instructor_id")
	if err != nil {
		return err
	}
	f := domain.CourseFilter{
		Page:         page,
		Level:        domain.CourseLevel(c.QueryParam("level")),
		Search:       strings.TrimSpace(c.QueryParam("search")),
		InstructorID: instructor,
		AllStatuses:  queryBool(c, "all_statuses"),
	}
	courses, meta, err := api.service.ListCourses(c.Request().Context(), actorFrom(c), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{Data: courses, Meta: meta})
}

func (api *courseAPI) get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	course, err := api.service.GetCourse(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, course)
}

func (api *courseAPI) getBySlug(c echo.Context) error {
	course, err := api.service.GetCourseBySlug(c.Request().Context(), actorFrom(c), c.Param("slug"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, course)
}

func (api *courseAPI) create(c echo.Context) error {
	in := new(app.CourseInput)
	if err := bind(c, in); err != nil {
		return err
	}
	course, err := api.service.CreateCourse(c.Request().Context(), actorFrom(c), *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, course)
}

func (api *courseAPI) update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.CourseInput)
	if err := bind(c, in); err != nil {
		return err
	}
	course, err := api.service.UpdateCourse(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, course)
}

func (api *courseAPI) delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := api.service.DeleteCourse(c.Request().Context(), actorFrom(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (api *courseAPI) addLesson(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.LessonInput)
	if err := bind(c, in); err != nil {
		return err
	}
	lesson, err := api.service.AddLesson(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, lesson)
}

func (api *courseAPI) updateLesson(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.LessonInput)
	if err := bind(c, in); err != nil {
		return err
	}
	lesson, err := api.service.UpdateLesson(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lesson)
}

func (api *courseAPI) deleteLesson(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := api.service.DeleteLesson(c.Request().Context(), actorFrom(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (api *courseAPI) enroll(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	e, err := api.service.Enroll(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

func (api *courseAPI) drop(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	e, err := api.service.Drop(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (api *courseAPI) myEnrollments(c echo.Context) error {
	list, err := api.service.MyEnrollments(c.Request().Context(), actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (api *courseAPI) startLesson(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	p, err := api.service.StartLesson(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (api *courseAPI) completeLesson(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	p, err := api.service.CompleteLesson(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (api *courseAPI) progress(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	p, err := api.service.Progress(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (api *courseAPI) rate(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.RatingInput)
	if err := bind(c, in); err != nil {
		return err
	}
	r, err := api.service.Rate(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (api *courseAPI) ratings(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	list, err := api.service.Ratings(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}
