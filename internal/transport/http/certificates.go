package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"quiz-platform/internal/app"
)

type certificateAPI struct {
	service *app.CertificateService
}

func registerCertificateAPI(v1 *echo.Group, authed echo.MiddlewareFunc, svc *app.CertificateService) {
	api := certificateAPI{service: svc}

	v1.GET("/certificates/verify/:number", api.verify)
	v1.POST("/quizzes/:id/certificate", api.request, authed)

	g := v1.Group("/certificates", authed)
	g.GET("/mine", api.mine)
	g.GET("/:id", api.get)
}

func (api *certificateAPI) request(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	cert, err := api.service.RequestForQuiz(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cert)
}

func (api *certificateAPI) mine(c echo.Context) error {
	certs, err := api.service.Mine(c.Request().Context(), actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, certs)
}

func (api *certificateAPI) get(c echo.Context) error {
	cert, err := api.service.Get(c.Request().Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cert)
}

// verify is public: anyone holding a certificate number may check it.
func (api *certificateAPI) verify(c echo.Context) error {
	cert, err := api.service.Verify(c.Request().Context(), c.Param("number"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cert)
}
