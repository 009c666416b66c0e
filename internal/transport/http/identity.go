package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

type identityAPI struct {
	service *app.IdentityService
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type loginResponse struct {
	User domain.User `json:"user"`
	app.TokenPair
}

func registerIdentityAPI(v1 *echo.Group, authed echo.MiddlewareFunc, svc *app.IdentityService) {
	api := identityAPI{service: svc}

	ag := v1.Group("/auth")
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)
	ag.POST("/refresh", api.refresh)
	ag.POST("/verify-email", api.verifyEmail)
	ag.POST("/password-reset", api.requestReset)
	ag.POST("/password-reset/confirm", api.confirmReset)
	ag.POST("/change-password", api.changePassword, authed)

	ug := v1.Group("/users", authed)
	ug.GET("/me", api.me)
	ug.PUT("/me", api.updateMe)
	ug.GET("", api.list, adminOnly)
	ug.PATCH("/:id/access", api.updateAccess, adminOnly)
}

func (api *identityAPI) register(c echo.Context) error {
	in := new(app.RegisterInput)
	if err := bind(c, in); err != nil {
		return err
	}
	u, err := api.service.Register(c.Request().Context(), *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (api *identityAPI) login(c echo.Context) error {
	in := new(app.LoginInput)
	if err := bind(c, in); err != nil {
		return err
	}
	u, pair, err := api.service.Login(c.Request().Context(), *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{User: u, TokenPair: pair})
}

func (api *identityAPI) refresh(c echo.Context) error {
	in := new(refreshRequest)
	if err := bind(c, in); err != nil {
		return err
	}
	pair, err := api.service.Refresh(c.Request().Context(), in.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

func (api *identityAPI) verifyEmail(c echo.Context) error {
	in := new(tokenRequest)
	if err := bind(c, in); err != nil {
		return err
	}
	u, err := api.service.VerifyEmail(c.Request().Context(), in.Token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (api *identityAPI) requestReset(c echo.Context) error {
	in := new(resetRequest)
	if err := bind(c, in); err != nil {
		return err
	}
	if err := api.service.RequestPasswordReset(c.Request().Context(), in.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "if the email is registered, a reset link has been sent"})
}

func (api *identityAPI) confirmReset(c echo.Context) error {
	in := new(app.PasswordResetInput)
	if err := bind(c, in); err != nil {
		return err
	}
	if err := api.service.ResetPassword(c.Request().Context(), *in); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (api *identityAPI) changePassword(c echo.Context) error {
	in := new(app.PasswordChangeInput)
	if err := bind(c, in); err != nil {
		return err
	}
	if err := api.service.ChangePassword(c.Request().Context(), actorFrom(c), *in); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (api *identityAPI) me(c echo.Context) error {
	u, err := api.service.Me(c.Request().Context(), actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (api *identityAPI) updateMe(c echo.Context) error {
	in := new(app.ProfileInput)
	if err := bind(c, in); err != nil {
		return err
	}
	u, err := api.service.UpdateProfile(c.Request().Context(), actorFrom(c), *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (api *identityAPI) list(c echo.Context) error {
	page, err := pageParams(c)
	if err != nil {
		return err
	}
	users, meta, err := api.service.ListUsers(c.Request().Context(), actorFrom(c), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{Data: users, Meta: meta})
}

func (api *identityAPI) updateAccess(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.AccessInput)
	if err := bind(c, in); err != nil {
		return err
	}
	u, err := api.service.UpdateAccess(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}
