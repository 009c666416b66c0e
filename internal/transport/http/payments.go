package http

import (
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

// maxNotificationSize bounds webhook bodies.
const maxNotificationSize = 64 << 10

type paymentAPI struct {
	service *app.PaymentService
}

func registerPaymentAPI(v1 *echo.Group, authed echo.MiddlewareFunc, svc *app.PaymentService) {
	api := paymentAPI{service: svc}

	v1.POST("/payments/notifications", api.notification)

	g := v1.Group("/payments", authed)
	g.POST("", api.create)
	g.GET("/history", api.history)
	g.GET("/:id", api.get)
	g.POST("/:id/confirm", api.confirm)
	g.POST("/:id/refund", api.refund, adminOnly)
}

func (api *paymentAPI) create(c echo.Context) error {
	in := new(app.PaymentInput)
	if err := bind(c, in); err != nil {
		return err
	}
	p, err := api.service.Create(c.Request().Context(), actorFrom(c), *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (api *paymentAPI) history(c echo.Context) error {
	list, err := api.service.History(c.Request().Context(), actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (api *paymentAPI) get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	p, err := api.service.Get(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (api *paymentAPI) confirm(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	p, err := api.service.Confirm(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (api *paymentAPI) refund(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	in := new(app.RefundInput)
	if err := bind(c, in); err != nil {
		return err
	}
	p, err := api.service.Refund(c.Request().Context(), actorFrom(c), id, *in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// notification receives gateway callbacks. The raw payload is kept for the audit log.
func (api *paymentAPI) notification(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxNotificationSize))
	if err != nil {
		return errInvalidBody
	}
	var n domain.GatewayNotification
	if err := sonic.Unmarshal(payload, &n); err != nil || n.OrderID == "" {
		return errInvalidBody
	}
	if err := api.service.HandleNotification(c.Request().Context(), n, payload); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
