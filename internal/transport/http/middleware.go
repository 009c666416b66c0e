package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"quiz-platform/internal/app"
	"quiz-platform/internal/auth"
	"quiz-platform/internal/domain"
)

const contextActorKey = "actor"

// TokenParser validates access tokens.
type TokenParser interface {
	Parse(token string) (auth.Claims, error)
}

const (
	bearerLookup = "header:" + echo.HeaderAuthorization
	// browsers cannot set headers on websocket handshakes
	socketLookup = bearerLookup + ",query:token"
)

// requireAuth rejects requests without a valid bearer access token.
func requireAuth(tokens TokenParser) echo.MiddlewareFunc {
	return requireAuthFrom(tokens, bearerLookup)
}

func requireAuthFrom(tokens TokenParser, lookup string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: lookup,
		Validator: actorValidator(tokens),
		ErrorHandler: func(error, echo.Context) error {
			return domain.ErrUnauthenticated
		},
	})
}

// optionalAuth sets the actor when a valid token is present and lets anonymous requests through.
func optionalAuth(tokens TokenParser) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Validator:              actorValidator(tokens),
		ErrorHandler:           func(error, echo.Context) error { return nil },
		ContinueOnIgnoredError: true,
	})
}

func actorValidator(tokens TokenParser) middleware.KeyAuthValidator {
	return func(key string, c echo.Context) (bool, error) {
		claims, err := tokens.Parse(key)
		if err != nil {
			return false, nil
		}
		id, err := claims.UserID()
		if err != nil {
			return false, nil
		}
		c.Set(contextActorKey, app.Actor{UserID: id, Role: claims.Role})
		return true, nil
	}
}

// staffOnly admits instructors and admins.
func staffOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !actorFrom(c).IsStaff() {
			return domain.ErrForbidden
		}
		return next(c)
	}
}

func adminOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !actorFrom(c).IsAdmin() {
			return domain.ErrForbidden
		}
		return next(c)
	}
}

// actorFrom returns the authenticated actor, or the zero (anonymous) actor.
func actorFrom(c echo.Context) app.Actor {
	if a, ok := c.Get(contextActorKey).(app.Actor); ok {
		return a
	}
	return app.Actor{}
}
