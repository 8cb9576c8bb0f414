package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/letsspeak/core/schedule"
)

// actorMiddleware turns the claims set by the JWT middleware into the request's schedule.Actor.
func actorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		ctx.Set(contextActorKey, schedule.ActorFromRole(claims.Role, claims.Subject, claims.TrainerID))
		return next(ctx)
	}
}
