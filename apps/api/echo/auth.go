package echoapi

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
)

const (
	contextTokenKey = "claims"
	contextActorKey = "actor"
	audience        = "LetsSpeak"
)

// appJWTConfig is the JWT auth middleware config: HS256 bearer tokens carrying Claims.
func appJWTConfig(secretKey []byte) echojwt.Config {
	return echojwt.Config{
		ContextKey: contextTokenKey,
		ParseTokenFunc: func(_ echo.Context, auth string) (interface{}, error) {
			return parseToken(secretKey, auth)
		},
		ErrorHandler: func(_ echo.Context, err error) error {
			var pErr *echojwt.TokenParsingError
			if errors.As(err, &pErr) {
				return errInvalidToken.WithInternal(err)
			}
			return errMissingToken.WithInternal(err)
		},
	}
}

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	TrainerID string `json:"trainer_id,omitempty"`
}

// NewClaims returns the claims of a user acting with role. trainerID is required for trainers.
func NewClaims(conf *core.Config, userID, role, trainerID string) *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    conf.AppName,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(conf.Server.JWTExpirationDelta)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role:      role,
		TrainerID: trainerID,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(secretKey []byte, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(secretKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func parseToken(secretKey []byte, raw string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func getContextClaims(ctx echo.Context) (*Claims, error) {
	claims, ok := ctx.Get(contextTokenKey).(*Claims)
	if !ok {
		return nil, errors.New("missing jwt claims")
	}
	return claims, nil
}

// contextActor returns the authenticated actor, Anonymous if there is none.
func contextActor(ctx echo.Context) schedule.Actor {
	if actor, ok := ctx.Get(contextActorKey).(schedule.Actor); ok {
		return actor
	}
	return schedule.Anonymous()
}
