package serverutils

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const userIdLocal = "user_id"

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// ParseUserToken validates an HMAC-signed token and returns its user_id claim.
func ParseUserToken(secret, tokenStr string) (uuid.UUID, error) {
	if tokenStr == "" {
		return uuid.Nil, ErrMissingToken
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	raw, ok := claims["user_id"].(string)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	userId, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userId, nil
}

func bearerToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return authHeader[7:]
	}
	return ""
}

// RequestToken reads the bearer token, falling back to the token query
// parameter that browsers use for websocket handshakes.
func RequestToken(c *fiber.Ctx) string {
	if token := bearerToken(c); token != "" {
		return token
	}
	return c.Query("token")
}

func JwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := RequestToken(ctx)
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}

		userId, err := ParseUserToken(secret, tokenStr)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		ctx.Locals(userIdLocal, userId)
		return ctx.Next()
	}
}

// UserID returns the operator id stored by JwtMiddleware.
func UserID(ctx *fiber.Ctx) (uuid.UUID, error) {
	userId, ok := ctx.Locals(userIdLocal).(uuid.UUID)
	if !ok {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
	}
	return userId, nil
}
