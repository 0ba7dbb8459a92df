package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/certify-go-api/internal/utils"
)

// Locals keys populated by JWTProtected and read by RequireRole and the
// handlers.
const (
	LocalsUserID   = "user_id"
	LocalsUserRole = "user_role"
)

// JWTProtected returns a middleware that validates JWT bearer tokens. Tokens
// are HMAC-signed by the identity service; the subject claim must resolve to
// a user id since every protected route is scoped to the caller.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get("Authorization")
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		userID := subjectUserID(claims)
		if userID == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "token subject missing")
		}
		c.Locals(LocalsUserID, userID)

		if role := roleFromClaims(claims); role != "" {
			c.Locals(LocalsUserRole, role)
		}

		return c.Next()
	}
}

// subjectUserID resolves the caller's user id from the "sub" or "user_id"
// claim, whichever the identity service issued. Returns 0 when neither
// resolves.
func subjectUserID(claims jwt.MapClaims) uint {
	for _, key := range []string{"sub", "user_id"} {
		value, ok := claims[key]
		if !ok {
			continue
		}
		if id, err := parseUserID(value); err == nil {
			return id
		}
	}
	return 0
}

func parseUserID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v < 1 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil || parsed == 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported subject type")
	}
}

// roleFromClaims reads the "role" claim. Tokens carry a single role string;
// a list is tolerated by taking the first non-empty entry.
func roleFromClaims(claims jwt.MapClaims) string {
	switch v := claims["role"].(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				if role := strings.ToLower(strings.TrimSpace(str)); role != "" {
					return role
				}
			}
		}
	}
	return ""
}
