package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

// TokenMiddleware authenticates API requests with bearer JWTs
type TokenMiddleware struct {
	tokenService TokenService
}

func NewAuthMiddleware(tokenService TokenService) *TokenMiddleware {
	return &TokenMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate validates the Authorization header and stores the resulting
// *kernel.AuthContext in c.Locals.
func (am *TokenMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return ErrUnauthorized()
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return ErrInvalidToken()
		}

		claims, err := am.tokenService.ValidateAccessToken(strings.TrimSpace(parts[1]))
		if err != nil {
			return err
		}

		c.Locals(kernel.AuthContextKey, &kernel.AuthContext{
			ClientID: claims.ClientID,
			Scopes:   claims.Scopes,
		})

		return c.Next()
	}
}

// RequireScope rejects requests whose auth context grants none of scopes
func (am *TokenMiddleware) RequireScope(scopes ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authContext, ok := GetAuthContext(c)
		if !ok {
			return ErrUnauthorized()
		}
		if !authContext.HasAnyScope(scopes...) {
			return ErrInsufficientScope(scopes...)
		}
		return c.Next()
	}
}

// GetAuthContext returns the auth context set by Authenticate
func GetAuthContext(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	authContext, ok := c.Locals(kernel.AuthContextKey).(*kernel.AuthContext)
	if !ok || !authContext.IsValid() {
		return nil, false
	}
	return authContext, true
}
