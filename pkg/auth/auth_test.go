package auth_test

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/jobrunner/pkg/auth"
	"github.com/Abraxas-365/jobrunner/pkg/errx"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

func TestJWT_RoundTrip(t *testing.T) {
	svc := auth.NewJWTService("secret", time.Hour, "")

	token, err := svc.GenerateAccessToken("ops-cli", []string{auth.ScopeJobsRead})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.ClientID != "ops-cli" || len(claims.Scopes) != 1 || claims.Scopes[0] != auth.ScopeJobsRead {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != time.Hour {
		t.Fatalf("unexpected ttl %s", got)
	}
}

func TestJWT_Rejects(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	old := auth.NewJWTService("secret", time.Hour, "").WithClock(func() time.Time { return issued })
	expired, _ := old.GenerateAccessToken("c", nil)

	svc := auth.NewJWTService("secret", time.Hour, "")
	other, _ := auth.NewJWTService("other-secret", time.Hour, "").GenerateAccessToken("c", nil)
	foreign, _ := auth.NewJWTService("secret", time.Hour, "someone-else").GenerateAccessToken("c", nil)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong secret": other,
		"wrong issuer": foreign,
		"garbage":      "not-a-jwt",
	} {
		if _, err := svc.ValidateAccessToken(token); !errx.IsCode(err, auth.CodeTokenValidationFailed) {
			t.Errorf("%s: expected validation failure, got %v", name, err)
		}
	}
}

func newApp(t *testing.T, svc auth.TokenService) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var e *errx.Error
			if errors.As(err, &e) {
				return c.Status(e.HTTPStatus).JSON(fiber.Map{"code": e.Code})
			}
			return fiber.DefaultErrorHandler(c, err)
		},
	})
	mw := auth.NewAuthMiddleware(svc)
	app.Get("/read", mw.Authenticate(), mw.RequireScope(auth.ScopeJobsRead), func(c *fiber.Ctx) error {
		ac, _ := auth.GetAuthContext(c)
		return c.SendString(ac.ClientID.String())
	})
	app.Post("/write", mw.Authenticate(), mw.RequireScope(auth.ScopeJobsWrite), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp.StatusCode
}

func TestMiddleware_Scopes(t *testing.T) {
	svc := auth.NewJWTService("secret", time.Hour, "")
	app := newApp(t, svc)

	reader, _ := svc.GenerateAccessToken("reader", []string{auth.ScopeJobsRead})
	admin, _ := svc.GenerateAccessToken("admin", []string{auth.ScopeAll})
	wildcard, _ := svc.GenerateAccessToken("jobs", []string{"jobs:*"})

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no header", "GET", "/read", "", 401},
		{"not bearer", "GET", "/read", "Basic abc", 401},
		{"bad token", "GET", "/read", "Bearer nope", 401},
		{"reader reads", "GET", "/read", "Bearer " + reader, 200},
		{"reader cannot write", "POST", "/write", "Bearer " + reader, 403},
		{"admin writes", "POST", "/write", "Bearer " + admin, 204},
		{"wildcard writes", "POST", "/write", "Bearer " + wildcard, 204},
	}
	for _, tc := range cases {
		if got := do(t, app, tc.method, tc.path, tc.token); got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestGetAuthContext_Missing(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		if _, ok := auth.GetAuthContext(c); ok {
			return c.SendStatus(500)
		}
		c.Locals(kernel.AuthContextKey, &kernel.AuthContext{})
		if _, ok := auth.GetAuthContext(c); ok {
			return c.SendStatus(500)
		}
		return c.SendStatus(200)
	})
	if got := do(t, app, "GET", "/", ""); got != 200 {
		t.Fatalf("expected 200, got %d", got)
	}
}
