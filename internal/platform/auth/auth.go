// Package auth provides JWT authentication for the staff surface of the
// portal. Citizen-facing endpoints are public; everything that mutates
// schedule configuration or appointment status requires a signed staff token.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	// ContextSubject is the echo context key for the authenticated subject.
	ContextSubject = "staff_subject"
	// ContextRoles is the echo context key for the subject's roles.
	ContextRoles = "staff_roles"
)

// Claims are the JWT claims the portal issues and accepts for staff tokens.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Config holds JWT verification settings.
type Config struct {
	Secret string
	Issuer string
}

// JWTMiddleware returns middleware that parses and validates the
// Authorization bearer token and stores subject and roles on the context.
func JWTMiddleware(cfg Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(cfg.Secret), nil
			}, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(ContextSubject, claims.Subject)
			c.Set(ContextRoles, claims.Roles)
			return next(c)
		}
	}
}

// OptionalJWT validates a bearer token when one is present and otherwise
// lets the request through unauthenticated. Citizen endpoints are public;
// staff routes behind RequireRole still reject requests without roles.
func OptionalJWT(cfg Config) echo.MiddlewareFunc {
	jwtMW := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withToken := jwtMW(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" {
				return next(c)
			}
			return withToken(c)
		}
	}
}

// DevAuthMiddleware grants every request admin access. Development mode only.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(ContextSubject, "dev-admin")
			c.Set(ContextRoles, []string{"admin", "staff"})
			return next(c)
		}
	}
}

// RequireRole returns middleware that rejects requests whose subject holds
// none of the given roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			have, _ := c.Get(ContextRoles).([]string)
			for _, r := range have {
				if allowed[r] {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
		}
	}
}

// SignToken issues a staff token. Used by the CLI and tests.
func SignToken(cfg Config, subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}
