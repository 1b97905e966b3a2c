package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AdminHeader carries the shared admin secret.
const AdminHeader = "X-Admin-Secret"

// Middleware admits requests presenting a valid admin bearer token or the
// admin secret header.
func (s *Service) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.Enabled() {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "Admin auth not configured")
		}

		if secret := c.Request().Header.Get(AdminHeader); secret != "" {
			if s.CheckAdminSecret(secret) == nil {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid admin secret")
		}

		token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing or malformed bearer token")
		}

		if err := s.ValidateToken(token); err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}
		return next(c)
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
