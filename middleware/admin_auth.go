// Package middleware holds echo middlewares of the admin API.
package middleware

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

// publicPaths are served without a token.
var publicPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// AdminAuth requires "Authorization: Bearer <token>" on every admin route.
// An empty token disables the check.
func AdminAuth(token string) echo.MiddlewareFunc {
	if token == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return echomw.KeyAuthWithConfig(echomw.KeyAuthConfig{
		Skipper: func(c echo.Context) bool {
			return publicPaths[c.Request().URL.Path]
		},
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			log.Debug().Err(err).Str("path", c.Request().URL.Path).Msg("admin request rejected")
			return echo.ErrUnauthorized
		},
	})
}
