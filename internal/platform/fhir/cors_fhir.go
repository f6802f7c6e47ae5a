package fhir

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds the CORS policy for one route group.
type CORSConfig struct {
	AllowOrigins  []string
	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string
	MaxAge        int // in seconds
	// AlwaysSet emits the headers even when the request has no Origin.
	AlwaysSet bool
}

// functionsAllowHeaders is the header allow-list browser clients of the
// serverless-style functions send.
var functionsAllowHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

// FunctionsCORSConfig is the permissive policy of the /functions/v1 group.
func FunctionsCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: functionsAllowHeaders,
		AlwaysSet:    true,
	}
}

// DefaultFHIRCORSConfig is the policy of the /fhir group.
func DefaultFHIRCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Authorization", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{
			"Location",
			"X-Request-ID",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"Retry-After",
		},
		MaxAge: 3600,
	}
}

// FunctionsCORSMiddleware applies FunctionsCORSConfig.
func FunctionsCORSMiddleware() echo.MiddlewareFunc {
	return CORSMiddleware(FunctionsCORSConfig())
}

// CORSMiddleware sets CORS headers per cfg. Preflight OPTIONS requests are
// answered with 204 No Content without reaching the handler.
func CORSMiddleware(cfg CORSConfig) echo.MiddlewareFunc {
	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get("Origin")
			if origin == "" && !cfg.AlwaysSet {
				return next(c)
			}

			allowOrigin := resolveAllowOrigin(cfg.AllowOrigins, origin)
			if allowOrigin == "" {
				return next(c)
			}

			h := c.Response().Header()
			h.Set("Access-Control-Allow-Origin", allowOrigin)
			if allowOrigin != "*" {
				h.Add("Vary", "Origin")
			}
			if exposeHeaders != "" {
				h.Set("Access-Control-Expose-Headers", exposeHeaders)
			}

			if c.Request().Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", allowMethods)
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				if cfg.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", maxAge)
				}
				return c.NoContent(http.StatusNoContent)
			}

			return next(c)
		}
	}
}

// resolveAllowOrigin returns "*" when the wildcard is configured, the request
// origin when it is listed, and "" otherwise.
func resolveAllowOrigin(allowed []string, origin string) string {
	for _, o := range allowed {
		if o == "*" {
			return "*"
		}
		if origin != "" && o == origin {
			return origin
		}
	}
	return ""
}
