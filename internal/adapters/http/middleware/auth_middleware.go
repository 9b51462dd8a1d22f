package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type Mode string

const (
	ModeNone    Mode = "none"
	ModeAPIKey  Mode = "api_key"
	ModeCognito Mode = "cognito"
)

const APIKeyHeader = "X-Api-Key"

func ParseAuthMode(raw string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(raw)))
	switch mode {
	case "":
		return ModeNone, nil
	case ModeNone, ModeAPIKey, ModeCognito:
		return mode, nil
	default:
		return "", errors.New("invalid auth mode")
	}
}

// AuthMiddleware selects the authentication scheme for every route except the
// health and metrics probes.
func AuthMiddleware(mode Mode, apiKey string, cognito echo.MiddlewareFunc) (echo.MiddlewareFunc, error) {
	switch mode {
	case ModeNone:
	case ModeAPIKey:
		if apiKey == "" {
			return nil, errors.New("api key is required when AUTH_MODE=api_key")
		}
	case ModeCognito:
		if cognito == nil {
			return nil, errors.New("cognito middleware is required when AUTH_MODE=cognito")
		}
	default:
		return nil, errors.New("invalid auth mode")
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isProbe(c.Request().URL.Path) {
				return next(c)
			}
			switch mode {
			case ModeAPIKey:
				got := c.Request().Header.Get(APIKeyHeader)
				if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
					return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
				}
				return next(c)
			case ModeCognito:
				return cognito(next)(c)
			default:
				return next(c)
			}
		}
	}, nil
}

func isProbe(path string) bool {
	return path == "/health" || path == "/metrics"
}
