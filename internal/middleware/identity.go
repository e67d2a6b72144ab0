package middleware

import "github.com/labstack/echo/v4"

// principal names the caller for rate-limit keys and request logs: the
// token subject when JWTAuth ran, otherwise "anon".
func principal(c echo.Context) string {
	if s, ok := c.Get(ctxSubject).(string); ok && s != "" {
		return s
	}
	return "anon"
}
