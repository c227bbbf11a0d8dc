package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
	// NoStorePrefixes are path prefixes whose responses must not be cached,
	// since they carry mailbox content.
	NoStorePrefixes []string
}

func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	if len(cfg.NoStorePrefixes) == 0 {
		cfg.NoStorePrefixes = []string{"/api/"}
	}
	csp := contentSecurityPolicy(cfg.AllowedOrigins)

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "no-referrer")

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Set("Content-Security-Policy", csp)

		path := c.Path()
		for _, prefix := range cfg.NoStorePrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Set(fiber.HeaderCacheControl, "no-store")
				break
			}
		}

		return c.Next()
	}
}

// contentSecurityPolicy allows the inline styles of exported HTML reports
// and websocket connections back to the API.
func contentSecurityPolicy(origins []string) string {
	connect := append([]string{"'self'"}, origins...)
	return strings.Join([]string{
		"default-src 'self'",
		"script-src 'self'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: https:",
		"font-src 'self' data:",
		"connect-src " + strings.Join(connect, " "),
		"frame-ancestors 'none'",
		"base-uri 'self'",
		"form-action 'self'",
	}, "; ")
}
