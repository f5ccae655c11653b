package server

import (
	"crypto/subtle"
	"net/http"
	"net/netip"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/arqon/siteapi/internal/infrastructure/config"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
)

const bearerPrefix = "Bearer "

// adminGate authorizes admin requests by client IP and a static bearer
// token. The allowlist is parsed on first use.
type adminGate struct {
	cfg         config.AdminConfig
	development bool
	logger      *logger.Logger
	reject      func(reason string)

	once     sync.Once
	allowAll bool
	prefixes []netip.Prefix
}

func newAdminGate(cfg config.AdminConfig, development bool, log *logger.Logger, reject func(string)) *adminGate {
	return &adminGate{
		cfg:         cfg,
		development: development,
		logger:      log.WithComponent("admin_gate"),
		reject:      reject,
	}
}

func (g *adminGate) parse() {
	for _, entry := range g.cfg.AllowedIPList() {
		if entry == "*" {
			g.allowAll = true
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				g.logger.Warnw("Ignoring invalid admin allowlist entry", "entry", entry, "error", err)
				continue
			}
			if prefix.Addr().Is4In6() && prefix.Bits() >= 96 {
				prefix = netip.PrefixFrom(prefix.Addr().Unmap(), prefix.Bits()-96)
			}
			g.prefixes = append(g.prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			g.logger.Warnw("Ignoring invalid admin allowlist entry", "entry", entry, "error", err)
			continue
		}
		addr = addr.Unmap()
		g.prefixes = append(g.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
}

func (g *adminGate) allowed(ip string) bool {
	g.once.Do(g.parse)
	if g.allowAll {
		return true
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range g.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (g *adminGate) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := c.RealIP()
		details := map[string]interface{}{
			"method": c.Request().Method,
			"path":   c.Request().URL.Path,
		}

		if !g.allowed(ip) {
			g.reject("admin_ip")
			g.logger.LogSecurityEvent("admin_ip_denied", ip, details)
			return echo.NewHTTPError(http.StatusForbidden, "Forbidden")
		}

		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if !strings.HasPrefix(header, bearerPrefix) || token == "" {
			g.reject("admin_auth")
			g.logger.LogSecurityEvent("admin_auth_missing", ip, details)
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}

		if g.cfg.Token == "" {
			if !g.development {
				g.logger.Errorw("ADMIN_TOKEN is not configured, refusing admin request", "path", c.Request().URL.Path)
				return echo.NewHTTPError(http.StatusInternalServerError, "Admin authentication is not configured")
			}
			g.logger.Warnw("ADMIN_TOKEN is not configured, admin routes are unreachable", "ip", ip)
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(g.cfg.Token)) != 1 {
			g.reject("admin_auth")
			g.logger.LogSecurityEvent("admin_token_invalid", ip, details)
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}

		return next(c)
	}
}
