package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	httpHandlers "github.com/arqon/siteapi/internal/adapters/http"
	"github.com/arqon/siteapi/internal/infrastructure/ratelimit"
	"github.com/arqon/siteapi/internal/security"
)

// hppGuard keeps only the last value of repeated query parameters
func (s *Server) hppGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if req.URL.RawQuery == "" {
			return next(c)
		}

		query := req.URL.Query()
		polluted := false
		for k, v := range query {
			if len(v) > 1 {
				query[k] = v[len(v)-1:]
				polluted = true
			}
		}
		if polluted {
			req.URL.RawQuery = query.Encode()
			s.logger.Debugw("Collapsed repeated query parameters", "path", req.URL.Path, "ip", c.RealIP())
		}
		return next(c)
	}
}

// originGuard rejects cross-origin requests from origins outside allowed.
// Requests without an Origin header pass.
func (s *Server) originGuard(allowed []string) echo.MiddlewareFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
		}
		set[strings.TrimSuffix(o, "/")] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if origin == "" {
				return next(c)
			}
			if _, ok := set[origin]; ok {
				return next(c)
			}

			s.reject("cors")
			s.logger.LogSecurityEvent("cors_rejected", c.RealIP(), map[string]interface{}{
				"origin": security.Snippet(origin),
				"path":   c.Request().URL.Path,
			})
			return echo.NewHTTPError(http.StatusForbidden, "Not allowed by CORS")
		}
	}
}

// contactRateLimit applies the per-IP sliding window of the contact route.
// Counter store failures let the request through.
func (s *Server) contactRateLimit(limiter *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			decision, err := limiter.Allow(c.Request().Context(), ip)
			if err != nil {
				s.logger.Warnw("Contact rate limiter unavailable, allowing request", "error", err, "ip", ip)
				return next(c)
			}

			header := c.Response().Header()
			header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				retryAfter := decision.RetryAfterSeconds()
				header.Set("Retry-After", strconv.Itoa(retryAfter))
				s.reject("contact_rate_limit")
				s.logger.LogSecurityEvent("contact_rate_limited", ip, map[string]interface{}{
					"retry_after": retryAfter,
				})
				return echo.NewHTTPError(http.StatusTooManyRequests, httpHandlers.ErrorResponse{
					Message:    "Muitas tentativas de contato. Tente novamente mais tarde.",
					RetryAfter: retryAfter,
				})
			}
			return next(c)
		}
	}
}

// attackScan rejects requests whose query or body carries a known injection
// pattern, and bodies it cannot inspect with 415. The body is buffered and
// restored for the handler.
func (s *Server) attackScan(scanner *security.Scanner) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if f, ok := scanner.ScanValues("query", c.QueryParams()); ok {
				return s.rejectAttack(c, f)
			}

			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			raw, err := io.ReadAll(req.Body)
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					return he
				}
				return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body").SetInternal(err)
			}
			req.Body = io.NopCloser(bytes.NewReader(raw))

			f, ok, err := scanBody(scanner, req.Header.Get(echo.HeaderContentType), raw)
			if errors.Is(err, errUnscannableBody) {
				s.reject("unsupported_media_type")
				s.logger.LogSecurityEvent("unsupported_media_type", c.RealIP(), map[string]interface{}{
					"content_type": security.Snippet(req.Header.Get(echo.HeaderContentType)),
					"path":         req.URL.Path,
				})
				return echo.ErrUnsupportedMediaType
			}
			if ok {
				return s.rejectAttack(c, f)
			}
			return next(c)
		}
	}
}

// errUnscannableBody marks a body in a format the scanner cannot read
var errUnscannableBody = errors.New("unscannable request body")

// multipartMemory bounds the form values kept in memory while scanning
const multipartMemory = 1 << 20

// scanBody checks every value of a JSON, urlencoded or multipart body. Any
// other non-empty body is reported as errUnscannableBody.
func scanBody(scanner *security.Scanner, contentType string, raw []byte) (security.Finding, bool, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return security.Finding{}, false, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return security.Finding{}, false, errUnscannableBody
	}

	switch mediaType {
	case echo.MIMEApplicationJSON:
		var doc interface{}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return security.Finding{}, false, nil
		}
		f, ok := scanner.ScanJSON("body", doc)
		return f, ok, nil
	case echo.MIMEApplicationForm:
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return security.Finding{}, false, nil
		}
		f, ok := scanner.ScanValues("body", values)
		return f, ok, nil
	case echo.MIMEMultipartForm:
		form, err := multipart.NewReader(bytes.NewReader(raw), params["boundary"]).ReadForm(multipartMemory)
		if err != nil {
			return security.Finding{}, false, nil
		}
		defer form.RemoveAll()

		if f, ok := scanner.ScanValues("body", form.Value); ok {
			return f, true, nil
		}
		names := url.Values{}
		for field, files := range form.File {
			for _, fh := range files {
				names.Add(field, fh.Filename)
			}
		}
		f, ok := scanner.ScanValues("body", names)
		return f, ok, nil
	}
	return security.Finding{}, false, errUnscannableBody
}

func (s *Server) rejectAttack(c echo.Context, f security.Finding) error {
	s.reject("attack_pattern")
	s.logger.LogSecurityEvent("attack_pattern_detected", c.RealIP(), map[string]interface{}{
		"field":    f.Field,
		"category": string(f.Category),
		"snippet":  f.Snippet,
		"path":     c.Request().URL.Path,
	})
	return echo.NewHTTPError(http.StatusForbidden, "Requisição bloqueada por motivos de segurança")
}
