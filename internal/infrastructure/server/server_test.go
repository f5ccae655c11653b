package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/config"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
)

const (
	adminToken = "s3cret-admin-token"
	adminIP    = "192.0.2.1"
	outsideIP  = "198.51.100.7"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type fakeNotifier struct {
	mu        sync.Mutex
	verifyErr error
	sent      []entities.ContactSubmission
}

func (f *fakeNotifier) Verify(context.Context) error { return f.verifyErr }

func (f *fakeNotifier) Notify(_ context.Context, sub entities.ContactSubmission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sub)
	return fmt.Sprintf("msg-%d@mail.example.com", len(f.sent)), nil
}

func (f *fakeNotifier) Confirm(context.Context, entities.ContactSubmission) error { return nil }

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testEnv struct {
	srv      *Server
	cfg      *config.Config
	notifier *fakeNotifier
	logs     *observer.ObservedLogs
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		App: config.AppConfig{Name: "siteapi", Version: "1.2.3", Environment: "test"},
		Server: config.ServerConfig{
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			BodyLimit:    "10M",
		},
		Security: config.SecurityConfig{
			CORSAllowedOrigins: "https://arqon.example",
			RateLimitRequests:  1000,
			RateLimitWindow:    15 * time.Minute,
			ContactLimit:       5,
			ContactWindow:      time.Hour,
			EmailLimit:         5,
			EmailWindow:        time.Hour,
		},
		Admin:   config.AdminConfig{Token: adminToken, AllowedIPs: adminIP + ",10.1.0.0/16"},
		Storage: config.StorageConfig{DataDir: filepath.Join(root, "data"), PublicDir: filepath.Join(root, "public")},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config, *fakeNotifier)) *testEnv {
	t.Helper()

	cfg := testConfig(t)
	notifier := &fakeNotifier{}
	for _, m := range mutate {
		m(cfg, notifier)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	srv, err := New(cfg, logger.FromZap(zap.New(core)), WithNotifier(notifier))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return &testEnv{srv: srv, cfg: cfg, notifier: notifier, logs: logs}
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.srv.echo.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path string, body interface{}) *http.Request {
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func adminRequest(method, path string, body interface{}) *http.Request {
	req := jsonRequest(method, path, body)
	req.RemoteAddr = adminIP + ":40000"
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+adminToken)
	return req
}

func contactPayload(email string) map[string]string {
	return map[string]string{
		"name":    "Maria Silva",
		"email":   email,
		"phone":   "(41) 3333-4444",
		"message": "Gostaria de um orçamento para a reforma do escritório.",
	}
}

func contactFrom(ip string, body interface{}) *http.Request {
	req := jsonRequest(http.MethodPost, "/api/contact", body)
	req.RemoteAddr = ip + ":50000"
	return req
}

type envelope struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Error      string            `json:"error"`
	Count      int               `json:"count"`
	RetryAfter int               `json:"retryAfter"`
	Data       json.RawMessage   `json:"data"`
	Errors     []json.RawMessage `json:"errors"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func securityEvents(logs *observer.ObservedLogs, event string) []observer.LoggedEntry {
	return logs.FilterMessage("Security event").FilterField(zap.String("security_event", event)).All()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "test", body["environment"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.NotEmpty(t, body["timestamp"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestContactSubmission(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(contactFrom("203.0.113.5", contactPayload("maria@example.com")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.True(t, body.Success)
	assert.JSONEq(t, `{"messageId":"msg-1@mail.example.com"}`, string(body.Data))
	assert.Equal(t, 1, env.notifier.count())
	assert.Equal(t, "203.0.113.5", env.notifier.sent[0].IP)
}

func TestContactAttackPatternIsBlocked(t *testing.T) {
	env := newTestEnv(t)

	payload := contactPayload("a@b.com'; DROP TABLE users;--")
	rec := env.do(contactFrom("203.0.113.5", payload))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, decode(t, rec).Success)
	assert.Zero(t, env.notifier.count())

	events := securityEvents(env.logs, "attack_pattern_detected")
	require.Len(t, events, 1)
	fields := events[0].ContextMap()
	assert.Equal(t, "body.email", fields["field"])
	assert.Equal(t, "sql_injection", fields["category"])
}

func TestContactAttackSnippetIsTruncated(t *testing.T) {
	env := newTestEnv(t)

	payload := contactPayload("maria@example.com")
	payload["message"] = "<script>alert(1)</script>" + strings.Repeat("x", 500)
	rec := env.do(contactFrom("203.0.113.5", payload))
	require.Equal(t, http.StatusForbidden, rec.Code)

	events := securityEvents(env.logs, "attack_pattern_detected")
	require.Len(t, events, 1)
	snippet, _ := events[0].ContextMap()["snippet"].(string)
	assert.Len(t, []rune(snippet), 100)
	assert.Equal(t, "xss", events[0].ContextMap()["category"])
}

func TestContactQueryIsScanned(t *testing.T) {
	env := newTestEnv(t)

	req := contactFrom("203.0.113.5", contactPayload("maria@example.com"))
	req.URL.RawQuery = "file=../../etc/passwd"
	rec := env.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestContactNestedOperatorKeysAreBlocked(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(contactFrom("203.0.113.5", map[string]interface{}{
		"name":    "Maria Silva",
		"email":   map[string]string{"$ne": ""},
		"message": "Gostaria de um orçamento para a reforma.",
	}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestContactValidationFailure(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(contactFrom("203.0.113.5", map[string]string{
		"name":    "M",
		"email":   "maria",
		"message": "oi",
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode(t, rec)
	assert.False(t, body.Success)
	assert.Len(t, body.Errors, 3)
	assert.Zero(t, env.notifier.count())
}

func TestContactIPRateLimit(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		rec := env.do(contactFrom("203.0.113.9", contactPayload(fmt.Sprintf("cliente%d@example.com", i))))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := env.do(contactFrom("203.0.113.9", contactPayload("outro@example.com")))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode(t, rec)
	assert.False(t, body.Success)
	assert.Greater(t, body.RetryAfter, 0)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 5, env.notifier.count())

	rec = env.do(contactFrom("203.0.113.10", contactPayload("outro@example.com")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestContactEmailRateLimit(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		rec := env.do(contactFrom(fmt.Sprintf("203.0.113.%d", 20+i), contactPayload("maria@example.com")))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := env.do(contactFrom("203.0.113.99", contactPayload("MARIA@example.com")))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode(t, rec)
	assert.Greater(t, body.RetryAfter, 0)
	assert.Equal(t, 5, env.notifier.count())
}

func TestContactTransportFailureHidesDetailInProduction(t *testing.T) {
	cause := errors.New("535 authentication failed for smtp.example.com")

	env := newTestEnv(t, func(cfg *config.Config, n *fakeNotifier) {
		n.verifyErr = cause
	})
	rec := env.do(contactFrom("203.0.113.5", contactPayload("maria@example.com")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.False(t, body.Success)
	assert.NotContains(t, body.Message, "smtp")
	assert.Contains(t, body.Error, "535")

	prod := newTestEnv(t, func(cfg *config.Config, n *fakeNotifier) {
		cfg.App.Environment = "production"
		n.verifyErr = cause
	})
	rec = prod.do(contactFrom("203.0.113.5", contactPayload("maria@example.com")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "535")
	assert.NotContains(t, rec.Body.String(), "smtp")
}

func TestContactHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodGet, "/api/contact/health", nil)).Code)

	down := newTestEnv(t, func(cfg *config.Config, n *fakeNotifier) {
		n.verifyErr = errors.New("dial tcp: i/o timeout")
	})
	assert.Equal(t, http.StatusServiceUnavailable, down.do(httptest.NewRequest(http.MethodGet, "/api/contact/health", nil)).Code)
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example")
	rec := env.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Len(t, securityEvents(env.logs, "cors_rejected"), 1)

	req = httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set(echo.HeaderOrigin, "https://arqon.example")
	rec = env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://arqon.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestAdminRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/admin/projects"},
		{http.MethodPost, "/api/admin/projects"},
		{http.MethodGet, "/api/admin/projects/1"},
		{http.MethodPut, "/api/admin/projects/1"},
		{http.MethodDelete, "/api/admin/projects/1"},
		{http.MethodGet, "/api/admin/articles"},
		{http.MethodPost, "/api/admin/articles"},
		{http.MethodPut, "/api/admin/articles/1"},
		{http.MethodDelete, "/api/admin/articles/1"},
		{http.MethodGet, "/api/admin/unknown"},
	}

	for _, r := range routes {
		for _, auth := range []string{"", "Bearer ", "Basic " + adminToken, "Bearer wrong-token", adminToken} {
			req := jsonRequest(r.method, r.path, map[string]string{"title": "x"})
			req.RemoteAddr = adminIP + ":40000"
			if auth != "" {
				req.Header.Set(echo.HeaderAuthorization, auth)
			}
			rec := env.do(req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s with %q", r.method, r.path, auth)
		}
	}
	assert.NotEmpty(t, securityEvents(env.logs, "admin_token_invalid"))
	assert.NotEmpty(t, securityEvents(env.logs, "admin_auth_missing"))
}

func TestAdminRejectsIPOutsideAllowlist(t *testing.T) {
	env := newTestEnv(t)

	req := adminRequest(http.MethodGet, "/api/admin/projects", nil)
	req.RemoteAddr = outsideIP + ":40000"
	rec := env.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Len(t, securityEvents(env.logs, "admin_ip_denied"), 1)

	req = adminRequest(http.MethodGet, "/api/admin/projects", nil)
	req.RemoteAddr = "10.1.22.3:40000"
	assert.Equal(t, http.StatusOK, env.do(req).Code)

	req = adminRequest(http.MethodGet, "/api/admin/projects", nil)
	req.RemoteAddr = "[::ffff:192.0.2.1]:40000"
	assert.Equal(t, http.StatusOK, env.do(req).Code)
}

func TestAdminWildcardAllowlist(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, _ *fakeNotifier) {
		cfg.Admin.AllowedIPs = "*"
	})

	req := adminRequest(http.MethodGet, "/api/admin/articles", nil)
	req.RemoteAddr = outsideIP + ":40000"
	assert.Equal(t, http.StatusOK, env.do(req).Code)
}

func TestAdminMissingTokenConfig(t *testing.T) {
	prod := newTestEnv(t, func(cfg *config.Config, _ *fakeNotifier) {
		cfg.App.Environment = "production"
		cfg.Admin.Token = ""
	})
	assert.Equal(t, http.StatusInternalServerError, prod.do(adminRequest(http.MethodGet, "/api/admin/projects", nil)).Code)

	dev := newTestEnv(t, func(cfg *config.Config, _ *fakeNotifier) {
		cfg.App.Environment = "development"
		cfg.Admin.Token = ""
	})
	assert.Equal(t, http.StatusUnauthorized, dev.do(adminRequest(http.MethodGet, "/api/admin/projects", nil)).Code)
}

func project(title string) map[string]string {
	return map[string]string{
		"title":       title,
		"category":    "Residencial",
		"location":    "Curitiba, PR",
		"year":        "2024",
		"description": "Projeto estrutural completo",
		"imageUrl":    "https://cdn.example.com/" + strings.ToLower(title) + ".jpg",
	}
}

func createdID(t *testing.T, rec *httptest.ResponseRecorder) int {
	t.Helper()
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p entities.Project
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &p))
	return p.ID
}

func TestAdminProjectLifecycle(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, 1, createdID(t, env.do(adminRequest(http.MethodPost, "/api/admin/projects", project("Aurora")))))
	assert.Equal(t, 2, createdID(t, env.do(adminRequest(http.MethodPost, "/api/admin/projects", project("Boreal")))))

	rec := env.do(adminRequest(http.MethodDelete, "/api/admin/projects/2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, env.do(adminRequest(http.MethodGet, "/api/admin/projects/2", nil)).Code)
	assert.Equal(t, http.StatusNotFound, env.do(adminRequest(http.MethodDelete, "/api/admin/projects/2", nil)).Code)

	assert.Equal(t, 3, createdID(t, env.do(adminRequest(http.MethodPost, "/api/admin/projects", project("Cerrado")))))

	patch := map[string]string{"title": "Aurora Residence"}
	first := env.do(adminRequest(http.MethodPut, "/api/admin/projects/1", patch))
	require.Equal(t, http.StatusOK, first.Code)
	second := env.do(adminRequest(http.MethodPut, "/api/admin/projects/1", patch))
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, string(decode(t, first).Data), string(decode(t, second).Data))

	assert.Equal(t, http.StatusNotFound, env.do(adminRequest(http.MethodPut, "/api/admin/projects/abc", patch)).Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.Equal(t, 2, list.Count)

	var listed []entities.Project
	require.NoError(t, json.Unmarshal(list.Data, &listed))
	assert.Equal(t, "Aurora Residence", listed[0].Title)
	assert.Equal(t, "Curitiba, PR", listed[0].Location)

	raw, err := os.ReadFile(filepath.Join(env.cfg.Storage.DataDir, "projects.json"))
	require.NoError(t, err)
	var onDisk []entities.Project
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, listed, onDisk)
}

func TestAdminCreateProjectMissingFields(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(adminRequest(http.MethodPost, "/api/admin/projects", map[string]string{"title": "Sem dados"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Errors)

	noImage := project("Delta")
	delete(noImage, "imageUrl")
	assert.Equal(t, http.StatusBadRequest, env.do(adminRequest(http.MethodPost, "/api/admin/projects", noImage)).Code)
}

func TestAdminArticleUploadLifecycle(t *testing.T) {
	env := newTestEnv(t)

	var form bytes.Buffer
	w := multipart.NewWriter(&form)
	for k, v := range map[string]string{
		"title":    "Fundações profundas",
		"content":  "Estacas hélice contínua em solo argiloso",
		"author":   "Equipe Técnica",
		"category": "Engenharia",
	} {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("image", "capa.png")
	require.NoError(t, err)
	_, err = part.Write(pngHeader)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/articles", &form)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+adminToken)
	req.RemoteAddr = adminIP + ":40000"
	rec := env.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var article entities.Article
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &article))
	assert.Regexp(t, `^/images/articles/[0-9a-f-]{36}\.png$`, article.ImageURL)
	assert.NotEmpty(t, article.Date)

	served := env.do(httptest.NewRequest(http.MethodGet, article.ImageURL, nil))
	require.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, pngHeader, served.Body.Bytes())

	rec = env.do(adminRequest(http.MethodDelete, fmt.Sprintf("/api/admin/articles/%d", article.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	env.srv.images.Wait()

	_, err = os.Stat(filepath.Join(env.cfg.Storage.PublicDir, filepath.FromSlash(article.ImageURL)))
	assert.True(t, os.IsNotExist(err))
}

func TestParameterPollutionKeepsLastValue(t *testing.T) {
	env := newTestEnv(t)

	var got []string
	h := env.srv.hppGuard(func(c echo.Context) error {
		got = c.QueryParams()["page"]
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/api/projects?page=1&page=2&page=3", nil)
	require.NoError(t, h(env.srv.echo.NewContext(req, httptest.NewRecorder())))
	assert.Equal(t, []string{"3"}, got)
}

func TestErrorShapeForUnknownRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Message)
}

func TestMetricsCountRejections(t *testing.T) {
	env := newTestEnv(t)

	req := adminRequest(http.MethodGet, "/api/admin/projects", nil)
	req.RemoteAddr = outsideIP + ":40000"
	env.do(req)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `security_rejections_total{reason="admin_ip"} 1`)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func multipartContact(t *testing.T, ip string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/contact", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.RemoteAddr = ip + ":50000"
	return req
}

func TestContactMultipartIsScanned(t *testing.T) {
	env := newTestEnv(t)

	payload := contactPayload("maria@example.com")
	payload["message"] = "Preciso de um orcamento'; DROP TABLE users;--"
	rec := env.do(multipartContact(t, "203.0.113.5", payload))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, env.notifier.count())

	events := securityEvents(env.logs, "attack_pattern_detected")
	require.Len(t, events, 1)
	assert.Equal(t, "body.message", events[0].ContextMap()["field"])
}

func TestContactMultipartSubmission(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(multipartContact(t, "203.0.113.5", contactPayload("maria@example.com")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, env.notifier.count())
}

func TestContactRejectsUnscannableBodies(t *testing.T) {
	env := newTestEnv(t)

	bodies := map[string]string{
		echo.MIMEApplicationXML: `<ContactRequest><name>Maria Silva</name><email>maria@example.com</email>` +
			`<message>Preciso de um orcamento'; DROP TABLE users;--</message></ContactRequest>`,
		echo.MIMETextXML:   `<ContactRequest><name>Maria Silva</name></ContactRequest>`,
		echo.MIMETextPlain: "name=Maria Silva",
		"":                 `{"name":"Maria Silva"}`,
	}

	for ctype, body := range bodies {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(body))
		if ctype != "" {
			req.Header.Set(echo.HeaderContentType, ctype)
		}
		req.RemoteAddr = "203.0.113.5:50000"
		rec := env.do(req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code, "content type %q", ctype)
	}
	assert.Zero(t, env.notifier.count())
	assert.Len(t, securityEvents(env.logs, "unsupported_media_type"), len(bodies))
}

func TestRequestsAreLoggedWithRequestID(t *testing.T) {
	env := newTestEnv(t)

	env.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	ok := env.logs.FilterMessage("HTTP request").All()
	require.Len(t, ok, 1)
	fields := ok[0].ContextMap()
	assert.Equal(t, "/api/health", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status_code"])
	assert.NotEmpty(t, fields["request_id"])

	failed := env.logs.FilterMessage("HTTP request failed").All()
	require.Len(t, failed, 1)
	assert.EqualValues(t, http.StatusNotFound, failed[0].ContextMap()["status_code"])
	assert.NotEmpty(t, failed[0].ContextMap()["error"])
	assert.NotEmpty(t, failed[0].ContextMap()["request_id"])
}

func uploadArticle(t *testing.T, env *testEnv) entities.Article {
	t.Helper()

	var form bytes.Buffer
	w := multipart.NewWriter(&form)
	for k, v := range map[string]string{
		"title":    "Lajes protendidas",
		"content":  "Vãos maiores com menos pilares",
		"author":   "Equipe Técnica",
		"category": "Engenharia",
	} {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("image", "laje.png")
	require.NoError(t, err)
	_, err = part.Write(pngHeader)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/articles", &form)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+adminToken)
	req.RemoteAddr = adminIP + ":40000"
	rec := env.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var article entities.Article
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &article))
	return article
}

func TestSharedImageSurvivesUntilLastReferenceIsDeleted(t *testing.T) {
	env := newTestEnv(t)
	article := uploadArticle(t, env)
	imagePath := filepath.Join(env.cfg.Storage.PublicDir, filepath.FromSlash(article.ImageURL))

	shared := project("Mirante")
	shared["imageUrl"] = article.ImageURL
	projectID := createdID(t, env.do(adminRequest(http.MethodPost, "/api/admin/projects", shared)))

	rec := env.do(adminRequest(http.MethodDelete, fmt.Sprintf("/api/admin/articles/%d", article.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	env.srv.images.Wait()
	assert.FileExists(t, imagePath)
	assert.Equal(t, 1, env.logs.FilterMessage("Image still referenced, keeping file").Len())

	rec = env.do(adminRequest(http.MethodPut, fmt.Sprintf("/api/admin/projects/%d", projectID), map[string]string{
		"imageUrl": "https://cdn.example.com/mirante.jpg",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	env.srv.images.Wait()
	assert.NoFileExists(t, imagePath)
}
