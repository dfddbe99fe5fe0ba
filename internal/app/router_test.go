package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadeprojects/crm221/internal/app"
	_ "github.com/cascadeprojects/crm221/testing"
)

func newRuntime(t *testing.T) *app.Runtime {
	t.Helper()
	cfg := &app.Config{
		AppEnv:            "test",
		DataBackend:       app.DataBackendMock,
		SessionBackend:    app.SessionBackendMemory,
		SessionSecret:     "test-secret",
		SessionTTL:        time.Hour,
		SessionCookie:     "crm221_session",
		DefaultPageSize:   10,
		MaxPageSize:       100,
		LeaseReminderDays: 90,
		OAuthRedirectBase: "http://localhost:8080",
	}
	require.NoError(t, cfg.Validate())
	rt, err := app.Assemble(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func serve(rt *app.Runtime, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	rt.Handler.ServeHTTP(res, req)
	return res
}

func TestHealthzAndMetrics(t *testing.T) {
	rt := newRuntime(t)

	res := serve(rt, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok"}`, res.Body.String())
	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
	assert.Empty(t, res.Header().Get("Set-Cookie"))

	res = serve(rt, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, res.Header().Get("Set-Cookie"))
	assert.Contains(t, res.Body.String(), `crm221_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
}

func TestAPIRequiresSignIn(t *testing.T) {
	rt := newRuntime(t)

	res := serve(rt, httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Header().Get("Set-Cookie"), "crm221_session=")
}

func TestSignedInDashboardAndRecords(t *testing.T) {
	rt := newRuntime(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"doug@cascadeprojects.com","password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	res := serve(rt, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var cookie *http.Cookie
	for _, c := range res.Result().Cookies() {
		if c.Name == "crm221_session" && c.Value != "" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	req = httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil)
	req.AddCookie(cookie)
	res = serve(rt, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var summary struct {
		TotalProperties int `json:"total_properties"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.TotalProperties)

	req = httptest.NewRequest(http.MethodGet, "/api/records/tenants?status=eq.active&select=id&order=id.asc", nil)
	req.AddCookie(cookie)
	res = serve(rt, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Contains(t, res.Body.String(), `"count":5`)

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/health", nil)
	req.AddCookie(cookie)
	res = serve(rt, req)
	require.Equal(t, http.StatusOK, res.Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	require.Equal(t, http.StatusNoContent, serve(rt, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil)
	req.AddCookie(cookie)
	assert.Equal(t, http.StatusUnauthorized, serve(rt, req).Code)

	res = serve(rt, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, res.Body.String(), `crm221_store_requests_total{op="select",outcome="ok",table="tenants"}`)
}
