package core

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"
)

func TestCSRFProtectsUnsafeMethods(t *testing.T) {
	cfg := testConfig()
	cfg.CSRFEnabled = true
	b := newTestApp(t, cfg, testUsers(t))

	rec := b.get("/login/")
	require.Equal(t, http.StatusOK, rec.Code)
	token := rec.Header().Get(csrfHeader)
	require.NotEmpty(t, token)

	// the token is stable for the session
	require.Equal(t, token, b.get("/login/").Header().Get(csrfHeader))

	rec = login(b, "bob", "pass")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "error:403", rec.Body.String())

	rec = b.post("/login/", url.Values{"username": {"bob"}, "password": {"pass"}, csrfFormField: {"wrong"}})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = b.post("/login/", url.Values{"username": {"bob"}, "password": {"pass"}, csrfFormField: {token}})
	requireRedirect(t, rec, "/")
	require.Equal(t, "home:bob", b.get("/").Body.String())
}

func TestCSRFAcceptsHeader(t *testing.T) {
	cfg := testConfig()
	cfg.CSRFEnabled = true
	b := newTestApp(t, cfg, testUsers(t))

	token := b.get("/login/").Header().Get(csrfHeader)
	b.headers[csrfHeader] = token
	requireRedirect(t, login(b, "bob", "pass"), "/")
}

func TestCSRFTokenRotatesOnLogin(t *testing.T) {
	cfg := testConfig()
	cfg.CSRFEnabled = true
	b := newTestApp(t, cfg, testUsers(t))

	before := b.get("/login/").Header().Get(csrfHeader)
	b.headers[csrfHeader] = before
	requireRedirect(t, login(b, "bob", "pass"), "/")
	delete(b.headers, csrfHeader)

	after := b.get("/").Header().Get(csrfHeader)
	require.NotEmpty(t, after)
	require.NotEqual(t, before, after)
}

func TestAddSlashes(t *testing.T) {
	cfg := testConfig()
	cfg.AddSlashes = true
	b := newTestApp(t, cfg, testUsers(t))

	tests := []struct {
		method   string
		path     string
		status   int
		location string
	}{
		{http.MethodGet, "/profile", http.StatusMovedPermanently, "/profile/"},
		{http.MethodGet, "/profile?tab=1", http.StatusMovedPermanently, "/profile/?tab=1"},
		{http.MethodHead, "/login", http.StatusMovedPermanently, "/login/"},
		{http.MethodGet, "/profile/", http.StatusFound, "/login/"},
		{http.MethodGet, "/", http.StatusFound, "/login/"},
		// unsafe methods are never redirected
		{http.MethodPost, "/logout", http.StatusFound, "/error/404/"},
	}
	for _, tt := range tests {
		rec := b.do(tt.method, tt.path, nil)
		require.Equal(t, tt.status, rec.Code, "%s %s", tt.method, tt.path)
		require.Equal(t, tt.location, rec.Header().Get("Location"), "%s %s", tt.method, tt.path)
	}
}

func TestFixedEndpointsSkipPageMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.AddSlashes = true
	cfg.CSRFEnabled = true
	b := newTestApp(t, cfg, testUsers(t))

	rec := b.get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get(csrfHeader))
	require.Empty(t, rec.Result().Cookies())

	var status SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "ok", status.Status)
	require.Equal(t, "cookie", status.SessionBackend)
	require.Equal(t, 6, status.Routes)

	requireRedirect(t, b.get("/"), "/login/")
	rec = b.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "scaffold_dispatch_total"))
}

func TestSessionCookieOptions(t *testing.T) {
	cfg := testConfig()
	cfg.CookieSecure = true
	cfg.CookieSameSite = "Strict"
	b := newTestApp(t, cfg, testUsers(t))

	rec := login(b, "bob", "pass")
	requireRedirect(t, rec, "/")
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	c := cookies[len(cookies)-1]
	require.Equal(t, sessionName, c.Name)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteStrictMode, c.SameSite)
	require.Equal(t, sessionMaxAge, c.MaxAge)
	require.Equal(t, "/", c.Path)
}

func TestUndecodableSessionIsFresh(t *testing.T) {
	cfg := testConfig()
	b := newBrowser(t, newTestRouter(t, cfg, sessions.NewCookieStore([]byte(cfg.SessionKey)), testUsers(t), DefaultRoutes))
	b.cookies[sessionName] = &http.Cookie{Name: sessionName, Value: "garbage"}

	requireRedirect(t, b.get("/"), "/login/")
	requireRedirect(t, login(b, "bob", "pass"), "/")
	require.Equal(t, "home:bob", b.get("/").Body.String())
}

func TestSameSiteFromString(t *testing.T) {
	require.Equal(t, http.SameSiteStrictMode, sameSiteFromString("strict"))
	require.Equal(t, http.SameSiteNoneMode, sameSiteFromString("None"))
	require.Equal(t, http.SameSiteLaxMode, sameSiteFromString("Lax"))
	require.Equal(t, http.SameSiteLaxMode, sameSiteFromString(""))
}
