package core

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func text(body string) View {
	return func(x *Exchange) {
		x.Ctx.String(http.StatusOK, body)
		x.claim(http.StatusOK)
	}
}

func tableRouter(t *testing.T, routes []Route) *gin.Engine {
	t.Helper()
	cfg := testConfig()
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))
	return newTestRouter(t, cfg, store, testUsers(t), func(*Gate) []Route { return routes })
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestDispatchFirstMatchWins(t *testing.T) {
	r := tableRouter(t, []Route{
		{Pattern: "/a/:x/", Target: Chain{text("param")}},
		{Pattern: "/a/b/", Target: Chain{text("literal")}},
		{Pattern: "*", Target: Chain{text("fallback")}},
	})

	require.Equal(t, "param", serve(r, http.MethodGet, "/a/b/").Body.String())
	require.Equal(t, "fallback", serve(r, http.MethodGet, "/a/b").Body.String())
}

func TestDispatchWildcardAlwaysLast(t *testing.T) {
	r := tableRouter(t, []Route{
		{Pattern: "*", Target: Chain{text("fallback")}},
		{Pattern: "/x/", Target: Chain{text("x")}},
	})

	require.Equal(t, "x", serve(r, http.MethodGet, "/x/").Body.String())
	require.Equal(t, "fallback", serve(r, http.MethodGet, "/y/").Body.String())
}

func TestDispatchVerbMap(t *testing.T) {
	r := tableRouter(t, []Route{
		{Pattern: "/form/", Target: ByVerb{
			"get":  {text("form")},
			"POST": {text("submitted")},
		}},
		{Pattern: "/:any/", Target: Chain{text("later")}},
		{Pattern: "*", Target: Chain{text("fallback")}},
	})

	require.Equal(t, "form", serve(r, http.MethodGet, "/form/").Body.String())
	require.Equal(t, "submitted", serve(r, http.MethodPost, "/form/").Body.String())
	// a verb the map lacks keeps searching
	require.Equal(t, "later", serve(r, http.MethodDelete, "/form/").Body.String())

	head := serve(r, http.MethodHead, "/form/")
	require.Equal(t, http.StatusOK, head.Code)
}

func TestDispatchParams(t *testing.T) {
	r := tableRouter(t, []Route{
		{Pattern: "/users/:name/", Target: Chain{Render("param")}},
		{Pattern: "*", Target: Chain{RedirectTo("/")}},
	})

	rec := serve(r, http.MethodGet, "/users/ann/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "param:ann", rec.Body.String())
}

func TestDispatchGuardHalts(t *testing.T) {
	var reached bool
	deny := Guard(func(x *Exchange) Outcome {
		x.Redirect("/denied/")
		return Halt
	})
	allow := Guard(func(x *Exchange) Outcome { return Proceed })
	r := tableRouter(t, []Route{
		{Pattern: "/open/", Target: Chain{allow, allow, text("open")}},
		{Pattern: "/closed/", Target: Chain{allow, deny, View(func(x *Exchange) {
			reached = true
			x.Redirect("/")
		})}},
		{Pattern: "*", Target: Chain{text("fallback")}},
	})

	require.Equal(t, "open", serve(r, http.MethodGet, "/open/").Body.String())
	requireRedirect(t, serve(r, http.MethodGet, "/closed/"), "/denied/")
	require.False(t, reached)
}

func TestDispatchChainWithoutResponseFails(t *testing.T) {
	silentGuard := Guard(func(x *Exchange) Outcome { return Halt })
	silentView := View(func(x *Exchange) {})
	r := tableRouter(t, []Route{
		{Pattern: "/guard/", Target: Chain{silentGuard, text("never")}},
		{Pattern: "/view/", Target: Chain{silentView}},
		{Pattern: "*", Target: Chain{text("fallback")}},
	})

	for _, path := range []string{"/guard/", "/view/"} {
		before := testutil.ToFloat64(DispatchTotal.WithLabelValues(path, http.MethodGet, outcomeExhausted))
		rec := serve(r, http.MethodGet, path)
		require.Equal(t, http.StatusInternalServerError, rec.Code, path)
		require.Equal(t, "error:500", rec.Body.String(), path)
		require.Equal(t, before+1, testutil.ToFloat64(DispatchTotal.WithLabelValues(path, http.MethodGet, outcomeExhausted)))
	}
}

func TestExchangeRespondsOnce(t *testing.T) {
	var second int
	var location string
	r := tableRouter(t, []Route{
		{Pattern: "/twice/", Target: Chain{View(func(x *Exchange) {
			x.Redirect("/first/")
			x.Redirect("/second/")
			x.Render(http.StatusOK, "home", x.TemplateData())
			second = x.Status()
			location = x.Location()
		})}},
		{Pattern: "*", Target: Chain{text("fallback")}},
	})

	requireRedirect(t, serve(r, http.MethodGet, "/twice/"), "/first/")
	require.Equal(t, http.StatusFound, second)
	require.Equal(t, "/first/", location)
}

func TestDispatchMetricVerbIsBounded(t *testing.T) {
	r := tableRouter(t, []Route{
		{Pattern: "*", Target: Chain{text("fallback")}},
	})

	other := DispatchTotal.WithLabelValues(WildcardPattern, "OTHER", outcomeResponded)
	start := testutil.ToFloat64(other)
	serve(r, "X0", "/anything/")
	before := testutil.CollectAndCount(DispatchTotal)
	for i := 1; i < 20; i++ {
		rec := serve(r, fmt.Sprintf("X%d", i), "/anything/")
		require.Equal(t, "fallback", rec.Body.String())
	}
	require.Equal(t, before, testutil.CollectAndCount(DispatchTotal))
	require.Equal(t, start+20, testutil.ToFloat64(other))

	require.Equal(t, http.MethodPatch, metricVerb(http.MethodPatch))
	require.Equal(t, "OTHER", metricVerb("get"))
}

func TestNewDispatcherValidation(t *testing.T) {
	ok := Chain{text("ok")}
	guard := Guard(func(x *Exchange) Outcome { return Proceed })
	tests := []struct {
		name  string
		table []Route
		err   error
	}{
		{"no wildcard", []Route{{Pattern: "/", Target: ok}}, ErrNoWildcard},
		{"duplicate", []Route{{Pattern: "/", Target: ok}, {Pattern: "/", Target: ok}, {Pattern: "*", Target: ok}}, ErrDuplicateRoute},
		{"empty chain", []Route{{Pattern: "/", Target: Chain{}}, {Pattern: "*", Target: ok}}, ErrInvalidChain},
		{"ends with guard", []Route{{Pattern: "/", Target: Chain{guard}}, {Pattern: "*", Target: ok}}, ErrInvalidChain},
		{"view not last", []Route{{Pattern: "/", Target: Chain{text("a"), guard, text("b")}}, {Pattern: "*", Target: ok}}, ErrInvalidChain},
		{"nil view", []Route{{Pattern: "/", Target: Chain{View(nil)}}, {Pattern: "*", Target: ok}}, ErrInvalidChain},
		{"nil target", []Route{{Pattern: "/"}, {Pattern: "*", Target: ok}}, ErrInvalidChain},
		{"empty verb map", []Route{{Pattern: "/", Target: ByVerb{}}, {Pattern: "*", Target: ok}}, ErrInvalidChain},
		{"wildcard verb map", []Route{{Pattern: "*", Target: ByVerb{"get": ok}}}, ErrInvalidChain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDispatcher(tt.table, HTMLRenderer{Ext: ".html"})
			require.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}

	_, err := NewDispatcher([]Route{{Pattern: "/", Target: ByVerb{"fetch": ok}}, {Pattern: "*", Target: ok}}, HTMLRenderer{})
	require.Error(t, err)
	_, err = NewDispatcher([]Route{{Pattern: "/", Target: ByVerb{"get": ok, "GET": ok}}, {Pattern: "*", Target: ok}}, HTMLRenderer{})
	require.Error(t, err)
	_, err = NewDispatcher([]Route{{Pattern: "no-slash", Target: ok}, {Pattern: "*", Target: ok}}, HTMLRenderer{})
	require.Error(t, err)
}

func TestDefaultRoutesCompile(t *testing.T) {
	g := NewGate(testConfig(), testUsers(t), NewPrincipalResolver(testUsers(t)), nil)
	d, err := NewDispatcher(DefaultRoutes(g), HTMLRenderer{Ext: ".html"})
	require.NoError(t, err)
	require.Equal(t, 6, d.Routes())

	_, params, pattern := d.Resolve(http.MethodGet, "/error/500/")
	require.Equal(t, "/error/(:err_no)?/?", pattern)
	require.Equal(t, map[string]string{"err_no": "500"}, params)

	_, _, pattern = d.Resolve(http.MethodPut, "/login/")
	require.Equal(t, WildcardPattern, pattern)
}
