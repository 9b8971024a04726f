package core

import (
	"context"
	"encoding/gob"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"
)

func init() {
	// flashes are stored as []interface{} and must survive gob encoding
	gob.Register([]interface{}{})
}

// Exchange is one request travelling through a chain. Its response is
// write-once: only the first Redirect, Render or Fail takes effect.
type Exchange struct {
	Ctx       *gin.Context
	Verb      string
	Path      string
	Route     string            // matched pattern
	Params    map[string]string // captured named segments
	Principal *User             // nil when anonymous
	Session   *sessions.Session // nil when no session middleware ran

	renderer  Renderer
	responded bool
	status    int
	location  string
}

func newExchange(c *gin.Context, renderer Renderer) *Exchange {
	x := &Exchange{
		Ctx:      c,
		Verb:     c.Request.Method,
		Path:     c.Request.URL.Path,
		Params:   map[string]string{},
		Session:  sessionFrom(c),
		renderer: renderer,
	}
	x.Principal, _ = CurrentUser(c)
	return x
}

// Context returns the request context.
func (x *Exchange) Context() context.Context { return x.Ctx.Request.Context() }

// Authenticated reports whether a principal was resolved for this request.
func (x *Exchange) Authenticated() bool { return x.Principal != nil }

// Responded reports whether a response has been written.
func (x *Exchange) Responded() bool { return x.responded }

// Status returns the response status, or 0 before a response.
func (x *Exchange) Status() int { return x.status }

// Location returns the redirect target, if the response was a redirect.
func (x *Exchange) Location() string { return x.location }

// Redirect responds with 302 Found.
func (x *Exchange) Redirect(location string) {
	x.RedirectStatus(http.StatusFound, location)
}

// RedirectStatus responds with a redirect of the given status.
func (x *Exchange) RedirectStatus(status int, location string) {
	if !x.claim(status) {
		return
	}
	x.location = location
	x.Ctx.Redirect(status, location)
}

// Render responds with template rendered against data.
func (x *Exchange) Render(status int, template string, data gin.H) {
	if !x.claim(status) {
		return
	}
	x.renderer.Render(x.Ctx, status, template, data)
}

// Fail logs err and renders the error page for status.
func (x *Exchange) Fail(status int, err error) {
	logrus.WithError(err).WithFields(logrus.Fields{"path": x.Path, "status": status}).Error("request failed")
	if x.responded {
		return
	}
	x.Render(status, errorTemplate, errorData(status))
}

// TemplateData is the context every rendered page receives.
func (x *Exchange) TemplateData() gin.H {
	data := gin.H{
		"params":  x.Params,
		"user":    x.Principal,
		"flashes": x.Flashes(),
	}
	if token, ok := x.Ctx.Get(ctxCSRFToken); ok {
		data["csrf_token"] = token
	}
	return data
}

// AddFlash queues a one-shot message for the next rendered page and saves
// the session.
func (x *Exchange) AddFlash(msg string) {
	if x.Session == nil {
		return
	}
	x.Session.AddFlash(msg)
	x.saveSession()
}

// Flashes pops queued messages.
func (x *Exchange) Flashes() []string {
	if x.Session == nil {
		return nil
	}
	raw := x.Session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	x.saveSession()
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (x *Exchange) saveSession() {
	if err := x.Session.Save(x.Ctx.Request, x.Ctx.Writer); err != nil {
		logrus.WithError(err).Error("failed to persist session")
	}
}

func (x *Exchange) claim(status int) bool {
	if x.responded {
		logrus.WithFields(logrus.Fields{"path": x.Path, "status": status, "first_status": x.status}).Warn("dropping second response")
		return false
	}
	x.responded = true
	x.status = status
	return true
}
