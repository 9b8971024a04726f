package core

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var errNoSession = errors.New("no session attached to request")

// Gate holds the authentication steps. Its only per-request state is
// whether the exchange carries a principal.
type Gate struct {
	cfg       Config
	users     CredentialStore
	principal *PrincipalResolver
	throttle  *LoginThrottle
	loginPath string
	rootPath  string
}

// NewGate wires the credential store and resolver. throttle may be nil.
func NewGate(cfg Config, users CredentialStore, principal *PrincipalResolver, throttle *LoginThrottle) *Gate {
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = "/login/"
	}
	return &Gate{
		cfg:       cfg,
		users:     users,
		principal: principal,
		throttle:  throttle,
		loginPath: loginPath,
		rootPath:  "/",
	}
}

// LoginPath is where unauthenticated requests are redirected.
func (g *Gate) LoginPath() string { return g.loginPath }

// Login checks the posted username/password. On success the session is
// reset to hold only the new principal and the chain proceeds; on failure
// the reason is flashed and the client is sent back to the login page.
func (g *Gate) Login() Guard {
	return func(x *Exchange) Outcome {
		if x.Session == nil {
			x.Fail(http.StatusInternalServerError, errNoSession)
			return Halt
		}
		ip := x.Ctx.ClientIP()
		username := x.Ctx.PostForm("username")
		password := x.Ctx.PostForm("password")
		log := logrus.WithFields(logrus.Fields{"username": username, "ip": ip})

		if wait := g.throttle.Locked(ip); wait > 0 {
			LoginAttemptsTotal.WithLabelValues(ReasonLocked).Inc()
			log.WithField("retry_after", wait.String()).Warn("login locked")
			x.AddFlash("Too many failed attempts, try again later")
			x.Redirect(g.loginPath)
			return Halt
		}

		user, failure, err := Authenticate(x.Context(), g.users, username, password)
		if err != nil {
			x.Fail(http.StatusInternalServerError, err)
			return Halt
		}
		if failure != nil {
			remaining := g.throttle.Failure(ip)
			LoginAttemptsTotal.WithLabelValues(failure.Reason).Inc()
			log.WithFields(logrus.Fields{"reason": failure.Reason, "remaining": remaining}).Info("login rejected")
			x.AddFlash(failure.Message)
			x.Redirect(g.loginPath)
			return Halt
		}

		g.throttle.Reset(ip)
		// a server-side session id issued before login is never reused
		if x.Session.ID != "" {
			x.Session.Options.MaxAge = -1
			if err := x.Session.Save(x.Ctx.Request, x.Ctx.Writer); err != nil {
				x.Fail(http.StatusInternalServerError, err)
				return Halt
			}
			x.Session.ID = ""
		}
		// pre-login values (flashes, csrf token) are discarded
		x.Session.Values = map[interface{}]interface{}{
			sessionPrincipalKey: g.principal.Serialize(user),
		}
		applySessionOptions(g.cfg, x.Session)
		if err := x.Session.Save(x.Ctx.Request, x.Ctx.Writer); err != nil {
			x.Fail(http.StatusInternalServerError, err)
			return Halt
		}
		x.Principal = user
		x.Ctx.Set(ctxPrincipal, user)
		LoginAttemptsTotal.WithLabelValues("ok").Inc()
		log.WithField("user_id", user.ID).Info("login succeeded")
		return Proceed
	}
}

// Logout drops the principal when there is one and always proceeds.
func (g *Gate) Logout() Guard {
	return func(x *Exchange) Outcome {
		if !x.Authenticated() || x.Session == nil {
			return Proceed
		}
		delete(x.Session.Values, sessionPrincipalKey)
		applySessionOptions(g.cfg, x.Session)
		if err := x.Session.Save(x.Ctx.Request, x.Ctx.Writer); err != nil {
			x.Fail(http.StatusInternalServerError, err)
			return Halt
		}
		logrus.WithField("user_id", x.Principal.ID).Info("logout")
		x.Principal = nil
		x.Ctx.Set(ctxPrincipal, (*User)(nil))
		return Proceed
	}
}

// RedirectIfAuthenticated sends logged-in users to the site root.
func (g *Gate) RedirectIfAuthenticated() Guard {
	return func(x *Exchange) Outcome {
		if x.Authenticated() {
			x.Redirect(g.rootPath)
			return Halt
		}
		return Proceed
	}
}

// RequireLogin lets authenticated requests through and sends everyone else
// to the login page.
func (g *Gate) RequireLogin() Guard {
	return func(x *Exchange) Outcome {
		if x.Authenticated() {
			return Proceed
		}
		x.Redirect(g.loginPath)
		return Halt
	}
}

// CurrentUser returns the principal resolved by SessionMiddleware, if any.
func CurrentUser(c *gin.Context) (*User, bool) {
	v, ok := c.Get(ctxPrincipal)
	if !ok {
		return nil, false
	}
	u, _ := v.(*User)
	return u, u != nil
}
