package core

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"
)

const sessionName = "scaffold_session"
const sessionMaxAge = 18000 // 5h

// gin context keys shared between middleware and the dispatcher.
const (
	ctxSession   = "session"
	ctxPrincipal = "principal"
	ctxCSRFToken = "csrf_token"
)

const (
	csrfHeader    = "X-CSRF-Token"
	csrfFormField = "csrf_token"
	csrfValueKey  = "csrf_token"
)

// SessionMiddleware loads the session, applies cookie options and resolves
// the session principal. A principal whose user no longer exists is dropped
// and the request continues anonymously.
func SessionMiddleware(cfg Config, store sessions.Store, resolver *PrincipalResolver, renderer Renderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := store.Get(c.Request, sessionName)
		if err != nil {
			// stale key or tampered cookie: the store hands back a fresh session
			logrus.WithError(err).Debug("discarding unreadable session")
		}
		if session == nil {
			renderError(c, renderer, http.StatusInternalServerError)
			c.Abort()
			return
		}
		applySessionOptions(cfg, session)
		c.Set(ctxSession, session)

		if id, ok := principalID(session.Values); ok {
			user, err := resolver.Deserialize(c.Request.Context(), id)
			switch {
			case err == nil:
				c.Set(ctxPrincipal, user)
			case errors.Is(err, ErrUserNotFound):
				PrincipalResolveFailuresTotal.Inc()
				logrus.WithField("principal", id).Warn("session principal no longer resolves; continuing anonymously")
				delete(session.Values, sessionPrincipalKey)
				if err := session.Save(c.Request, c.Writer); err != nil {
					logrus.WithError(err).Error("failed to persist session")
				}
			default:
				logrus.WithError(err).WithField("principal", id).Error("failed to resolve session principal")
				renderError(c, renderer, http.StatusInternalServerError)
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// CSRFMiddleware issues a per-session token and validates it on unsafe
// methods, read from the X-CSRF-Token header or the csrf_token form field.
// Must run after SessionMiddleware.
func CSRFMiddleware(cfg Config, renderer Renderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessionFrom(c)
		if session == nil {
			renderError(c, renderer, http.StatusInternalServerError)
			c.Abort()
			return
		}

		token, _ := session.Values[csrfValueKey].(string)
		if token == "" {
			var err error
			token, err = generateCSRFToken()
			if err != nil {
				logrus.WithError(err).Error("failed to issue csrf token")
				renderError(c, renderer, http.StatusInternalServerError)
				c.Abort()
				return
			}
			session.Values[csrfValueKey] = token
			applySessionOptions(cfg, session)
			if err := session.Save(c.Request, c.Writer); err != nil {
				logrus.WithError(err).Error("failed to persist session")
				renderError(c, renderer, http.StatusInternalServerError)
				c.Abort()
				return
			}
		}

		if !isSafeMethod(c.Request.Method) {
			received := c.GetHeader(csrfHeader)
			if received == "" {
				received = c.PostForm(csrfFormField)
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(received)) != 1 {
				logrus.WithFields(logrus.Fields{"path": c.Request.URL.Path, "method": c.Request.Method}).Warn("csrf token mismatch")
				renderError(c, renderer, http.StatusForbidden)
				c.Abort()
				return
			}
		}

		c.Header(csrfHeader, token)
		c.Set(ctxCSRFToken, token)
		c.Next()
	}
}

// AddSlashes answers GET/HEAD requests for paths without a trailing slash
// with a 301 to the slashed path. Paths listed in exempt are left alone.
func AddSlashes(base string, exempt ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		method := c.Request.Method
		p := c.Request.URL.Path
		if method != http.MethodGet && method != http.MethodHead {
			c.Next()
			return
		}
		if _, ok := skip[p]; ok || len(p) <= 1 || strings.HasSuffix(p, "/") || strings.HasPrefix(p, "//") {
			c.Next()
			return
		}
		target := base + p + "/"
		if q := c.Request.URL.RawQuery; q != "" {
			target += "?" + q
		}
		c.Redirect(http.StatusMovedPermanently, target)
		c.Abort()
	}
}

func sessionFrom(c *gin.Context) *sessions.Session {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil
	}
	s, _ := v.(*sessions.Session)
	return s
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = sessionMaxAge
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
