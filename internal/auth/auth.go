// Package auth identifies API callers and gates mutating endpoints behind the
// admin entitlement. Callers authenticate with a static bearer token or, when
// the server sits behind an OAuth proxy, with the X-Forwarded-* headers the
// proxy sets.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"labcatalog/internal/core"
)

// Proxy headers trusted when Config.TrustProxyHeaders is set.
const (
	HeaderEmail  = "X-Forwarded-Email"
	HeaderUser   = "X-Forwarded-User"
	HeaderGroups = "X-Forwarded-Groups"
)

// Config controls how callers are identified.
type Config struct {
	// Token grants the admin entitlement to callers presenting it as a
	// bearer token. Empty disables token authentication.
	Token string `toml:"token"`
	// TrustProxyHeaders accepts identity headers set by an authenticating proxy.
	TrustProxyHeaders bool `toml:"trust_proxy_headers"`
	// AdminGroup is the proxy group holding the admin entitlement.
	AdminGroup string `toml:"admin_group"`
}

// Profile describes the caller of a request.
type Profile struct {
	Email  string   `json:"email,omitempty"`
	User   string   `json:"user,omitempty"`
	Groups []string `json:"groups"`
	Admin  bool     `json:"admin"`
	Method string   `json:"method"`
}

// Actor returns the identity recorded in audit entries.
func (p Profile) Actor() string {
	switch {
	case p.Email != "":
		return p.Email
	case p.User != "":
		return p.User
	default:
		return p.Method
	}
}

type profileKey struct{}

// WithProfile returns a context carrying p.
func WithProfile(ctx context.Context, p Profile) context.Context {
	return context.WithValue(ctx, profileKey{}, p)
}

// ProfileFromContext returns the profile attached by Authenticator.Middleware.
func ProfileFromContext(ctx context.Context) (Profile, bool) {
	p, ok := ctx.Value(profileKey{}).(Profile)
	return p, ok
}

// Authenticator resolves request credentials into profiles.
type Authenticator struct {
	cfg Config
	log *zap.Logger
}

// New returns an authenticator. A nil logger discards admin action logs.
func New(cfg Config, log *zap.Logger) *Authenticator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authenticator{cfg: cfg, log: log}
}

// Identify inspects r for credentials. It returns false when the request
// carries none. A credential that does not verify yields a profile without
// the admin entitlement.
func (a *Authenticator) Identify(r *http.Request) (Profile, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		sent := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		p := Profile{Method: "token", Groups: []string{}}
		if a.cfg.Token != "" && validToken(a.cfg.Token, sent) {
			p.Admin = true
		}
		if a.cfg.TrustProxyHeaders {
			p.Email = r.Header.Get(HeaderEmail)
			p.User = r.Header.Get(HeaderUser)
		}
		return p, true
	}

	if !a.cfg.TrustProxyHeaders {
		return Profile{}, false
	}
	email, user := r.Header.Get(HeaderEmail), r.Header.Get(HeaderUser)
	if email == "" && user == "" {
		return Profile{}, false
	}
	p := Profile{Email: email, User: user, Method: "proxy", Groups: splitGroups(r.Header.Get(HeaderGroups))}
	if a.cfg.AdminGroup != "" {
		for _, g := range p.Groups {
			if g == a.cfg.AdminGroup {
				p.Admin = true
				break
			}
		}
	}
	return p, true
}

func splitGroups(raw string) []string {
	groups := []string{}
	for _, g := range strings.Split(raw, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

func validToken(configured, sent string) bool {
	return subtle.ConstantTimeCompare([]byte(sent), []byte(configured)) == 1
}

// Middleware attaches the caller profile, if any, to the request context.
// It never rejects a request.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := a.Identify(r); ok {
			ctx := core.WithActor(WithProfile(r.Context(), p), p.Actor())
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects callers without the admin entitlement: 401 when the
// request carries no credential, 403 when the credential is insufficient.
// Admitted requests are logged as admin actions.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := ProfileFromContext(r.Context())
		if !ok {
			if p, ok = a.Identify(r); ok {
				r = r.WithContext(core.WithActor(WithProfile(r.Context(), p), p.Actor()))
			}
		}
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="labcatalog"`)
			writeError(w, http.StatusUnauthorized, "Unauthorized", "no credential presented")
			return
		}
		if !p.Admin {
			writeError(w, http.StatusForbidden, "Forbidden", "the admin entitlement is required")
			return
		}

		a.log.Info("admin action",
			zap.String("host", r.Host),
			zap.String("user", p.Actor()),
			zap.String("action", fmt.Sprintf("%s-%s", r.Method, r.RequestURI)),
			zap.String("queries", r.URL.Query().Encode()),
		)
		next.ServeHTTP(w, r)
	})
}

// RequireAdminFor wraps next with RequireAdmin only for the given methods.
func (a *Authenticator) RequireAdminFor(methods ...string) func(http.Handler) http.Handler {
	gated := make(map[string]bool, len(methods))
	for _, m := range methods {
		gated[m] = true
	}
	return func(next http.Handler) http.Handler {
		admin := a.RequireAdmin(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gated[r.Method] {
				admin.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "detail": detail})
}
