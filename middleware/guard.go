package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/vkportal/vkauth"
)

type contextKey uint8

const authResultKey contextKey = 0

// Options defines a public type used by vkauth APIs.
//
// Options instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Options struct {
	// CookieName is the fallback token cookie checked when there is no
	// Authorization header. Empty disables the cookie path.
	CookieName string

	// LoginURL receives redirects for missing, invalid, or revoked tokens.
	// Empty means a bare 401 instead.
	LoginURL string

	// UnauthorizedURL receives redirects for authenticated requests whose
	// identity kind or role does not pass the guard. Empty means a bare 403.
	UnauthorizedURL string

	// Mode overrides the engine-wide validation mode for routes behind this
	// guard. The zero value inherits the engine's mode.
	Mode vkauth.RouteMode
}

// Guard protects staff routes. With no roles listed, any valid staff token
// passes; otherwise the token's role must be one of the listed roles.
// Switched tokens are candidate tokens and do not pass a staff guard.
func Guard(engine *vkauth.Engine, opts Options, roles ...vkauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, ok := authenticate(engine, opts, w, r)
			if !ok {
				return
			}

			if result.Kind != vkauth.KindStaff || !result.Role.Valid() {
				deny(w, r, opts)
				return
			}
			if len(roles) > 0 && !roleAllowed(result.Role, roles) {
				deny(w, r, opts)
				return
			}

			next.ServeHTTP(w, r.WithContext(withAuthResult(r.Context(), result)))
		})
	}
}

// CandidateGuard protects candidate routes. Both direct candidate logins and
// switched staff tokens pass, since a switched token acts as the candidate.
func CandidateGuard(engine *vkauth.Engine, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, ok := authenticate(engine, opts, w, r)
			if !ok {
				return
			}

			if result.Kind != vkauth.KindCandidate {
				deny(w, r, opts)
				return
			}

			next.ServeHTTP(w, r.WithContext(withAuthResult(r.Context(), result)))
		})
	}
}

// AuthFromContext returns the validated session placed by a guard.
func AuthFromContext(ctx context.Context) (*vkauth.AuthResult, bool) {
	result, ok := ctx.Value(authResultKey).(*vkauth.AuthResult)
	return result, ok
}

func withAuthResult(ctx context.Context, result *vkauth.AuthResult) context.Context {
	return context.WithValue(ctx, authResultKey, result)
}

func authenticate(engine *vkauth.Engine, opts Options, w http.ResponseWriter, r *http.Request) (*vkauth.AuthResult, bool) {
	token := tokenFromRequest(r, opts.CookieName)
	if token == "" {
		redirectLogin(w, r, opts)
		return nil, false
	}

	mode := opts.Mode
	if mode == 0 {
		mode = vkauth.ModeInherit
	}

	ctx := vkauth.WithClientIP(r.Context(), clientIP(r))
	ctx = vkauth.WithUserAgent(ctx, r.UserAgent())

	result, err := engine.Validate(ctx, token, mode)
	if err != nil {
		if errors.Is(err, vkauth.ErrSessionUnavailable) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return nil, false
		}
		redirectLogin(w, r, opts)
		return nil, false
	}

	return result, true
}

func tokenFromRequest(r *http.Request, cookieName string) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}

	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil {
			return cookie.Value
		}
	}

	return ""
}

func roleAllowed(role vkauth.Role, allowed []vkauth.Role) bool {
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}

func redirectLogin(w http.ResponseWriter, r *http.Request, opts Options) {
	if opts.LoginURL != "" {
		http.Redirect(w, r, opts.LoginURL, http.StatusSeeOther)
		return
	}
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

func deny(w http.ResponseWriter, r *http.Request, opts Options) {
	if opts.UnauthorizedURL != "" {
		http.Redirect(w, r, opts.UnauthorizedURL, http.StatusSeeOther)
		return
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
