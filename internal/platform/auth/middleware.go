package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
)

const (
	defaultRoleClaim     = "role"
	defaultLocaleClaim   = "locale"
	defaultEmailClaim    = "email"
	defaultFallbackRole  = RoleUser
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals the Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals the Firebase ID token failed verification.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// UserGetter retrieves Firebase user records.
type UserGetter interface {
	GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)
}

// Authenticator turns Firebase token verification into HTTP middleware.
type Authenticator struct {
	verifier TokenVerifier
	users    UserGetter

	roleClaim   string
	localeClaim string
	emailClaim  string

	fallbackRole string
	timeout      time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithUserGetter enables lazy user record loading on the identity.
func WithUserGetter(getter UserGetter) Option {
	return func(a *Authenticator) {
		a.users = getter
	}
}

// WithRoleClaim overrides the custom claim holding the identity's roles.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithLocaleClaim overrides the claim backing Identity.Locale.
func WithLocaleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.localeClaim = claim
		}
	}
}

// WithEmailClaim overrides the claim backing Identity.Email.
func WithEmailClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.emailClaim = claim
		}
	}
}

// WithFallbackRole sets the role granted when the token carries none.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) {
		if role = canonicalRole(role); role != "" {
			a.fallbackRole = role
		}
	}
}

// WithVerificationTimeout bounds token verification and user lookups.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator builds an Authenticator around the given verifier.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:     verifier,
		roleClaim:    defaultRoleClaim,
		localeClaim:  defaultLocaleClaim,
		emailClaim:   defaultEmailClaim,
		fallbackRole: defaultFallbackRole,
		timeout:      defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth verifies the bearer token and, when allowedRoles is
// non-empty, rejects identities lacking every listed role.
func (a *Authenticator) RequireFirebaseAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		if role = canonicalRole(role); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			ctx, cancel := a.boundedContext(r.Context())
			if cancel != nil {
				defer cancel()
			}

			token, err := a.verifier.VerifyIDToken(ctx, tokenStr)
			if err != nil {
				writeVerificationError(w, err)
				return
			}

			identity := a.identityFromToken(token)
			if len(identity.Roles) == 0 {
				writeAuthError(w, http.StatusUnauthorized, "missing_role", "no roles associated with identity")
				return
			}
			if len(allowed) > 0 && !identityAllowed(identity.Roles, allowed) {
				writeAuthError(w, http.StatusUnauthorized, "insufficient_role", "identity does not have required role")
				return
			}

			if a.users != nil {
				identity.userLoader = func(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
					if uid == "" {
						uid = identity.UID
					}
					ctx, cancel := a.boundedContext(ctx)
					if cancel != nil {
						defer cancel()
					}
					return a.users.GetUser(ctx, uid)
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func (a *Authenticator) identityFromToken(token *firebaseauth.Token) *Identity {
	identity := &Identity{
		UID:    token.UID,
		Email:  stringClaim(token.Claims, a.emailClaim),
		Locale: stringClaim(token.Claims, a.localeClaim),
		Roles:  parseRoles(token.Claims[a.roleClaim]),
		token:  token,
	}

	// Custom claims may be overridden; the standard claims still apply.
	if identity.Email == "" {
		identity.Email = stringClaim(token.Claims, defaultEmailClaim)
	}
	if identity.Locale == "" {
		identity.Locale = stringClaim(token.Claims, defaultLocaleClaim)
	}
	if len(identity.Roles) == 0 && a.fallbackRole != "" {
		identity.Roles = []string{a.fallbackRole}
	}
	return identity
}

func (a *Authenticator) boundedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a == nil || a.timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeout)
}

func identityAllowed(roles []string, allowed map[string]struct{}) bool {
	for _, role := range roles {
		if _, ok := allowed[canonicalRole(role)]; ok {
			return true
		}
	}
	return false
}

// parseRoles accepts the claim shapes Firebase custom claims commonly use: a
// single string, a list of strings, or a map of role name to boolean.
func parseRoles(raw any) []string {
	appendRole := func(out []string, seen map[string]struct{}, value string) []string {
		role := canonicalRole(value)
		if role == "" {
			return out
		}
		if _, dup := seen[role]; dup {
			return out
		}
		seen[role] = struct{}{}
		return append(out, role)
	}

	switch v := raw.(type) {
	case string:
		if role := canonicalRole(v); role != "" {
			return []string{role}
		}
		return nil
	case []string:
		out := make([]string, 0, len(v))
		seen := make(map[string]struct{}, len(v))
		for _, item := range v {
			out = appendRole(out, seen, item)
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		seen := make(map[string]struct{}, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = appendRole(out, seen, str)
			}
		}
		return out
	case map[string]any:
		out := make([]string, 0, len(v))
		seen := make(map[string]struct{}, len(v))
		for name, granted := range v {
			if enabled, ok := granted.(bool); ok && enabled {
				out = appendRole(out, seen, name)
			}
		}
		return out
	default:
		return nil
	}
}

func stringClaim(claims map[string]any, key string) string {
	if value, ok := claims[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func canonicalRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func writeVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		writeAuthError(w, http.StatusUnauthorized, "token_expired", "firebase id token expired")
	case errors.Is(err, ErrTokenInvalid), firebaseauth.IsIDTokenInvalid(err):
		writeAuthError(w, http.StatusUnauthorized, "invalid_token", "firebase id token invalid")
	default:
		writeAuthError(w, http.StatusUnauthorized, "invalid_token", "firebase id token verification failed")
	}
}
