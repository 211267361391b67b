package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tasklist/pkg/domain"
)

// CookieName is the cookie checked before the Authorization header.
const CookieName = "token"

var _ domain.SessionGate = (*Gate)(nil)

// Gate authenticates requests against a shared HS256 secret.
type Gate struct {
	secret []byte
}

// NewGate validates secret and returns a gate.
func NewGate(secret []byte) (*Gate, error) {
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}
	return &Gate{secret: append([]byte(nil), secret...)}, nil
}

// TokenFromRequest extracts the raw credential: the "token" cookie first,
// then an Authorization: Bearer header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return tok
	}
	return ""
}

// Authenticate implements domain.SessionGate.
func (g *Gate) Authenticate(r *http.Request) (domain.Principal, error) {
	raw := TokenFromRequest(r)
	if raw == "" {
		return domain.Principal{}, fmt.Errorf("missing credential: %w", domain.ErrUnauthorized)
	}
	claims, err := ValidateToken(g.secret, raw)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return domain.Principal{ID: claims.UserID, Username: claims.Username, Token: raw}, nil
}

// DefaultExpiry applies when Mint is given a zero expiry.
const DefaultExpiry = 24 * time.Hour

// Mint issues a token for userID signed with the gate's secret.
func (g *Gate) Mint(userID, username string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return GenerateToken(g.secret, &Claims{UserID: userID, Username: username}, expiry)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by Middleware.
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok && p.Authenticated()
}

// Middleware authenticates each request through gate and stores the
// principal in the request context. Requests without a valid credential pass
// through unauthenticated; a stale cookie is cleared. Handlers decide whether
// to reject.
func Middleware(gate domain.SessionGate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := gate.Authenticate(r)
			if err != nil {
				if c, cerr := r.Cookie(CookieName); cerr == nil && c.Value != "" {
					http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
