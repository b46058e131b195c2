// Package identity resolves the caller of each request.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cycore-edu/cycore/backend/internal/logger"
	"github.com/cycore-edu/cycore/backend/pkg/utils"
)

// AnonCookie carries the id of unauthenticated visitors.
const AnonCookie = "cycore_anon_id"

const anonPrefix = "anon-"

var ErrInvalidToken = errors.New("invalid or expired token")

// User is the resolved caller.
type User struct {
	ID            string `json:"id"`
	DisplayName   string `json:"displayName"`
	Authenticated bool   `json:"authenticated"`
}

// Claims are the bearer token claims.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type userKey struct{}

// WithUser stores u on ctx.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// FromContext returns the user set by Middleware.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}

// IssueToken signs an HS256 token for subject.
func IssueToken(secret, subject, name string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is empty")
	}
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Authenticator parses bearer tokens and falls back to anonymous cookies.
type Authenticator struct {
	secret       []byte
	secureCookie bool
	log          *logger.Logger
}

// NewAuthenticator creates an Authenticator. An empty secret disables
// bearer tokens so every caller is anonymous.
func NewAuthenticator(secret string, secureCookie bool, log *logger.Logger) *Authenticator {
	if log == nil {
		log = logger.Nop()
	}
	return &Authenticator{
		secret:       []byte(secret),
		secureCookie: secureCookie,
		log:          log.With("component", "identity"),
	}
}

// Parse validates a bearer token.
func (a *Authenticator) Parse(tokenString string) (User, error) {
	if len(a.secret) == 0 {
		return User{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return User{}, ErrInvalidToken
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return User{ID: claims.Subject, DisplayName: name, Authenticated: true}, nil
}

// Middleware attaches a User to every request. A present but invalid token
// is rejected with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := extractToken(r); token != "" {
			user, err := a.Parse(token)
			if err != nil {
				a.log.Debug("rejecting bearer token", "error", err)
				utils.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), a.anonymous(w, r))))
	})
}

func (a *Authenticator) anonymous(w http.ResponseWriter, r *http.Request) User {
	if c, err := r.Cookie(AnonCookie); err == nil && strings.HasPrefix(c.Value, anonPrefix) {
		return User{ID: c.Value, DisplayName: "Guest"}
	}

	id := anonPrefix + uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
	})
	return User{ID: id, DisplayName: "Guest"}
}

// ClearAnonymous expires the anonymous cookie.
func ClearAnonymous(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: AnonCookie, Value: "", Path: "/", MaxAge: -1})
}

// Browsers cannot set headers on EventSource or WebSocket handshakes, so the
// token query parameter is accepted too.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
