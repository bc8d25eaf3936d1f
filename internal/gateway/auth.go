// internal/gateway/auth.go
package gateway

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"

	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
)

// Token kinds. Each kind is signed with its own key derived from the server
// secret, so a guest token never verifies as a user token.
const (
	KindGuest = "guest"
	KindUser  = "user"
)

// Cookie and query names the resolver looks at.
const (
	GuestCookie   = "dicehall_guest"
	UserCookie    = "dicehall_token"
	SessionCookie = "dicehall_session"
	guestQuery    = "guest_token"
	userQuery     = "token"
)

const (
	tokenIssuer = "dicehall"
	guestTTL    = 7 * 24 * time.Hour
	userTTL     = 24 * time.Hour
	keySalt     = "dicehall-token-keys"
)

// Identity is who a request acts as.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Guest  bool   `json:"guest"`
}

// SessionResolver turns an ambient session cookie into an identity. ok is
// false for unknown or expired sessions.
type SessionResolver interface {
	ResolveSession(ctx context.Context, cookie string) (id Identity, ok bool, err error)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`
}

// Authenticator issues and verifies guest and user tokens.
type Authenticator struct {
	keys       map[string][]byte
	clock      clock.Clock
	resolver   SessionResolver
	allowGuest bool
	log        logrus.FieldLogger
}

// AuthOption configures an Authenticator.
type AuthOption func(*Authenticator)

// WithSessionResolver enables ambient session cookies.
func WithSessionResolver(r SessionResolver) AuthOption {
	return func(a *Authenticator) { a.resolver = r }
}

// WithGuestFastPath lets requests without any credential through as a fresh
// guest.
func WithGuestFastPath(allow bool) AuthOption {
	return func(a *Authenticator) { a.allowGuest = allow }
}

// WithAuthClock replaces the wall clock used for token times.
func WithAuthClock(c clock.Clock) AuthOption {
	return func(a *Authenticator) { a.clock = c }
}

// WithAuthLogger sets the logger used for failed requests.
func WithAuthLogger(l logrus.FieldLogger) AuthOption {
	return func(a *Authenticator) { a.log = l }
}

// NewAuthenticator derives per-kind signing keys from secret.
func NewAuthenticator(secret []byte, opts ...AuthOption) (*Authenticator, error) {
	if len(secret) < 16 {
		return nil, errors.New("token secret must be at least 16 bytes")
	}
	a := &Authenticator{keys: make(map[string][]byte), clock: clock.New(), log: logrus.StandardLogger()}
	for _, kind := range []string{KindGuest, KindUser} {
		key, err := deriveKey(secret, kind)
		if err != nil {
			return nil, err
		}
		a.keys[kind] = key
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func deriveKey(secret []byte, kind string) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, []byte(keySalt), []byte("token:"+kind))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", kind, err)
	}
	return key, nil
}

// Issue signs a token of the given kind.
func (a *Authenticator) Issue(kind, userID, name string) (string, error) {
	key, ok := a.keys[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
	ttl := userTTL
	if kind == KindGuest {
		ttl = guestTTL
	}
	now := a.clock.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Kind: kind,
		Name: name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// IssueGuest mints a new guest identity and its token.
func (a *Authenticator) IssueGuest(name string) (Identity, string, error) {
	id := Identity{UserID: "guest:" + uuid.NewString(), Name: name, Guest: true}
	if id.Name == "" {
		id.Name = "Guest"
	}
	tok, err := a.Issue(KindGuest, id.UserID, id.Name)
	return id, tok, err
}

// Verify checks a token of the given kind.
func (a *Authenticator) Verify(kind, token string) (Identity, error) {
	key, ok := a.keys[kind]
	if !ok {
		return Identity{}, fmt.Errorf("unknown token kind %q", kind)
	}
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		return Identity{}, mapJWTError(err)
	}
	if claims.Kind != kind || claims.Subject == "" {
		return Identity{}, apperrors.New(apperrors.CodeUnauthenticated, "token is invalid")
	}
	return Identity{UserID: claims.Subject, Name: claims.Name, Guest: kind == KindGuest}, nil
}

// Resolve finds the caller's identity. Credentials are tried in order: guest
// token, user token, session cookie. The first valid one wins. With the guest
// fast path a request with no valid credential becomes a new guest; minted is
// then the token to hand back.
func (a *Authenticator) Resolve(r *http.Request) (id Identity, minted string, err error) {
	if tok := credential(r, GuestCookie, guestQuery, ""); tok != "" {
		if id, err := a.Verify(KindGuest, tok); err == nil {
			return id, "", nil
		}
	}
	if tok := credential(r, UserCookie, userQuery, bearer(r)); tok != "" {
		if id, err := a.Verify(KindUser, tok); err == nil {
			return id, "", nil
		}
	}
	if a.resolver != nil {
		if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
			id, ok, err := a.resolver.ResolveSession(r.Context(), c.Value)
			if err != nil {
				return Identity{}, "", apperrors.Wrap(apperrors.CodeUnauthenticated, "session lookup failed", err)
			}
			if ok {
				return id, "", nil
			}
		}
	}
	if a.allowGuest {
		id, tok, err := a.IssueGuest("")
		if err != nil {
			return Identity{}, "", err
		}
		return id, tok, nil
	}
	return Identity{}, "", apperrors.New(apperrors.CodeUnauthenticated, "authentication required")
}

// GuestCookieFor wraps a guest token in the cookie Resolve reads.
func GuestCookieFor(token string) *http.Cookie {
	return &http.Cookie{
		Name:     GuestCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(guestTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by the auth middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Middleware resolves the caller and rejects unauthenticated requests.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, minted, err := a.Resolve(r)
		if err != nil {
			writeError(w, r, a.log, err)
			return
		}
		if minted != "" {
			http.SetCookie(w, GuestCookieFor(minted))
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func credential(r *http.Request, cookie, query, header string) string {
	if header != "" {
		return header
	}
	if c, err := r.Cookie(cookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get(query)
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "token has expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "token signature is invalid", err)
	}
	return apperrors.Wrap(apperrors.CodeUnauthenticated, "token is invalid", err)
}
