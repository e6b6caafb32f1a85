// Package session resolves the caller's session for the admin gate.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is what the admin gate needs to know about a caller.
type Session struct {
	Present bool
	Admin   bool
	Subject string
}

// Resolver reads the session attached to a request. An absent or invalid
// credential yields a zero Session.
type Resolver interface {
	Resolve(r *http.Request) Session
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) Session

func (f ResolverFunc) Resolve(r *http.Request) Session { return f(r) }

const CookieName = "session"

// Claims are the JWT claims of a session token.
type Claims struct {
	jwt.RegisteredClaims
	Admin bool `json:"admin,omitempty"`
}

var ErrNoSecret = errors.New("session secret not configured")

// JWT validates HS256 session tokens from the session cookie or an
// Authorization: Bearer header. Without a secret no session ever resolves.
type JWT struct {
	secret []byte
	now    func() time.Time
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret), now: time.Now}
}

func (j *JWT) Resolve(r *http.Request) Session {
	tokenStr := tokenFromRequest(r)
	if tokenStr == "" {
		return Session{}
	}
	claims, err := j.Validate(tokenStr)
	if err != nil || claims.Subject == "" {
		return Session{}
	}
	return Session{Present: true, Admin: claims.Admin, Subject: claims.Subject}
}

// Validate parses and checks a token string.
func (j *JWT) Validate(tokenStr string) (*Claims, error) {
	if len(j.secret) == 0 {
		return nil, ErrNoSecret
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Issue signs a session token for subject valid for ttl.
func (j *JWT) Issue(subject string, admin bool, ttl time.Duration) (string, error) {
	if len(j.secret) == 0 {
		return "", ErrNoSecret
	}
	now := j.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "certified",
		},
		Admin: admin,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
