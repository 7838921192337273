package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/filing-engine/filing"
)

const tokenIssuer = "filing-engine"

// Claims are the JWT claims carrying the acting principal.
type Claims struct {
	UserID string      `json:"user_id"`
	Role   filing.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 principal tokens. Credential checks
// happen elsewhere; this only turns a known principal into a bearer token
// and back.
type TokenIssuer struct {
	secretKey  []byte
	expiration time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secretKey string, expiration time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secretKey:  []byte(secretKey),
		expiration: expiration,
		now:        time.Now,
	}
}

// Issue signs a token for p.
func (t *TokenIssuer) Issue(p filing.Principal) (string, error) {
	if p.ID == "" || !p.Role.Valid() {
		return "", fmt.Errorf("cannot issue token for principal %q with role %q", p.ID, p.Role)
	}
	now := t.now()
	claims := Claims{
		UserID: string(p.ID),
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   string(p.ID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns the principal it names.
func (t *TokenIssuer) Validate(tokenString string) (filing.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secretKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(t.now))
	if err != nil {
		return filing.Principal{}, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return filing.Principal{}, errors.New("invalid token")
	}
	p := filing.Principal{ID: filing.UserID(claims.UserID), Role: claims.Role}
	if p.ID == "" || !p.Role.Valid() {
		return filing.Principal{}, fmt.Errorf("token names unknown principal %q with role %q", p.ID, p.Role)
	}
	return p, nil
}

// ExtractToken extracts the token from an "Authorization: Bearer <token>" header.
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header is empty")
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", errors.New("invalid authorization header format")
	}
	return strings.TrimSpace(token), nil
}

// =============================================================================
// CONTEXT
// =============================================================================

type contextKey string

const principalContextKey contextKey = "principal"

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p filing.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFrom returns the principal stored by RequirePrincipal.
func PrincipalFrom(ctx context.Context) (filing.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(filing.Principal)
	return p, ok
}

// RequirePrincipal rejects requests without a valid bearer token and stores
// the resolved principal in the request context.
func RequirePrincipal(tokens *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ExtractToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Authentication required", nil)
				return
			}
			p, err := tokens.Validate(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
