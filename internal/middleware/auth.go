package middleware

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/palstack/assesshub/internal/models"
)

type contextKey string

const claimsKey contextKey = "authClaims"

// Claims is the verified token payload attached to the request context.
type Claims struct {
	UID   string      `json:"uid"`
	Role  models.Role `json:"role"`
	LabID string      `json:"lab_id,omitempty"`
	Email string      `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTSecret returns the signing secret. The dev fallback keeps local runs
// working; production must set ASSESSHUB_JWT_SECRET.
func JWTSecret() []byte {
	if s := os.Getenv("ASSESSHUB_JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("assesshub-dev-secret")
}

// SignToken issues an HS256 token for the user.
func SignToken(uid string, role models.Role, labID, email string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UID:   uid,
		Role:  role,
		LabID: labID,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   uid,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(JWTSecret())
}

func parseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return JWTSecret(), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// WithAuth attaches verified claims to the context when a bearer token is
// present. Requests without a token pass through as anonymous; requests
// with an invalid token are rejected.
func WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")
		claims, err := parseToken(raw)
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// ClaimsFromContext returns the verified claims, or nil for anonymous
// requests.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// RequireAuth rejects anonymous requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ClaimsFromContext(r.Context()) == nil {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
