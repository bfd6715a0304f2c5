package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const AdminContextKey contextKey = "admin"

// AdminClaims are carried by tokens for the admin-only graph endpoint.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

const adminRole = "admin"

// IssueAdminToken signs an HS256 admin token for subject, valid for ttl.
func IssueAdminToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("admin secret is empty")
	}
	now := time.Now()
	claims := &AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateAdminToken parses a token and checks its signature, expiry and role.
func ValidateAdminToken(secret []byte, tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Role != adminRole {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// AdminAuth guards admin routes with bearer tokens.
type AdminAuth struct {
	secret []byte
}

// NewAdminAuth creates the guard. An empty secret rejects every request.
func NewAdminAuth(secret string) *AdminAuth {
	return &AdminAuth{secret: []byte(secret)}
}

// RequireAdmin verifies the Authorization bearer token.
func (a *AdminAuth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.secret) == 0 {
			jsonError(w, http.StatusForbidden, "admin access disabled")
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := ValidateAdminToken(a.secret, token)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), AdminContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetAdminFromContext retrieves the admin claims from the request context.
func GetAdminFromContext(ctx context.Context) *AdminClaims {
	claims, ok := ctx.Value(AdminContextKey).(*AdminClaims)
	if !ok {
		return nil
	}
	return claims
}
