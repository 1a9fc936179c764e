package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ayo6706/wallet-ledger/internal/api/problem"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	traceContextKey     contextKey = "trace_id"
)

// Principal is the authenticated caller of a wallet API request.
type Principal struct {
	UserID uuid.UUID
	Role   string
}

var (
	authMu      sync.RWMutex
	jwtSecret   []byte
	jwtIssuer   string
	jwtAudience string
)

type authClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func SetJWTSecret(secret string) {
	if secret == "" {
		return
	}
	authMu.Lock()
	jwtSecret = []byte(secret)
	authMu.Unlock()
}

func SetJWTValidation(issuer, audience string) {
	authMu.Lock()
	jwtIssuer = strings.TrimSpace(issuer)
	jwtAudience = strings.TrimSpace(audience)
	authMu.Unlock()
}

func JWTSecret() []byte {
	authMu.RLock()
	defer authMu.RUnlock()
	clone := make([]byte, len(jwtSecret))
	copy(clone, jwtSecret)
	return clone
}

func JWTIssuer() string {
	authMu.RLock()
	defer authMu.RUnlock()
	return jwtIssuer
}

func JWTAudience() string {
	authMu.RLock()
	defer authMu.RUnlock()
	return jwtAudience
}

func unauthorized(w http.ResponseWriter, r *http.Request, slug, detail string) {
	problem.Write(w, r, http.StatusUnauthorized, problem.Type(slug), http.StatusText(http.StatusUnauthorized), detail)
}

// AuthMiddleware validates the bearer token and stores the Principal in the context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, r, "auth/authorization-header-required", "Authorization header required")
			return
		}
		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenString == "" {
			unauthorized(w, r, "auth/invalid-token-format", "Invalid token format")
			return
		}

		secret := JWTSecret()
		if len(secret) == 0 {
			problem.Write(w, r, http.StatusInternalServerError, problem.Type("auth/misconfigured"), http.StatusText(http.StatusInternalServerError), "auth is not configured")
			return
		}

		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
		if iss := JWTIssuer(); iss != "" {
			opts = append(opts, jwt.WithIssuer(iss))
		}
		if aud := JWTAudience(); aud != "" {
			opts = append(opts, jwt.WithAudience(aud))
		}

		claims := &authClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
			}
			return secret, nil
		}, opts...)
		if err != nil || !token.Valid {
			unauthorized(w, r, "auth/invalid-token", "Invalid token")
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil || (claims.Subject != "" && claims.Subject != claims.UserID) {
			unauthorized(w, r, "auth/invalid-token-claims", "Invalid token claims")
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, Principal{UserID: userID, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole ensures the authenticated user has the required role.
func RequireRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || p.Role != requiredRole {
				problem.Write(w, r, http.StatusForbidden, problem.Type("auth/insufficient-permissions"), http.StatusText(http.StatusForbidden), "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

// UserIDFromContext returns the authenticated user ID, or "" outside an authenticated route.
func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID.String()
	}
	return ""
}

func UserRoleFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceContextKey).(string); ok {
		return v
	}
	return ""
}
