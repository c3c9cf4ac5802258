package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Rrens/chat-relay/internal/api/response"
	"github.com/Rrens/chat-relay/internal/domain"
	"github.com/Rrens/chat-relay/internal/repository/redis"
	"github.com/Rrens/chat-relay/internal/security"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	PrincipalKey contextKey = "principal"
	serviceKey   contextKey = "service"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	jwtManager   *security.JWTManager
	serviceToken string
}

// NewAuthMiddleware creates a new auth middleware. A non-empty serviceToken is accepted by
// AuthenticateService in place of a user token.
func NewAuthMiddleware(jwtManager *security.JWTManager, serviceToken string) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager, serviceToken: serviceToken}
}

func bearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "missing authorization header"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", "invalid authorization header format"
	}
	return parts[1], ""
}

// Authenticate validates the JWT token
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, problem := bearerToken(r)
		if problem != "" {
			response.Unauthorized(w, problem)
			return
		}

		claims, err := m.jwtManager.ValidateAccessToken(token)
		if err != nil {
			response.Unauthorized(w, "invalid or expired token: "+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalKey, claims.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthenticateService accepts the configured service token or a user JWT
func (m *AuthMiddleware) AuthenticateService(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, problem := bearerToken(r)
		if problem != "" {
			response.Unauthorized(w, problem)
			return
		}

		if security.TokenEquals(token, m.serviceToken) {
			ctx := context.WithValue(r.Context(), serviceKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		claims, err := m.jwtManager.ValidateAccessToken(token)
		if err != nil {
			response.Unauthorized(w, "invalid or expired token: "+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalKey, claims.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal gets the authenticated principal from context
func GetPrincipal(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(domain.Principal)
	return p, ok
}

// IsService reports whether the request was authenticated with the service token
func IsService(ctx context.Context) bool {
	ok, _ := ctx.Value(serviceKey).(bool)
	return ok
}

// RateLimitMiddleware handles rate limiting
type RateLimitMiddleware struct {
	rateLimiter *redis.RateLimiter
}

// NewRateLimitMiddleware creates a new rate limit middleware. A nil limiter lets every
// request through.
func NewRateLimitMiddleware(rateLimiter *redis.RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{rateLimiter: rateLimiter}
}

// Limit applies the scope's rate limit per principal, or per client address for service calls
func (m *RateLimitMiddleware) Limit(scope redis.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.rateLimiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := r.RemoteAddr
			if p, ok := GetPrincipal(r.Context()); ok {
				key = p.ID.String()
			}

			decision, err := m.rateLimiter.Allow(r.Context(), scope, key)
			if err != nil {
				log.Warn().Err(err).Str("key", key).Str("scope", string(scope)).Msg("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			if decision.Remaining >= 0 {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
				w.Header().Set("X-RateLimit-Reset", decision.Reset.UTC().Format(time.RFC3339))
			}

			if !decision.Allowed {
				response.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
