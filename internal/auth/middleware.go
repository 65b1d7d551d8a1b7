// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/logging"
)

type contextKey struct{}

// ClaimsFromContext returns the verified claims, or nil on open routes.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(contextKey{}).(*Claims)
	return c
}

// Authorizer decides whether a role may call method on path.
type Authorizer interface {
	Allow(role, path, method string) (bool, error)
}

// RequireRole returns middleware admitting only bearer tokens whose role is
// role. A nil manager means auth mode "none" and every request passes.
func RequireRole(m *JWTManager, role string) func(http.Handler) http.Handler {
	return require(m, func(w http.ResponseWriter, r *http.Request, claims *Claims) bool {
		if claims.Role != role {
			deny(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role")
			return false
		}
		return true
	})
}

// RequirePermission is RequireRole with the role check delegated to az,
// which sees the request path and method.
func RequirePermission(m *JWTManager, az Authorizer) func(http.Handler) http.Handler {
	return require(m, func(w http.ResponseWriter, r *http.Request, claims *Claims) bool {
		allowed, err := az.Allow(claims.Role, r.URL.Path, r.Method)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Str("role", claims.Role).Msg("authorization check failed")
			deny(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "authorization check failed")
			return false
		}
		if !allowed {
			deny(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role")
			return false
		}
		return true
	})
}

func require(m *JWTManager, check func(http.ResponseWriter, *http.Request, *Claims) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				deny(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "bearer token required")
				return
			}

			claims, err := m.ValidateToken(token)
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("rejected bearer token")
				deny(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}
			if !check(w, r, claims) {
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// deny writes the same error envelope as the api package without importing it.
func deny(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="tourguard"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error": map[string]string{
			"code":       code,
			"message":    message,
			"request_id": logging.RequestIDFromContext(r.Context()),
		},
	})
}
