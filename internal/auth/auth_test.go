// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager("test-secret", "tourguard", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNewJWTManagerRequiresSecret(t *testing.T) {
	if _, err := NewJWTManager("", "tourguard", 0); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("err = %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m := newManager(t)
	token, err := m.GenerateToken("ops", "admin")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "ops" || claims.Role != "admin" || claims.Issuer != "tourguard" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	m := newManager(t)

	expired := newManager(t)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, _ := expired.GenerateToken("ops", "admin")

	otherIssuer, _ := NewJWTManager("test-secret", "someone-else", time.Hour)
	wrongIssuer, _ := otherIssuer.GenerateToken("ops", "admin")

	otherSecret, _ := NewJWTManager("other-secret", "tourguard", time.Hour)
	wrongSecret, _ := otherSecret.GenerateToken("ops", "admin")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: "admin"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"expired":      expiredToken,
		"wrong issuer": wrongIssuer,
		"wrong secret": wrongSecret,
		"alg none":     none,
		"garbage":      "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := m.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	m := newManager(t)
	admin, _ := m.GenerateToken("ops", "admin")
	viewer, _ := m.GenerateToken("guide", "viewer")

	var sawClaims *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawClaims = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireRole(m, "admin")(next)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + viewer, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sawClaims = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/detectors", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusNoContent && (sawClaims == nil || sawClaims.Subject != "ops") {
				t.Errorf("claims not in context: %+v", sawClaims)
			}
		})
	}
}

func TestRequireRoleOpenWithoutManager(t *testing.T) {
	h := RequireRole(nil, "admin")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

type stubAuthorizer struct {
	allowed map[string]bool // role+" "+method+" "+path
	err     error
}

func (s stubAuthorizer) Allow(role, path, method string) (bool, error) {
	return s.allowed[role+" "+method+" "+path], s.err
}

func TestRequirePermission(t *testing.T) {
	m := newManager(t)
	viewer, _ := m.GenerateToken("guide", "viewer")
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	az := stubAuthorizer{allowed: map[string]bool{"viewer GET /api/v1/detectors": true}}

	tests := []struct {
		name   string
		az     Authorizer
		method string
		header string
		want   int
	}{
		{"no token", az, http.MethodGet, "", http.StatusUnauthorized},
		{"allowed", az, http.MethodGet, "Bearer " + viewer, http.StatusNoContent},
		{"denied method", az, http.MethodPut, "Bearer " + viewer, http.StatusForbidden},
		{"authorizer error", stubAuthorizer{err: errors.New("boom")}, http.MethodGet, "Bearer " + viewer, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/detectors", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			RequirePermission(m, tt.az)(next).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
