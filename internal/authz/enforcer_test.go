// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package authz

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/tourguard/internal/metrics"
)

func setupEnforcer(t *testing.T, cfg Config) *Enforcer {
	t.Helper()
	e, err := NewEnforcer(cfg)
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}
	return e
}

func TestDefaultPolicy(t *testing.T) {
	e := setupEnforcer(t, Config{AdminRole: "admin"})

	tests := []struct {
		role, path, method string
		want               bool
	}{
		{"viewer", "/api/v1/detectors", "GET", true},
		{"viewer", "/api/v1/detectors/anomaly", "PUT", false},
		{"viewer", "/api/v1/journal/export", "GET", false},
		{"operator", "/api/v1/detectors", "GET", true},
		{"operator", "/api/v1/detectors/anomaly", "PUT", true},
		{"operator", "/api/v1/journal/export", "GET", true},
		{"operator", "/api/v1/model/train", "POST", false},
		{"admin", "/api/v1/model/train", "POST", true},
		{"admin", "/api/v1/train", "POST", true},
		{"admin", "/api/v1/detectors/route_deviation", "PUT", true},
		{"admin", "/api/v1/detectors", "DELETE", false},
		{"tourist", "/api/v1/detectors", "GET", false},
		{"", "/api/v1/detectors", "GET", false},
	}
	for _, tt := range tests {
		t.Run(tt.role+" "+tt.method+" "+tt.path, func(t *testing.T) {
			got, err := e.Allow(tt.role, tt.path, tt.method)
			if err != nil {
				t.Fatalf("Allow() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Allow(%q, %q, %q) = %v, want %v", tt.role, tt.path, tt.method, got, tt.want)
			}
		})
	}
}

func TestCustomAdminRole(t *testing.T) {
	e := setupEnforcer(t, Config{AdminRole: "safety-lead"})

	if ok, _ := e.Allow("safety-lead", "/api/v1/model/train", "POST"); !ok {
		t.Error("custom admin role should train")
	}
	if ok, _ := e.Allow("admin", "/api/v1/model/train", "POST"); ok {
		t.Error("literal admin should not be privileged when the admin role is renamed")
	}

	roles, err := e.RolesFor("safety-lead")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(roles)
	if len(roles) != 2 || roles[0] != RoleOperator || roles[1] != RoleViewer {
		t.Errorf("RolesFor = %v", roles)
	}
}

func TestPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.csv")
	policy := "p, auditor, /api/v1/journal/export, GET\n"
	if err := os.WriteFile(path, []byte(policy), 0o600); err != nil {
		t.Fatal(err)
	}

	e := setupEnforcer(t, Config{PolicyPath: path, AdminRole: "admin"})
	if ok, _ := e.Allow("auditor", "/api/v1/journal/export", "GET"); !ok {
		t.Error("auditor should export per file policy")
	}
	if ok, _ := e.Allow("admin", "/api/v1/model/train", "POST"); ok {
		t.Error("file policy replaces the built-in policy")
	}
}

func TestNewEnforcerErrors(t *testing.T) {
	if _, err := NewEnforcer(Config{}); err == nil {
		t.Error("empty admin role should fail")
	}
	if _, err := NewEnforcer(Config{PolicyPath: filepath.Join(t.TempDir(), "missing.csv")}); err == nil {
		t.Error("missing policy file should fail")
	}
}

func TestLoadPolicyLinesRejectsMalformed(t *testing.T) {
	e := setupEnforcer(t, Config{AdminRole: "admin"})
	if err := loadPolicyLines(e.enforcer, []string{"# comment", "", "p, only-two"}); err == nil {
		t.Error("malformed line should fail")
	}
}

func TestAllowRecordsMetrics(t *testing.T) {
	e := setupEnforcer(t, Config{AdminRole: "metrics-admin"})

	allow := metrics.AuthzDecisions.WithLabelValues("metrics-admin", "allow")
	deny := metrics.AuthzDecisions.WithLabelValues("metrics-admin", "deny")
	beforeAllow, beforeDeny := testutil.ToFloat64(allow), testutil.ToFloat64(deny)

	_, _ = e.Allow("metrics-admin", "/api/v1/train", "POST")
	_, _ = e.Allow("metrics-admin", "/api/v1/train", "GET")

	if got := testutil.ToFloat64(allow) - beforeAllow; got != 1 {
		t.Errorf("allow delta = %v", got)
	}
	if got := testutil.ToFloat64(deny) - beforeDeny; got != 1 {
		t.Errorf("deny delta = %v", got)
	}
}
