// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package authz

import (
	"fmt"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/tourguard/internal/metrics"
)

// Built-in role names below the admin role.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// DefaultPolicy returns the built-in policy lines with adminRole at the top
// of the hierarchy.
func DefaultPolicy(adminRole string) []string {
	return []string{
		"p, " + RoleViewer + ", /api/v1/detectors, GET",
		"p, " + RoleOperator + ", /api/v1/detectors/:kind, PUT",
		"p, " + RoleOperator + ", /api/v1/journal/export, GET",
		"p, " + adminRole + ", /api/v1/model/train, POST",
		"p, " + adminRole + ", /api/v1/train, POST",
		"g, " + RoleOperator + ", " + RoleViewer,
		"g, " + adminRole + ", " + RoleOperator,
	}
}

// Config selects the policy source.
type Config struct {
	// PolicyPath is a casbin policy CSV; empty uses DefaultPolicy(AdminRole).
	PolicyPath string
	AdminRole  string
}

// Enforcer answers role/path/method questions for admin routes.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the model and the configured policy.
func NewEnforcer(cfg Config) (*Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var e *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		if _, err := os.Stat(cfg.PolicyPath); err != nil {
			return nil, fmt.Errorf("policy file: %w", err)
		}
		e, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
		if err != nil {
			return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
		}
	} else {
		if cfg.AdminRole == "" {
			return nil, fmt.Errorf("admin role is required for the built-in policy")
		}
		e, err = casbin.NewSyncedEnforcer(m)
		if err != nil {
			return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
		}
		if err := loadPolicyLines(e, DefaultPolicy(cfg.AdminRole)); err != nil {
			return nil, err
		}
	}
	return &Enforcer{enforcer: e}, nil
}

// loadPolicyLines adds "p, sub, obj, act" and "g, member, role" lines.
func loadPolicyLines(e *casbin.SyncedEnforcer, lines []string) error {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := e.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("failed to add policy %q: %w", line, err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := e.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %q: %w", line, err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Allow reports whether role may call method on path.
func (e *Enforcer) Allow(role, path, method string) (bool, error) {
	allowed, err := e.enforcer.Enforce(role, path, method)
	if err != nil {
		err = fmt.Errorf("enforcement failed: %w", err)
	}
	metrics.RecordAuthzDecision(role, allowed, err)
	return allowed, err
}

// RolesFor returns the roles role inherits, including transitively.
func (e *Enforcer) RolesFor(role string) ([]string, error) {
	return e.enforcer.GetImplicitRolesForUser(role)
}
