// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package authz decides which JWT roles may call which admin routes, using
// a casbin RBAC model.
//
//	Request -> auth.RequirePermission -> Enforcer.Allow -> Handler
//	              (verify token)          (casbin)
//
// # Model
//
//	[request_definition]
//	r = sub, obj, act
//
//	[policy_definition]
//	p = sub, obj, act
//
//	[role_definition]
//	g = _, _
//
//	[policy_effect]
//	e = some(where (p.eft == allow))
//
//	[matchers]
//	m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
//
// # Built-in Roles
//
//   - viewer: list detectors
//   - operator: viewer, plus detector reconfiguration and journal export
//   - admin (security.admin_role): operator, plus model training
//
// A policy CSV at security.policy_path replaces the built-in policy.
package authz
