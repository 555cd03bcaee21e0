// Package rbac implements the coarse role-based gating named in spec.md §9:
// a capability predicate injected into services, rather than role checks
// scattered through handlers, so permission paths are exercised deterministically
// in tests.
package rbac

import "github.com/agentlightning/promptctl/pkg/models"

// CanDeployOrApprove reports whether a reviewer's role may approve, deploy,
// or roll back a version. Only developer and admin roles qualify.
func CanDeployOrApprove(role models.Role) bool {
	return role.CanApprove()
}

// IsAdmin reports whether the role is admin, the only role autoRollback may
// act as when no human actor is supplied.
func IsAdmin(role models.Role) bool {
	return role == models.RoleAdmin
}
