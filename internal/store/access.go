// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

// Resource is any catalog entry guarded by an active flag and a minimum role.
type Resource interface {
	AccessPolicy() (active bool, minRole Role)
}

// IsAuthorized reports whether user may use r. Inactive resources are denied
// to everyone. Privileged users reach every active resource; standard users
// only those whose minimum role is standard. Unknown roles are denied.
func IsAuthorized(user User, r Resource) bool {
	if r == nil {
		return false
	}
	active, minRole := r.AccessPolicy()
	if !active {
		return false
	}

	switch user.Role {
	case RolePrivileged:
		return true
	case RoleStandard:
		return minRole == RoleStandard
	default:
		return false
	}
}

// FilterAuthorized returns the subset of items user may access, preserving order.
func FilterAuthorized[T Resource](user User, items []T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if IsAuthorized(user, it) {
			out = append(out, it)
		}
	}
	return out
}
