// Package grade resolves Discord guild roles to a single judiciary
// grade. The mapping table is configuration, never compiled-in logic.
package grade

import "github.com/zealess/doj-backend/internal/config"

// Unranked means the member holds none of the mapped roles. It is
// distinct from "not linked": an unranked account still carries a
// Discord link.
const Unranked = ""

// Resolve returns the highest grade whose role id appears in roleIDs.
// The table is ordered by descending precedence, so the first hit wins.
// Resolution is deterministic: it iterates the table, never the set.
func Resolve(roleIDs []string, table []config.RoleMapping) string {
	if len(roleIDs) == 0 || len(table) == 0 {
		return Unranked
	}

	held := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		held[id] = true
	}

	for _, mapping := range table {
		if held[mapping.RoleID] {
			return mapping.Grade
		}
	}
	return Unranked
}

// Allowed reports whether the grade belongs to the closed allow-list.
// Grades are not numerically comparable; only membership counts.
func Allowed(grade string, allowList []string) bool {
	if grade == Unranked {
		return false
	}
	for _, allowed := range allowList {
		if grade == allowed {
			return true
		}
	}
	return false
}
