// Package access holds the report visibility policy.
package access

import (
	"fmt"
	"strings"

	"github.com/joescharf/codereview/internal/models"
)

// CanView reports whether the requester may see a report owned by ownerID.
// Admins see everything; other roles see only their own reports.
func CanView(r models.Requester, ownerID string) bool {
	if r.Role == models.RoleAdmin {
		return true
	}
	return r.UserID != "" && r.UserID == ownerID
}

// CanDelete reports whether the requester may delete a report owned by ownerID.
func CanDelete(r models.Requester, ownerID string) bool {
	return CanView(r, ownerID)
}

// ParseRole converts a role name to a Role. Empty input means a standard user.
func ParseRole(s string) (models.Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "user":
		return models.RoleUser, nil
	case "admin":
		return models.RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role: %s (use: admin, user)", s)
	}
}
