package auth

// Role represents a caller role.
type Role string

const (
	RoleViewer    Role = "viewer"
	RoleTrader    Role = "trader"
	RoleGateway   Role = "gateway"
	RoleAuthority Role = "authority"
	RoleAdmin     Role = "admin"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleViewer, RoleTrader, RoleGateway, RoleAuthority, RoleAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

// RoleAllowed reports whether role satisfies any of the allowed roles.
// Admin passes every check, and every authenticated role satisfies viewer.
func RoleAllowed(role Role, allowed ...Role) bool {
	if role == RoleAdmin {
		return true
	}
	for _, a := range allowed {
		if role == a {
			return true
		}
		if a == RoleViewer && role != "" {
			return true
		}
	}
	return false
}
