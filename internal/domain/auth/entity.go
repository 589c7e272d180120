package auth

// Role is carried in the "role" claim of access tokens.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess   = "access"
	TokenTypeRealtime = "realtime"
)

// UserIDFromClaims extracts the user_id claim.
func UserIDFromClaims(claims map[string]interface{}) (string, error) {
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrMissingUserClaim
	}
	return userID, nil
}

// IsAdmin reports whether the claims carry the admin role.
func IsAdmin(claims map[string]interface{}) bool {
	role, ok := claims["role"].(string)
	return ok && Role(role) == RoleAdmin
}
