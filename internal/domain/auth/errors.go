package auth

import "errors"

var (
	ErrInvalidToken           = errors.New("invalid or expired token")
	ErrTokenExpired           = errors.New("token has expired")
	ErrMissingUserClaim       = errors.New("token has no user_id claim")
	ErrAdminPrivilegeRequired = errors.New("admin privilege required")
)
