package auth

// Scopes accepted on admin service tokens.
const (
	ScopeAdminUsers = "admin:users"
)
