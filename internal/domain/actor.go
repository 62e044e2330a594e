package domain

// Role of an authenticated caller
type Role string

const (
	RoleTourist  Role = "tourist"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Actor is the identity performing an operation
type Actor struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the actor has platform-wide rights
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// SystemActor is used by background jobs such as booking expiry
var SystemActor = Actor{UserID: "system", Role: RoleAdmin}
