package domain

// Role is the caller's relationship to the sale.
type Role int

const (
	// RoleUnknown means no signer is attached or discovery has not finished.
	RoleUnknown Role = iota
	// RoleAdministrator means the signer's own sale record exists and names them admin.
	RoleAdministrator
	// RoleAdministratorCandidate means no sale exists yet; the signer would become
	// admin by initializing one. Nothing is persisted until that happens.
	RoleAdministratorCandidate
	// RoleBuyer means a sale exists under a different admin.
	RoleBuyer
)

// String returns the string representation of Role.
func (r Role) String() string {
	switch r {
	case RoleAdministrator:
		return "ADMINISTRATOR"
	case RoleAdministratorCandidate:
		return "ADMINISTRATOR_CANDIDATE"
	case RoleBuyer:
		return "BUYER"
	default:
		return "UNKNOWN"
	}
}

// IsAdministrator reports whether the role grants administrative actions.
func (r Role) IsAdministrator() bool {
	return r == RoleAdministrator || r == RoleAdministratorCandidate
}
