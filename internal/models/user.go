package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles ordered from least to most privileged
// The order is used for authorization threshold checks
const (
	RoleUnregistered Role = "UNREGISTERED"
	RoleRegistered   Role = "REGISTERED"
	RoleOwner        Role = "OWNER"
	RoleSuperadmin   Role = "SUPERADMIN"
)

type Role string

var roleRank = map[Role]int{
	RoleUnregistered: 0,
	RoleRegistered:   1,
	RoleOwner:        2,
	RoleSuperadmin:   3,
}

// Valid reports whether the role is one of the known values
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether the role meets the required threshold
// Unknown roles rank below every known one
func (r Role) AtLeast(required Role) bool {
	return roleRank[r] >= roleRank[required]
}

type User struct {
	ID             uuid.UUID
	Email          string
	HashedPassword string
	Role           Role
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
