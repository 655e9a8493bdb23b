package model

import "time"

type Role string

const (
	RoleMember   Role = "member"
	RoleAdmin    Role = "admin"
	RoleGymOwner Role = "gym_owner"
)

// User is the minimal identity the payment core needs: role and gym association.
type User struct {
	ID        string
	GymID     *string
	Role      Role
	CreatedAt time.Time
}

// Gym links a gym to its owner; the owner's merchant account receives routed funds.
type Gym struct {
	ID      string
	Name    string
	OwnerID string
}
