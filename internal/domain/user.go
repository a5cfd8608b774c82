package domain

import (
	"fmt"
	"time"
)

// Role is the coarse permission class of an account.
type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// ParseRole validates s against the known roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleManager, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// User is the domain entity for a user account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor is the authenticated identity behind one request.
type Actor struct {
	UserID string
	Role   Role
}

// Actor returns the identity u acts as.
func (u User) Actor() Actor {
	return Actor{UserID: u.ID, Role: u.Role}
}
