package domain

import "time"

// Role es el rol de aplicacion derivado para un usuario autenticado.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// User es el principal ya resuelto (rol, perfil y verificacion).
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	DisplayName   string    `json:"display_name"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

func (u User) IsMember() bool { return u.Role == RoleMember }
