package models

import "time"

// User represents a signed-in account as the realtime core sees it.
// Password and token material live in the auth layer, not here.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Avatar    string    `json:"avatar" db:"avatar"`
	Role      UserRole  `json:"role" db:"role"`
	Admin     bool      `json:"admin" db:"admin"`
	SpentTime int64     `json:"spent_time" db:"spent_time"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserRole is the account-level role, distinct from per-namespace ownership.
type UserRole string

const (
	RoleStudent    UserRole = "student"
	RoleInstructor UserRole = "instructor"
	RoleAdmin      UserRole = "admin"
)

// DefaultAvatar is substituted when a message is anonymised for students.
const DefaultAvatar = "/images/avatar-default.png"
