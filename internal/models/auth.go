package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials and the role the caller signs in as.
type LoginRequest struct {
	Role     UserRole `json:"role" validate:"required,oneof=TEACHER STUDENT"`
	Username string   `json:"username" validate:"required"`
	Password string   `json:"password" validate:"required"`
}

// LoginResponse returns the issued access token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}

// JWTClaims is the access token payload and the actor passed into services.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Username string   `json:"username"`
	jwt.RegisteredClaims
}

// IsTeacher reports whether the actor signed in as a teacher.
func (c *JWTClaims) IsTeacher() bool {
	return c != nil && c.Role == RoleTeacher
}

// IsStudent reports whether the actor signed in as a student.
func (c *JWTClaims) IsStudent() bool {
	return c != nil && c.Role == RoleStudent
}
