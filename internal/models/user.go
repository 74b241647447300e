package models

// UserRole tags the caller of every booking operation.
type UserRole string

const (
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Account is the credential view shared by students and teachers.
type Account struct {
	ID           string   `db:"id"`
	Username     string   `db:"username"`
	Email        string   `db:"email"`
	FullName     string   `db:"full_name"`
	PasswordHash string   `db:"password_hash"`
	Role         UserRole `db:"-"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
