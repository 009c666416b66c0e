package domain

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

// Role flags a user's portal access.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

// User is a platform account.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u" json:"-"`

	ID              int64      `bun:"id,pk,autoincrement" json:"id"`
	Email           string     `bun:"email,notnull" json:"email"`
	Username        string     `bun:"username,notnull" json:"username"`
	FirstName       string     `bun:"first_name,notnull" json:"first_name"`
	LastName        string     `bun:"last_name,notnull" json:"last_name"`
	Bio             string     `bun:"bio,notnull" json:"bio"`
	PasswordHash    string     `bun:"password_hash,notnull" json:"-"`
	Role            Role       `bun:"role,notnull" json:"role"`
	IsEmailVerified bool       `bun:"is_email_verified,notnull" json:"is_email_verified"`
	IsActive        bool       `bun:"is_active,notnull" json:"is_active"`
	LastLoginAt     *time.Time `bun:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// IsStaff reports whether the user may author quizzes and courses.
func (u User) IsStaff() bool { return u.Role == RoleInstructor || u.Role == RoleAdmin }

// DisplayName prefers the full name and falls back to the username.
func (u User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full == "" {
		return u.Username
	}
	return full
}

// SetPassword hashes and stores pwd.
func (u *User) SetPassword(pwd string, cost int) error {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), cost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares pwd against the stored hash.
func (u User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(pwd))
}

// TokenPurpose scopes a one-time user token.
type TokenPurpose string

const (
	TokenEmailVerification TokenPurpose = "email_verification"
	TokenPasswordReset     TokenPurpose = "password_reset"
)

// UserToken is a one-time token; only the SHA-256 hash of the secret is stored.
type UserToken struct {
	bun.BaseModel `bun:"table:user_tokens,alias:ut"`

	ID        int64        `bun:"id,pk,autoincrement"`
	UserID    int64        `bun:"user_id,notnull"`
	Purpose   TokenPurpose `bun:"purpose,notnull"`
	TokenHash string       `bun:"token_hash,notnull"`
	ExpiresAt time.Time    `bun:"expires_at,notnull"`
	UsedAt    *time.Time   `bun:"used_at"`
	CreatedAt time.Time    `bun:"created_at,notnull"`
}

// Usable reports whether the token can still be consumed at now.
func (t UserToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
