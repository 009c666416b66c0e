package app

import (
	"time"

	"quiz-platform/internal/domain"
)

// Actor is the authenticated caller of a use case.
type Actor struct {
	UserID int64
	Role   domain.Role
}

func (a Actor) IsAdmin() bool { return a.Role == domain.RoleAdmin }

func (a Actor) IsStaff() bool { return a.Role == domain.RoleInstructor || a.Role == domain.RoleAdmin }

// CanManage reports whether the actor may modify content owned by ownerID.
func (a Actor) CanManage(ownerID int64) bool {
	return a.IsAdmin() || (a.IsStaff() && a.UserID == ownerID)
}

// CanRead reports whether the actor may read a record belonging to ownerID.
func (a Actor) CanRead(ownerID int64) bool {
	return a.UserID == ownerID || a.IsStaff()
}

func requireStaff(a Actor) error {
	if !a.IsStaff() {
		return domain.ErrForbidden
	}
	return nil
}

func requireAdmin(a Actor) error {
	if !a.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func orNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

func ptrTime(t time.Time) *time.Time { return &t }

func ptrInt64(v int64) *int64 { return &v }
