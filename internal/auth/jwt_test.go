package auth

import (
	"testing"
	"time"

	"quiz-platform/internal/domain"
)

func TestIssueAndParse(t *testing.T) {
	m, err := NewManager(Config{Secret: "s3cret", Issuer: "quiz-platform"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	pair, err := m.Issue(domain.User{ID: 42, Role: domain.RoleInstructor})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Parse(pair.AccessToken)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if id, _ := claims.UserID(); id != 42 {
		t.Fatalf("expected subject 42, got %s", claims.Subject)
	}
	if claims.Role != domain.RoleInstructor {
		t.Fatalf("expected instructor role, got %s", claims.Role)
	}

	id, err := m.ParseRefresh(pair.RefreshToken)
	if err != nil || id != 42 {
		t.Fatalf("parse refresh: id=%d err=%v", id, err)
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	m, _ := NewManager(Config{Secret: "s3cret"})
	pair, err := m.Issue(domain.User{ID: 7, Role: domain.RoleStudent})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(pair.RefreshToken); err == nil {
		t.Fatalf("refresh token accepted as access token")
	}
	if _, err := m.ParseRefresh(pair.AccessToken); err == nil {
		t.Fatalf("access token accepted as refresh token")
	}
}

func TestRejectsExpiredAndForeignTokens(t *testing.T) {
	m, _ := NewManager(Config{Secret: "s3cret", AccessTTL: time.Minute})
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	pair, err := m.Issue(domain.User{ID: 1})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(pair.AccessToken); err == nil {
		t.Fatalf("expired token accepted")
	}

	other, _ := NewManager(Config{Secret: "other"})
	fresh, _ := other.Issue(domain.User{ID: 1})
	if _, err := m.Parse(fresh.AccessToken); err == nil {
		t.Fatalf("token signed with another key accepted")
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Fatalf("expected error without secret")
	}
}
