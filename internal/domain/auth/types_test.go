package auth

import (
	"testing"
)

func TestNewUser_EmptyEmailIsAbsent(t *testing.T) {
	u := NewUser("u1", "")
	if u.Email != nil {
		t.Fatalf("expected absent email, got %q", *u.Email)
	}
	if u.HasEmail() {
		t.Fatalf("did not expect email")
	}
	if u.EmailOrEmpty() != "" {
		t.Fatalf("expected empty display email")
	}
}

func TestNewUser_WithEmail(t *testing.T) {
	u := NewUser("u1", "a@b.com")
	if !u.HasEmail() || *u.Email != "a@b.com" {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestUser_Equal(t *testing.T) {
	a := NewUser("1", "a@b.com")
	b := NewUser("1", "a@b.com")
	if !a.Equal(b) {
		t.Fatalf("expected equal users")
	}
	if a.Equal(NewUser("1", "")) {
		t.Fatalf("absent email must not equal present email")
	}
	if !NewUser("2", "").Equal(NewUser("2", "")) {
		t.Fatalf("expected equal users without email")
	}
	if a.Equal(NewUser("2", "a@b.com")) {
		t.Fatalf("different ids must not be equal")
	}
}

func TestState_IsAuthenticatedDerived(t *testing.T) {
	var s State
	if s.IsAuthenticated() {
		t.Fatalf("zero state must be anonymous")
	}
	u := NewUser("1", "a@b.com")
	s.User = &u
	if !s.IsAuthenticated() {
		t.Fatalf("expected authenticated state")
	}
	if s.HasError() {
		t.Fatalf("did not expect error")
	}
}
