// Package auth contains domain-level types for end-user sessions.
// It is pure and free of provider/adapter concerns.
package auth

// User is the minimal identity record the rest of the system needs.
// Values are replaced wholesale; never mutate a User after it is produced.
type User struct {
	ID string `json:"id"`
	// Email is nil when the provider has no email for the account.
	Email *string `json:"email"`
}

// NewUser builds a User, mapping an empty email to the absent value.
func NewUser(id, email string) User {
	u := User{ID: id}
	if email != "" {
		e := email
		u.Email = &e
	}
	return u
}

// EmailOrEmpty returns the email, or "" when absent. Display helper only.
func (u User) EmailOrEmpty() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// HasEmail reports whether the provider supplied an email.
func (u User) HasEmail() bool { return u.Email != nil }

// Equal compares two users by value.
func (u User) Equal(other User) bool {
	if u.ID != other.ID {
		return false
	}
	if u.Email == nil || other.Email == nil {
		return u.Email == nil && other.Email == nil
	}
	return *u.Email == *other.Email
}

// State is the canonical session state held by the session manager.
type State struct {
	// User is nil when nobody is signed in.
	User *User
	// IsLoading is true only while an operation is in flight.
	IsLoading bool
	// Error holds the display message of the last failed attempt; "" means none.
	Error string
}

// IsAuthenticated is derived from User and never stored.
func (s State) IsAuthenticated() bool { return s.User != nil }

// HasError reports whether the last attempt failed.
func (s State) HasError() bool { return s.Error != "" }
