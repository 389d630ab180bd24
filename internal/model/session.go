package model

import (
	"encoding/json"
	"fmt"
)

// User is the authenticated member, as reported by the session endpoint.
type User struct {
	// ID is the member identifier.
	ID string `json:"id"`

	// Name is the member's display name.
	Name string `json:"name"`

	// Email is the member's primary email address.
	Email string `json:"email"`
}

// Session is the session endpoint payload. The wire format is
// {"user": {...}} for an authenticated member and {"user": false} for an
// anonymous visitor; User is nil in the anonymous case.
type Session struct {
	User *User
}

// Anonymous reports whether the session carries no authenticated user.
func (s *Session) Anonymous() bool {
	return s == nil || s.User == nil
}

// UnmarshalJSON accepts both the object and the literal-false forms of the
// user field.
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing session payload: %w", err)
	}

	if len(raw.User) == 0 || string(raw.User) == "false" || string(raw.User) == "null" {
		s.User = nil
		return nil
	}

	var user User
	if err := json.Unmarshal(raw.User, &user); err != nil {
		return fmt.Errorf("parsing session user: %w", err)
	}
	s.User = &user
	return nil
}
