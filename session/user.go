package session

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the authenticated principal as reported by /auth/login and
// /auth/me.
type User struct {
	ID    int64  `json:"id"`
	Role  string `json:"role"`
	Name  string `json:"username"`
	Email string `json:"email"`
}

// UnmarshalJSON accepts either "username" or "name" for Name.
func (u *User) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       int64  `json:"id"`
		Role     string `json:"role"`
		Username string `json:"username"`
		Name     string `json:"name"`
		Email    string `json:"email"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*u = User{ID: raw.ID, Role: raw.Role, Name: raw.Username, Email: raw.Email}
	if u.Name == "" {
		u.Name = raw.Name
	}
	return nil
}

// Phase is the externally visible session state.
type Phase int

const (
	Booting Phase = iota
	Anonymous
	Authenticated
)

func (p Phase) String() string {
	switch p {
	case Booting:
		return "booting"
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// State is a point-in-time copy of the session. A non-nil User implies a
// non-empty AccessToken.
type State struct {
	AccessToken   string
	User          *User
	Bootstrapping bool
}

// Phase derives the phase from the held values.
func (s State) Phase() Phase {
	switch {
	case s.Bootstrapping:
		return Booting
	case s.AccessToken != "" && s.User != nil:
		return Authenticated
	}
	return Anonymous
}

// Authenticated reports whether both a token and a user are held.
func (s State) Authenticated() bool { return s.AccessToken != "" && s.User != nil }

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// tokenExpiry reads the exp claim of a JWT-shaped token without verifying
// it. The client cannot verify tokens; the result is advisory only.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
