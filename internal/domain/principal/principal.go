package principal

import (
	"encoding/json"
	"fmt"
)

type Role int // user role (admin|supervisor|agent)

const (
	Admin      Role = iota // manages users; sees every camera
	Supervisor             // manages own projects, zones and cameras
	Agent                  // views cameras of assigned projects
)

type CredentialType int // how the principal authenticated (login|session|bearer)

const (
	Login   CredentialType = iota // login form (email/password)
	Session                       // cookie-based session
	Bearer                        // http bearer token
)

func (r Role) String() string {
	switch r {
	case Admin:
		return "admin"
	case Supervisor:
		return "supervisor"
	case Agent:
		return "agent"
	default:
		return "unknown"
	}
}

// ParseRole maps the textual role used in seed files and JSON.
func ParseRole(s string) (Role, error) {
	switch s {
	case "admin":
		return Admin, nil
	case "supervisor":
		return Supervisor, nil
	case "agent":
		return Agent, nil
	default:
		return 0, fmt.Errorf("invalid role: %s", s)
	}
}

// MarshalJSON makes Role serialize as string
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON makes Role deserialize from string
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	role, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// UnmarshalYAML lets seed files spell roles as strings.
func (r *Role) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	role, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

func (t CredentialType) String() string {
	switch t {
	case Login:
		return "login"
	case Session:
		return "session"
	case Bearer:
		return "bearer"
	default:
		return "unknown"
	}
}

type Principal struct {
	ID         string         `json:"id"`   // user id (email)
	Role       Role           `json:"role"` // string marshaled
	Credential CredentialType `json:"-"`
}
