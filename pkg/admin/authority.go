package admin

import "fmt"

// AuthorityLevel is the ownership level the platform grants the agent.
type AuthorityLevel int

const (
	AuthorityNone AuthorityLevel = iota
	AuthorityProfileOwner
	AuthorityDeviceOwner
)

func (l AuthorityLevel) String() string {
	switch l {
	case AuthorityProfileOwner:
		return "profile_owner"
	case AuthorityDeviceOwner:
		return "device_owner"
	default:
		return "none"
	}
}

// Privileged reports whether the level permits privileged policy commands.
func (l AuthorityLevel) Privileged() bool {
	return l == AuthorityProfileOwner || l == AuthorityDeviceOwner
}

func (l AuthorityLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *AuthorityLevel) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*l = AuthorityNone
	case "profile_owner":
		*l = AuthorityProfileOwner
	case "device_owner":
		*l = AuthorityDeviceOwner
	default:
		return fmt.Errorf("unknown authority level %q", text)
	}
	return nil
}

// AdminState tracks whether the admin component is activated.
type AdminState int

const (
	StateInactive AdminState = iota
	StateActive
)

func (s AdminState) String() string {
	if s == StateActive {
		return "active"
	}
	return "inactive"
}

func (s AdminState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AdminState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "inactive":
		*s = StateInactive
	case "active":
		*s = StateActive
	default:
		return fmt.Errorf("unknown admin state %q", text)
	}
	return nil
}
