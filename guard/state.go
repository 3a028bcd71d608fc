package guard

import "time"

// Phase is the controller's position in the session state machine.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseValidating
	PhaseAuthenticated
	PhaseAnonymous
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseValidating:
		return "validating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// User is the identity carried by a validated session.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username,omitempty"`
	Name        string `json:"name,omitempty"`
	AccessLevel int    `json:"access_level"`
}

// Snapshot is the client auth state. An authenticated snapshot always carries
// a user with AccessLevel >= 1.
type Snapshot struct {
	IsAuthenticated bool      `json:"is_authenticated"`
	IsValidating    bool      `json:"is_validating"`
	IsInitialized   bool      `json:"is_initialized"`
	User            *User     `json:"user,omitempty"`
	LastValidated   time.Time `json:"last_validated,omitempty"`
}

// Phase derives the state machine position from the snapshot flags.
func (s Snapshot) Phase() Phase {
	switch {
	case s.IsValidating:
		return PhaseValidating
	case !s.IsInitialized:
		return PhaseUninitialized
	case s.IsAuthenticated:
		return PhaseAuthenticated
	default:
		return PhaseAnonymous
	}
}

// Session returns Authenticated when the snapshot holds a usable identity and
// Anonymous otherwise.
func (s Snapshot) Session() Session {
	if s.IsAuthenticated && s.User != nil && s.User.AccessLevel >= 1 {
		return Authenticated{User: *s.User}
	}
	return Anonymous{}
}

func (s Snapshot) clone() Snapshot {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func authenticatedSnapshot(u User, at time.Time) Snapshot {
	return Snapshot{
		IsAuthenticated: true,
		IsInitialized:   true,
		User:            &u,
		LastValidated:   at,
	}
}

func anonymousSnapshot() Snapshot {
	return Snapshot{IsInitialized: true}
}

// Session is either Authenticated or Anonymous.
type Session interface {
	session()
}

// Authenticated is a session with a known user.
type Authenticated struct {
	User User
}

// Anonymous is the absence of a session.
type Anonymous struct{}

func (Authenticated) session() {}
func (Anonymous) session()     {}
