package libsys

import (
	"fmt"
	"maps"
)

// State is the position of a session in the login protocol.
type State int

const (
	StateUnauthenticated State = iota
	StateCaptchaIssued
	StateVerified
	StateIdentityPending
	StateActive
)

var stateNames = []string{
	StateUnauthenticated: "unauthenticated",
	StateCaptchaIssued:   "captcha_issued",
	StateVerified:        "verified",
	StateIdentityPending: "identity_pending",
	StateActive:          "active",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("unknown session state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", string(text))
}

// Session is everything the portal needs to recognize a caller. It is a value:
// operations never modify the session they are given, the ones that advance
// the protocol hand back a new one that the caller must store and replay.
type Session struct {
	Cookies   map[string]string `json:"cookies"`
	State     State             `json:"state"`
	CsrfToken string            `json:"csrf_token,omitempty"`
	// Sca is the scramble alphabet of the current login attempt.
	Sca string `json:"sca,omitempty"`
}

// NewSession is the empty session a login starts from.
func NewSession() Session {
	return Session{Cookies: map[string]string{}}
}

// ResumeSession wraps cookies stored by a caller as an active session.
func ResumeSession(cookies map[string]string) Session {
	return Session{Cookies: maps.Clone(cookies), State: StateActive}
}

func (s Session) with(state State, cookies map[string]string) Session {
	next := s
	next.State = state
	next.Cookies = maps.Clone(cookies)
	if next.Cookies == nil {
		next.Cookies = map[string]string{}
	}
	if state != StateCaptchaIssued {
		next.CsrfToken = ""
		next.Sca = ""
	}
	return next
}

// Challenge is a captcha paired with the session that produced it.
type Challenge struct {
	Session Session `json:"session"`
	// CaptchaImage is base64 encoded by encoding/json.
	CaptchaImage []byte `json:"captcha_pic"`
	CaptchaType  string `json:"captcha_type"`
}

// Credentials is a single login attempt against the session of a challenge.
type Credentials struct {
	Session       Session `json:"session"`
	AccountNumber string  `json:"number"`
	Password      string  `json:"password"`
	Captcha       string  `json:"captcha"`
}

// IdentityOutcome is the payload of a completed identity verification.
type IdentityOutcome struct {
	// Reauthenticate is always true: the new password only takes effect on a fresh login.
	Reauthenticate bool    `json:"reauthenticate"`
	Session        Session `json:"session"`
}
