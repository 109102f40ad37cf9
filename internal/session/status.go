package session

import (
	"encoding/json"
	"fmt"
)

// Status is the coarse authentication state.
type Status int

const (
	StatusIdle Status = iota
	StatusAuthenticating
	StatusAuthenticated
	StatusError
)

var statusNames = map[Status]string{
	StatusIdle:           "idle",
	StatusAuthenticating: "authenticating",
	StatusAuthenticated:  "authenticated",
	StatusError:          "error",
}

var statusFromName = map[string]Status{
	"idle":           StatusIdle,
	"authenticating": StatusAuthenticating,
	"authenticated":  StatusAuthenticated,
	"error":          StatusError,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, ok := statusFromName[n]
	if !ok {
		return fmt.Errorf("unknown session status %q", n)
	}
	*s = v
	return nil
}
