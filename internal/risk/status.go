package risk

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidStatus is wrapped by every status parse or decode failure.
var ErrInvalidStatus = errors.New("invalid status")

// Status is the risk classification of an address. The zero value is PASS.
// Values are ordered by severity so escalation can be computed with max.
type Status uint8

const (
	StatusPass Status = iota
	StatusWarning
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarning:
		return "WARNING"
	case StatusFail:
		return "FAIL"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// ParseStatus accepts PASS, WARNING or FAIL in any letter case. An empty
// string parses as PASS.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "PASS":
		return StatusPass, nil
	case "WARNING":
		return StatusWarning, nil
	case "FAIL":
		return StatusFail, nil
	default:
		return StatusPass, fmt.Errorf("%w %q", ErrInvalidStatus, s)
	}
}

// escalate returns the more severe of s and to.
func (s Status) escalate(to Status) Status {
	if to > s {
		return to
	}
	return s
}

func (s Status) MarshalJSON() ([]byte, error) {
	if s > StatusFail {
		return nil, fmt.Errorf("marshal status: %v", s)
	}
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = StatusPass
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, b)
	}
	v, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
