package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// AttentionFlag marks a specific kind of date/quantity discrepancy on a line
// that needs human review.
type AttentionFlag string

const (
	// AttentionR1 is set when the request date precedes the confirmed date.
	AttentionR1 AttentionFlag = "R1"
	// AttentionR3 is set when the planner-confirmed quantity and the
	// ERP-confirmed quantity both exist and disagree.
	AttentionR3 AttentionFlag = "R3"
	// AttentionR4 is set on export orders when the promised ship date
	// precedes the line's confirmed date.
	AttentionR4 AttentionFlag = "R4"
	// AttentionR5 is set when the planner confirmation step failed after the
	// ERP accepted the update. Cleared only by manual remediation.
	AttentionR5 AttentionFlag = "R5"
)

// AttentionSet is the set of attention flags on a line. Flags are
// independently settable and clearable; the set is persisted as a sorted,
// comma-joined string but must be treated as a set everywhere else.
type AttentionSet map[AttentionFlag]struct{}

func NewAttentionSet(flags ...AttentionFlag) AttentionSet {
	s := AttentionSet{}
	for _, f := range flags {
		s.Add(f)
	}
	return s
}

// ParseAttentionFlag parses a single flag code.
func ParseAttentionFlag(raw string) (AttentionFlag, error) {
	switch flag := AttentionFlag(strings.ToUpper(strings.TrimSpace(raw))); flag {
	case AttentionR1, AttentionR3, AttentionR4, AttentionR5:
		return flag, nil
	default:
		return "", fmt.Errorf("unknown attention flag %q", raw)
	}
}

// ParseAttentionSet parses the persisted comma-joined representation.
func ParseAttentionSet(raw string) AttentionSet {
	s := AttentionSet{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			s.Add(AttentionFlag(part))
		}
	}
	return s
}

func (s AttentionSet) Add(flag AttentionFlag) {
	s[flag] = struct{}{}
}

func (s AttentionSet) Remove(flag AttentionFlag) {
	delete(s, flag)
}

func (s AttentionSet) Has(flag AttentionFlag) bool {
	_, ok := s[flag]
	return ok
}

// Set adds or removes the flag depending on present.
func (s AttentionSet) Set(flag AttentionFlag, present bool) {
	if present {
		s.Add(flag)
	} else {
		s.Remove(flag)
	}
}

// String returns the sorted, de-duplicated, comma-joined representation.
func (s AttentionSet) String() string {
	codes := make([]string, 0, len(s))
	for f := range s {
		codes = append(codes, string(f))
	}
	sort.Strings(codes)
	return strings.Join(codes, ",")
}

// MarshalJSON renders the set as a sorted array of flag codes.
func (s AttentionSet) MarshalJSON() ([]byte, error) {
	codes := make([]string, 0, len(s))
	for f := range s {
		codes = append(codes, string(f))
	}
	sort.Strings(codes)
	return json.Marshal(codes)
}

// UnmarshalJSON accepts an array of flag codes.
func (s *AttentionSet) UnmarshalJSON(data []byte) error {
	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		return err
	}
	out := AttentionSet{}
	for _, code := range codes {
		out.Add(AttentionFlag(code))
	}
	*s = out
	return nil
}

// Value implements driver.Valuer for the persistence boundary.
func (s AttentionSet) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements sql.Scanner for the persistence boundary.
func (s *AttentionSet) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = AttentionSet{}
		return nil
	case string:
		*s = ParseAttentionSet(v)
		return nil
	case []byte:
		*s = ParseAttentionSet(string(v))
		return nil
	default:
		return fmt.Errorf("AttentionSet.Scan: expected string, got %T", src)
	}
}
