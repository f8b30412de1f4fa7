package model

import (
	"fmt"
	"strings"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusWarn  Status = "warn"
	StatusError Status = "error"
	StatusSkip  Status = "skip"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusPass, StatusFail, StatusWarn, StatusError, StatusSkip}

// Severity is informational and never used in scoring.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// DefaultWeight is applied when a result is built without a weight.
const DefaultWeight = 10

// ValidationError reports a malformed value rejected at construction.
type ValidationError struct {
	Field string
	Value string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Msg)
}

func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", &ValidationError{Field: "status", Value: s, Msg: "must be one of " + joinStatuses()}
}

func ParseSeverity(s string) (Severity, error) {
	for _, sv := range Severities {
		if string(sv) == s {
			return sv, nil
		}
	}
	return "", &ValidationError{Field: "severity", Value: s, Msg: "must be one of low, medium, high, critical"}
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

func (s Severity) Valid() bool {
	_, err := ParseSeverity(string(s))
	return err == nil
}

// MarshalText lets Status act as a JSON map key.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

// UnmarshalText rejects unknown statuses while decoding.
func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	sv, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = sv
	return nil
}

func joinStatuses() string {
	parts := make([]string, len(Statuses))
	for i, st := range Statuses {
		parts[i] = string(st)
	}
	return strings.Join(parts, ", ")
}

// Result is what one check produces. Only Status and Weight feed the score.
type Result struct {
	ID             string                 `json:"id"`
	Title          string                 `json:"title"`
	Domain         string                 `json:"domain"`
	Severity       Severity               `json:"severity"`
	Status         Status                 `json:"status"`
	Weight         int                    `json:"weight"`
	Evidence       map[string]interface{} `json:"evidence"`
	Recommendation string                 `json:"recommendation"`
	References     []string               `json:"references"`
}

// NewResult fills defaults and validates r.
func NewResult(r Result) (Result, error) {
	if r.Weight == 0 {
		r.Weight = DefaultWeight
	}
	if r.Evidence == nil {
		r.Evidence = map[string]interface{}{}
	}
	if r.References == nil {
		r.References = []string{}
	}
	if err := r.Validate(); err != nil {
		return Result{}, err
	}
	return r, nil
}

// Validate checks the enum fields, the weight and the presence of an id.
func (r Result) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Msg: "must not be empty"}
	}
	if !r.Status.Valid() {
		return &ValidationError{Field: "status", Value: string(r.Status), Msg: "must be one of " + joinStatuses()}
	}
	if !r.Severity.Valid() {
		return &ValidationError{Field: "severity", Value: string(r.Severity), Msg: "must be one of low, medium, high, critical"}
	}
	if r.Weight <= 0 {
		return &ValidationError{Field: "weight", Value: fmt.Sprint(r.Weight), Msg: "must be positive"}
	}
	return nil
}
