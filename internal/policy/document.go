package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is an IAM policy document. Fields that IAM accepts as either a string or a
// list decode into StringList.
type Document struct {
	Version   string     `json:"Version"`
	Statement Statements `json:"Statement"`
}

type Statement struct {
	Sid       string                 `json:"Sid,omitempty"`
	Effect    string                 `json:"Effect"`
	Principal *Principal             `json:"Principal,omitempty"`
	Action    StringList             `json:"Action,omitempty"`
	NotAction StringList             `json:"NotAction,omitempty"`
	Resource  StringList             `json:"Resource,omitempty"`
	Condition map[string]interface{} `json:"Condition,omitempty"`
}

// Statements accepts a single statement object or an array.
type Statements []Statement

func (s *Statements) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var one Statement
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*s = Statements{one}
		return nil
	}
	var many []Statement
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// StringList accepts a JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	*l = many
	return nil
}

// Contains reports whether any element equals one of values.
func (l StringList) Contains(values ...string) bool {
	for _, v := range l {
		for _, want := range values {
			if v == want {
				return true
			}
		}
	}
	return false
}

// Principal is either the bare "*" or a map such as {"AWS": [...]}.
type Principal struct {
	Wildcard bool
	Values   map[string]StringList
}

func (p *Principal) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		p.Wildcard = s == "*"
		if !p.Wildcard {
			p.Values = map[string]StringList{"": {s}}
		}
		return nil
	}
	return json.Unmarshal(b, &p.Values)
}

func (p Principal) MarshalJSON() ([]byte, error) {
	if p.Wildcard {
		return json.Marshal("*")
	}
	return json.Marshal(p.Values)
}

// IsPublic reports a bare "*" principal or an AWS principal list that contains "*".
func (p *Principal) IsPublic() bool {
	if p == nil {
		return false
	}
	return p.Wildcard || p.Values["AWS"].Contains("*")
}

// ParseDocument decodes a policy document.
func ParseDocument(policyJSON string) (*Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(policyJSON), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
