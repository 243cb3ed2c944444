// Package filter applies a content type's editable-field security policy
// to incoming field data before it is written.
package filter

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Filter modes
const (
	ModeRegex     = "REGEX"
	ModePlainText = "PLAIN_TEXT"
	ModeNone      = "NONE"
)

// plainTextAllowed is the punctuation PLAIN_TEXT keeps besides
// alphanumerics and spaces.
const plainTextAllowed = ".,!?'\"()-_:;"

// FieldPolicy governs one writable field.
type FieldPolicy struct {
	Filter string `json:"filter"`
	Data   string `json:"data"` // regex source for ModeRegex
}

// Policy maps field name to its write policy. Fields absent from the
// policy may not be written at all.
type Policy map[string]FieldPolicy

// ParsePolicy decodes the editable-fields JSON of a content type.
func ParsePolicy(raw string) (Policy, error) {
	var policy Policy
	if err := json.Unmarshal([]byte(raw), &policy); err != nil {
		return nil, err
	}
	return policy, nil
}

// Apply filters the submitted fields through the policy. Unknown fields
// are dropped; known fields are reduced per their filter mode.
func (p Policy) Apply(fields map[string]string) map[string]string {
	filtered := make(map[string]string, len(fields))
	for name, value := range fields {
		fp, ok := p[name]
		if !ok {
			continue
		}
		filtered[name] = fp.filter(value)
	}
	return filtered
}

func (fp FieldPolicy) filter(value string) string {
	switch fp.Filter {
	case ModeNone:
		return value
	case ModePlainText:
		return keepRunes(value, func(r rune) bool {
			return isAlphanumeric(r) || r == ' ' || strings.ContainsRune(plainTextAllowed, r)
		})
	case ModeRegex:
		re, err := regexp.Compile(fp.Data)
		if err != nil {
			// Policy regexes are stored data; a broken one rejects
			// everything rather than letting input through
			return ""
		}
		return keepRunes(value, func(r rune) bool {
			return re.MatchString(string(r))
		})
	default:
		return ""
	}
}

func keepRunes(value string, keep func(rune) bool) string {
	var b strings.Builder
	for _, r := range value {
		if keep(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
