// Package pattern matches strings against the rule syntax used in configuration files.
//
//   - "text"    exact, case-insensitive
//   - "*text*"  wildcard, case-insensitive; * matches any run of characters
//   - "~expr"   regular expression, case-sensitive
//   - "~*expr"  regular expression, case-insensitive
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind is the matching strategy of a compiled pattern
type Kind int

const (
	KindExact Kind = iota
	KindWildcard
	KindRegexp
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindWildcard:
		return "wildcard"
	case KindRegexp:
		return "regexp"
	default:
		return "unknown"
	}
}

// Pattern is a compiled rule. The zero value matches nothing.
type Pattern struct {
	Source string
	Kind   Kind

	literal string // lowercased body for exact and wildcard rules
	re      *regexp.Regexp
}

// Compile parses a rule once so Match can run on hot paths
func Compile(rule string) (*Pattern, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return nil, errors.New("pattern cannot be empty")
	}

	p := &Pattern{Source: rule}

	switch {
	case strings.HasPrefix(rule, "~*"):
		re, err := regexp.Compile("(?i)" + rule[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid regexp pattern %q: %w", rule, err)
		}
		p.Kind, p.re = KindRegexp, re
	case strings.HasPrefix(rule, "~"):
		re, err := regexp.Compile(rule[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid regexp pattern %q: %w", rule, err)
		}
		p.Kind, p.re = KindRegexp, re
	case strings.Contains(rule, "*"):
		p.Kind, p.literal = KindWildcard, strings.ToLower(rule)
	default:
		p.Kind, p.literal = KindExact, strings.ToLower(rule)
	}

	return p, nil
}

// MustCompile is Compile for rules known at build time
func MustCompile(rule string) *Pattern {
	p, err := Compile(rule)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether input satisfies the rule
func (p *Pattern) Match(input string) bool {
	if p == nil {
		return false
	}

	switch p.Kind {
	case KindRegexp:
		return p.re != nil && p.re.MatchString(input)
	case KindWildcard:
		return matchWildcard(strings.ToLower(input), p.literal)
	case KindExact:
		return p.literal != "" && strings.EqualFold(input, p.literal)
	}
	return false
}

// matchWildcard checks text against a pattern whose only metacharacter is *
func matchWildcard(text, pattern string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return text == pattern
	}

	first, last := parts[0], parts[len(parts)-1]
	if len(text) < len(first)+len(last) ||
		!strings.HasPrefix(text, first) || !strings.HasSuffix(text, last) {
		return false
	}
	text = text[len(first) : len(text)-len(last)]

	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(text, part)
		if idx < 0 {
			return false
		}
		text = text[idx+len(part):]
	}
	return true
}
