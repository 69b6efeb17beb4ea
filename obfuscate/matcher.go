package obfuscate

import (
	"strings"

	"github.com/coregx/coregex"
)

// ClassMatcher decides whether a class is processed. Names are fully
// qualified dotted names such as com.app.Secret.
type ClassMatcher interface {
	MatchClass(name string) bool
}

// DottedName converts an internal name (com/app/Secret) to the dotted
// form matchers see.
func DottedName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// IsEligible reports whether name starts with one of prefixes. An empty
// prefix list matches nothing.
func IsEligible(name string, prefixes []string) bool {
	name = DottedName(name)
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// PrefixMatcher matches classes by name prefix.
type PrefixMatcher struct {
	prefixes []string
}

// NewPrefixMatcher creates a matcher that matches classes starting with
// any prefix.
func NewPrefixMatcher(prefixes []string) *PrefixMatcher {
	return &PrefixMatcher{prefixes: prefixes}
}

// MatchClass returns true if the class name starts with any prefix.
func (m *PrefixMatcher) MatchClass(name string) bool {
	return IsEligible(name, m.prefixes)
}

// PatternMatcher matches classes by regular expression.
type PatternMatcher struct {
	patterns []*coregex.Regexp
}

// NewPatternMatcher compiles patterns. A pattern matches anywhere in the
// dotted name unless anchored.
func NewPatternMatcher(patterns []string) (*PatternMatcher, error) {
	m := &PatternMatcher{patterns: make([]*coregex.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := coregex.Compile(p)
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// MatchClass returns true if any pattern matches the class name.
func (m *PatternMatcher) MatchClass(name string) bool {
	name = DottedName(name)
	for _, re := range m.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// CompositeMatcher combines multiple matchers.
type CompositeMatcher struct {
	matchers []ClassMatcher
}

// NewCompositeMatcher creates a matcher that matches if any sub-matcher
// matches.
func NewCompositeMatcher(matchers ...ClassMatcher) *CompositeMatcher {
	return &CompositeMatcher{matchers: matchers}
}

// MatchClass returns true if any sub-matcher matches.
func (m *CompositeMatcher) MatchClass(name string) bool {
	for _, matcher := range m.matchers {
		if matcher.MatchClass(name) {
			return true
		}
	}
	return false
}

// ExcludeMatcher matches what include matches unless exclude matches too.
type ExcludeMatcher struct {
	include ClassMatcher
	exclude ClassMatcher
}

// NewExcludeMatcher creates a matcher that subtracts exclude from include.
func NewExcludeMatcher(include, exclude ClassMatcher) *ExcludeMatcher {
	return &ExcludeMatcher{include: include, exclude: exclude}
}

// MatchClass returns true if include matches and exclude does not.
func (m *ExcludeMatcher) MatchClass(name string) bool {
	if m.include == nil || !m.include.MatchClass(name) {
		return false
	}
	return m.exclude == nil || !m.exclude.MatchClass(name)
}
