package core

import (
	"fmt"
	"regexp"
)

// scopeSet is an immutable compiled scope list.
type scopeSet struct {
	patterns []string
	compiled []*regexp.Regexp
}

func compileScopes(patterns []string) (*scopeSet, error) {
	set := &scopeSet{
		patterns: append([]string(nil), patterns...),
		compiled: make([]*regexp.Regexp, 0, len(patterns)),
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid scope %q: %w", p, err)
		}
		set.compiled = append(set.compiled, re)
	}
	return set, nil
}

// contains reports whether rawURL is in scope. An empty list captures
// everything.
func (s *scopeSet) contains(rawURL string) bool {
	if s == nil || len(s.compiled) == 0 {
		return true
	}
	for _, re := range s.compiled {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}
