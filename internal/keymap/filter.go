package keymap

import (
	"regexp"
	"strings"
)

// Filter is a focus or device predicate. A value wrapped in slashes is a
// regular expression; anything else matches as a substring. The empty
// filter matches everything.
type Filter struct {
	raw string
	re  *regexp.Regexp
}

// NewFilter compiles a filter string.
func NewFilter(s string) (Filter, error) {
	if len(s) >= 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		re, err := regexp.Compile(s[1 : len(s)-1])
		if err != nil {
			return Filter{}, err
		}
		return Filter{raw: s, re: re}, nil
	}
	return Filter{raw: s}, nil
}

// Empty reports whether the filter matches unconditionally.
func (f Filter) Empty() bool { return f.raw == "" }

// String returns the source form of the filter.
func (f Filter) String() string { return f.raw }

// Matches evaluates the filter against a signal string.
func (f Filter) Matches(s string) bool {
	if f.raw == "" {
		return true
	}
	if f.re != nil {
		return f.re.MatchString(s)
	}
	return strings.Contains(s, f.raw)
}
