// Package cors decides which request origins may receive cross-origin responses.
package cors

import (
	"fmt"
	"net/url"
	"regexp"
)

// Validator matches the host of an Origin header against an ordered allow-list.
type Validator struct {
	patterns []*regexp.Regexp
}

// New compiles the allow-list. Each pattern is anchored so it must match the
// whole host, e.g. `app-example-.*\.vercel\.app`.
func New(patterns []string) (*Validator, error) {
	v := &Validator{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)$`)
		if err != nil {
			return nil, fmt.Errorf("compile cors pattern %q: %w", p, err)
		}
		v.patterns = append(v.patterns, re)
	}
	return v, nil
}

// Allowed reports whether origin (a full origin such as "https://example.com")
// names an allow-listed host. The host includes the port when one is present.
// An unparseable origin is returned as an error.
func (v *Validator) Allowed(origin string) (bool, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return false, fmt.Errorf("parse origin: %w", err)
	}

	for _, re := range v.patterns {
		if re.MatchString(u.Host) {
			return true, nil
		}
	}
	return false, nil
}
