package core

import (
	"fmt"
	"strings"
)

// WildcardPattern is the catch-all route pattern.
const WildcardPattern = "*"

type trailingSlash int

const (
	slashForbidden trailingSlash = iota
	slashRequired
	slashOptional
)

type segment struct {
	literal  string
	param    string // non-empty for named segments
	optional bool
}

// Matcher is a compiled route pattern.
type Matcher struct {
	pattern  string
	wildcard bool
	root     bool
	segments []segment
	trailing trailingSlash
}

// CompilePattern parses a route pattern.
//
//	*                     matches any path
//	/                     the root only
//	/login/               literal segments; the trailing slash is required
//	/users/:name          :name captures one non-empty segment
//	/error/:err_no?       the final named segment may be absent
//	/error/(:err_no)?/?   same, with an optional trailing slash
func CompilePattern(pattern string) (*Matcher, error) {
	m := &Matcher{pattern: pattern}
	if pattern == WildcardPattern {
		m.wildcard = true
		return m, nil
	}
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("route %q: pattern must start with '/'", pattern)
	}
	if pattern == "/" {
		m.root = true
		return m, nil
	}

	body := pattern[1:]
	switch {
	case strings.HasSuffix(body, "/?"):
		m.trailing = slashOptional
		body = strings.TrimSuffix(body, "/?")
	case strings.HasSuffix(body, "/"):
		m.trailing = slashRequired
		body = strings.TrimSuffix(body, "/")
	}
	if body == "" {
		return nil, fmt.Errorf("route %q: no segments", pattern)
	}

	seen := map[string]bool{}
	parts := strings.Split(body, "/")
	for i, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", pattern, err)
		}
		if seg.optional && i != len(parts)-1 {
			return nil, fmt.Errorf("route %q: optional segment %q must be last", pattern, part)
		}
		if seg.param != "" {
			if seen[seg.param] {
				return nil, fmt.Errorf("route %q: duplicate parameter %q", pattern, seg.param)
			}
			seen[seg.param] = true
		}
		m.segments = append(m.segments, seg)
	}
	return m, nil
}

func parseSegment(part string) (segment, error) {
	if part == "" {
		return segment{}, fmt.Errorf("empty segment")
	}
	optional := false
	switch {
	case strings.HasPrefix(part, "(") && strings.HasSuffix(part, ")?"):
		part = part[1 : len(part)-2]
		optional = true
	case strings.HasSuffix(part, "?"):
		part = strings.TrimSuffix(part, "?")
		optional = true
	}
	if strings.HasPrefix(part, ":") {
		name := part[1:]
		if name == "" {
			return segment{}, fmt.Errorf("empty parameter name")
		}
		return segment{param: name, optional: optional}, nil
	}
	if optional {
		return segment{}, fmt.Errorf("only named segments can be optional: %q", part)
	}
	if strings.ContainsAny(part, ":()?*") {
		return segment{}, fmt.Errorf("unsupported syntax in segment %q", part)
	}
	return segment{literal: part}, nil
}

// Pattern returns the source pattern.
func (m *Matcher) Pattern() string { return m.pattern }

// Wildcard reports whether m is the catch-all.
func (m *Matcher) Wildcard() bool { return m.wildcard }

// Match reports whether path matches and returns the captured parameters.
// Matching never fails with an error; a non-matching path is simply false.
func (m *Matcher) Match(path string) (map[string]string, bool) {
	params := map[string]string{}
	if m.wildcard {
		return params, true
	}
	if m.root {
		return params, path == "/"
	}
	if !strings.HasPrefix(path, "/") || path == "/" {
		return nil, false
	}

	body := path[1:]
	hasSlash := strings.HasSuffix(body, "/")
	if hasSlash {
		body = body[:len(body)-1]
	}
	switch m.trailing {
	case slashRequired:
		if !hasSlash {
			return nil, false
		}
	case slashForbidden:
		if hasSlash {
			return nil, false
		}
	}

	parts := strings.Split(body, "/")
	segs := m.segments
	if len(parts) == len(segs)-1 && segs[len(segs)-1].optional {
		segs = segs[:len(segs)-1]
	}
	if len(parts) != len(segs) {
		return nil, false
	}
	for i, seg := range segs {
		part := parts[i]
		if part == "" {
			return nil, false
		}
		if seg.param != "" {
			params[seg.param] = part
			continue
		}
		if part != seg.literal {
			return nil, false
		}
	}
	return params, true
}
