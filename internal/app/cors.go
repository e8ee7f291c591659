package app

import (
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may call the API. Patterns are
// exact hosts ("admin.example.com"), subdomain wildcards ("*.example.com")
// or any-port hosts ("localhost:*").
type originPolicy struct {
	exact    map[string]struct{}
	suffixes []string
	hosts    []string
}

func newOriginPolicy(patterns []string) originPolicy {
	p := originPolicy{exact: make(map[string]struct{}, len(patterns))}
	for _, raw := range patterns {
		pattern := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case pattern == "":
		case strings.HasPrefix(pattern, "*."):
			p.suffixes = append(p.suffixes, pattern[1:])
		case strings.HasSuffix(pattern, ":*"):
			p.hosts = append(p.hosts, strings.TrimSuffix(pattern, ":*"))
		default:
			p.exact[pattern] = struct{}{}
		}
	}
	return p
}

// Allow reports whether origin matches any configured pattern.
func (p originPolicy) Allow(origin string) bool {
	host := originHost(origin)
	if host == "" {
		return false
	}
	if _, ok := p.exact[host]; ok {
		return true
	}
	for _, suffix := range p.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	bare := host
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		bare = host[:i]
	}
	for _, h := range p.hosts {
		if bare == h {
			return true
		}
	}
	return false
}

func originHost(origin string) string {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(origin))
	}
	return strings.ToLower(u.Host)
}
