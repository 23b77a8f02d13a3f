// Package origin normalizes browser Origin headers and evaluates them
// against a configured allowlist.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// NormalizeHeader validates and normalizes a browser Origin header into
// the canonical scheme://host[:port] form, with default ports elided.
//
// The special Origin value "null" is allowed and returned as-is.
func NormalizeHeader(originHeader string) (string, bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" {
		return "", false
	}
	if trimmed == "null" {
		return "null", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	rawHostname, rawPort, ok := splitHostPort(u.Host)
	if !ok {
		return "", false
	}

	hostname := strings.ToLower(rawHostname)
	if hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host = host + ":" + strconv.FormatUint(port, 10)
	}
	return scheme + "://" + host, true
}

// Allowlist is a set of normalized origins permitted to open signaling
// connections. An empty allowlist permits every origin; this keeps
// local development friction-free, and production deployments are
// warned at startup when they run open.
type Allowlist struct {
	origins map[string]struct{}
	any     bool
}

// NewAllowlist builds an allowlist from already-normalized entries, as
// produced by NormalizeHeader. A literal "*" entry allows everything.
func NewAllowlist(entries []string) *Allowlist {
	al := &Allowlist{origins: make(map[string]struct{}, len(entries))}
	for _, entry := range entries {
		if entry == "*" {
			al.any = true
			continue
		}
		al.origins[entry] = struct{}{}
	}
	return al
}

// Allows reports whether the given Origin header value may connect.
// Requests without an Origin header (non-browser clients) are always
// allowed; the allowlist exists to stop cross-site browser use.
func (al *Allowlist) Allows(originHeader string) bool {
	if originHeader == "" {
		return true
	}
	if al.any || len(al.origins) == 0 {
		return true
	}
	normalized, ok := NormalizeHeader(originHeader)
	if !ok {
		return false
	}
	_, ok = al.origins[normalized]
	return ok
}

// splitHostPort splits an authority host[:port] string.
//
// The hostname is returned without brackets for IPv6 literals. The port
// is returned unvalidated and empty when absent.
func splitHostPort(rawHost string) (hostname, port string, ok bool) {
	if rawHost == "" {
		return "", "", false
	}

	if strings.HasPrefix(rawHost, "[") {
		end := strings.IndexByte(rawHost, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = rawHost[1:end]
		rest := rawHost[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if !strings.HasPrefix(rest, ":") || rest == ":" {
			return "", "", false
		}
		return hostname, rest[1:], true
	}

	switch strings.Count(rawHost, ":") {
	case 0:
		return rawHost, "", true
	case 1:
		parts := strings.SplitN(rawHost, ":", 2)
		if parts[0] == "" || parts[1] == "" {
			return "", "", false
		}
		return parts[0], parts[1], true
	default:
		// Unbracketed IPv6 literals are not valid authority syntax.
		return "", "", false
	}
}
