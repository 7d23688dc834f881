package bridge

import (
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"github.com/hazyhaar/webtex/frame"
)

// DefaultSearchURL receives inputs that do not look like a web address.
// {query} is replaced by the query-escaped input.
const DefaultSearchURL = "https://www.google.com/search?q={query}"

var httpScheme = regexp.MustCompile(`(?i)^https?://`)

// Normalizer turns host input into a URL the view can load. Inputs without
// a scheme get http://, hosts are converted to their ASCII (punycode) form,
// and anything that is not a plausible web address becomes a search.
type Normalizer struct {
	SearchURL    string // default DefaultSearchURL
	BlockPrivate bool   // reject loopback, private and link-local literal addresses
}

// Normalize returns the URL to load for raw. Empty input and blocked
// addresses return a *frame.ConfigError.
func (n Normalizer) Normalize(raw string) (string, error) {
	in := strings.TrimSpace(raw)
	if in == "" {
		return "", &frame.ConfigError{Field: "url", Reason: "empty"}
	}
	if strings.EqualFold(in, "about:blank") {
		return "about:blank", nil
	}

	u, ok := n.webURL(in)
	if !ok {
		return n.search(in), nil
	}
	if n.BlockPrivate && isPrivateHost(u.Hostname()) {
		return "", &frame.ConfigError{Field: "url", Reason: "private or loopback address: " + u.Hostname()}
	}
	return u.String(), nil
}

func (n Normalizer) webURL(in string) (*url.URL, bool) {
	if strings.ContainsAny(in, " \t\n") {
		return nil, false
	}
	s := in
	if !httpScheme.MatchString(s) {
		if strings.Contains(s, "://") {
			return nil, false
		}
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil, false
	}
	u.Scheme = strings.ToLower(u.Scheme)

	host := u.Hostname()
	if !strings.Contains(host, ".") && host != "localhost" && net.ParseIP(host) == nil {
		return nil, false
	}
	if net.ParseIP(host) == nil && parseIPv4Numeric(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return nil, false
		}
		if port := u.Port(); port != "" {
			u.Host = net.JoinHostPort(ascii, port)
		} else {
			u.Host = ascii
		}
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, true
}

func (n Normalizer) search(in string) string {
	tmpl := n.SearchURL
	if tmpl == "" {
		tmpl = DefaultSearchURL
	}
	q := url.QueryEscape(in)
	if !strings.Contains(tmpl, "{query}") {
		return tmpl + q
	}
	return strings.ReplaceAll(tmpl, "{query}", q)
}

func isPrivateHost(host string) bool {
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ip = parseIPv4Numeric(host)
	}
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// parseIPv4Numeric parses the numeric IPv4 forms browsers accept besides
// dotted quads: 1 to 4 parts, each decimal, 0x hex or 0-prefixed octal,
// the last part filling the remaining bytes (127.1, 10.1, 0x7f.1).
// It returns nil for anything else.
func parseIPv4Numeric(host string) net.IP {
	parts := strings.Split(strings.TrimSuffix(host, "."), ".")
	if len(parts) > 4 {
		return nil
	}
	var addr uint64
	for i, p := range parts {
		base := 10
		switch {
		case len(p) > 1 && (p[:2] == "0x" || p[:2] == "0X"):
			base, p = 16, p[2:]
			if p == "" {
				p = "0"
			}
		case len(p) > 1 && p[0] == '0':
			base, p = 8, p[1:]
		}
		v, err := strconv.ParseUint(p, base, 32)
		if err != nil {
			return nil
		}
		if i < len(parts)-1 {
			if v > 255 {
				return nil
			}
			addr |= v << (8 * uint(3-i))
			continue
		}
		if v >= 1<<(8*uint(4-i)) {
			return nil
		}
		addr |= v
	}
	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}
