package safety

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ErrURLRejected is wrapped by every rejection reason IsSafeBaseURL returns.
var ErrURLRejected = errors.New("url_rejected")

// URLPolicy controls what IsSafeBaseURL accepts. It is built directly from
// the `security.*` configuration keys and is shared by every caller that
// validates a base URL: configured vendor endpoints, submitted video source
// URLs, and LLM endpoints.
type URLPolicy struct {
	// AllowInsecureHTTP permits the "http" scheme in addition to "https".
	AllowInsecureHTTP bool
	// AllowPrivateAddresses disables the private/loopback/link-local/
	// multicast IP block.
	AllowPrivateAddresses bool
	// AllowedHosts, when EnforceAllowlist is true, is the exhaustive set of
	// hosts IsSafeBaseURL will accept.
	AllowedHosts     []string
	EnforceAllowlist bool
}

// resolveHost allows tests to stub DNS resolution; by default it is
// defaultResolveHost, which uses net.DefaultResolver.
var resolveHost = defaultResolveHost

// IsSafeBaseURL validates raw against policy and returns nil if it is safe
// to use as a base URL for an outbound call. It is the single function used
// for configured vendor base URLs, submitted video source URLs, and LLM
// endpoints, per the constraint that SSRF checks must not be duplicated.
func IsSafeBaseURL(ctx context.Context, raw string, policy URLPolicy) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("%w: empty url", ErrURLRejected)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%w: invalid url: %v", ErrURLRejected, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrURLRejected)
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "https":
	case "http":
		if !policy.AllowInsecureHTTP {
			return fmt.Errorf("%w: insecure scheme http not allowed", ErrURLRejected)
		}
	default:
		return fmt.Errorf("%w: scheme %q not allowed", ErrURLRejected, scheme)
	}

	host, err := normalizeHost(u.Hostname())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrURLRejected, err)
	}

	if policy.EnforceAllowlist {
		allowed := false
		for _, h := range policy.AllowedHosts {
			normalizedAllowed, err := normalizeHost(h)
			if err == nil && normalizedAllowed == host {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: host %q not in allowlist", ErrURLRejected, host)
		}
	}

	if policy.AllowPrivateAddresses {
		return nil
	}

	ips, err := resolveHost(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: resolve %q: %v", ErrURLRejected, host, err)
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: resolved ip %s is private/loopback/link-local/multicast", ErrURLRejected, ip)
		}
	}
	return nil
}

// normalizeHost strips IPv6 brackets and a trailing dot and IDNA-normalizes
// a bare host, rejecting anything that carries scheme, path, userinfo, or
// zone-id syntax (those indicate the caller passed something other than a
// host). It does not strip a port.
func normalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if strings.Contains(host, "://") || strings.Contains(host, "/") || strings.Contains(host, "@") {
		return "", fmt.Errorf("invalid host %q", raw)
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	if strings.Contains(host, "%") {
		return "", fmt.Errorf("host must not include a zone id: %q", raw)
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

func defaultResolveHost(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses for %q", host)
	}
	return ips, nil
}

// isBlockedIP covers 10/8, 172.16/12, 192.168/16, 127/8, 169.254/16, and
// link-local/multicast IPv6, matching the reserved-range list every
// unprivileged outbound call must reject by default.
func isBlockedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	return ip.IsLoopback() ||
		ip.IsUnspecified() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast()
}
