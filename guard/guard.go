// Package guard holds the input-safety primitives trialkit applies at its
// trust boundaries: SSRF checks on outbound URLs, path containment for
// uploaded files, identifier validation, and bounded response reads.
package guard

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxBody caps outbound HTTP response reads by default (10 MiB), large
// enough for rendered protocol pages and registry entries.
const MaxBody int64 = 10 << 20

// ErrPrivateAddress is returned when a URL resolves to a private, loopback
// or link-local address.
var ErrPrivateAddress = errors.New("guard: URL targets a private or loopback address")

// ErrScheme is returned for non-HTTP(S) URL schemes.
var ErrScheme = errors.New("guard: only http and https schemes are allowed")

// ErrEscapesBase is returned when a user-supplied path escapes its base
// directory.
var ErrEscapesBase = errors.New("guard: path escapes base directory")

// CheckURL verifies that rawURL is http(s), carries a hostname, and does
// not point at a private or loopback address. Hostnames are resolved so
// internal names cannot slip past a literal-IP check.
func CheckURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("guard: parse URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrScheme
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("guard: URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if privateAddr(ip) {
			return ErrPrivateAddress
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		// Unresolvable now may still be a valid public host. The fetch
		// itself will surface the network error.
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && privateAddr(ip) {
			return ErrPrivateAddress
		}
	}
	return nil
}

// ContainPath joins base and name and verifies the result stays under base.
func ContainPath(base, name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrEscapesBase
	}
	joined := filepath.Join(base, filepath.Clean("/"+name))
	root := filepath.Clean(base)
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", ErrEscapesBase
	}
	return joined, nil
}

// CheckIdentifier rejects strings unsuitable for file names or URL path
// segments. Alphanumerics, underscore, hyphen, and dot are allowed.
func CheckIdentifier(s string) error {
	if s == "" {
		return errors.New("guard: identifier must not be empty")
	}
	if len(s) > 256 {
		return errors.New("guard: identifier too long (max 256)")
	}
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
		if !ok {
			return fmt.Errorf("guard: invalid character %q in identifier", r)
		}
	}
	return nil
}

// ReadAtMost reads up to maxBytes from r and errors past the limit.
func ReadAtMost(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("guard: body exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func privateAddr(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, block := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"fc00::/7",
		"::1/128",
	} {
		_, cidr, err := net.ParseCIDR(block)
		if err != nil {
			continue
		}
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
