// SPDX-License-Identifier: MIT

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/streamsift/streamsift/internal/mediaurl"
)

var (
	// ErrHostNotAllowed indicates the URL host did not match the allowlist.
	ErrHostNotAllowed = errors.New("fetch: host not allowed")
	// ErrBlockedAddress indicates the host resolved to a blocked address.
	ErrBlockedAddress = errors.New("fetch: blocked address")
)

// Policy screens outbound manifest fetches. The zero value accepts any
// public host and blocks loopback, private, link-local, multicast, and
// unspecified addresses.
type Policy struct {
	// AllowPrivateHosts permits loopback and RFC1918/ULA targets.
	AllowPrivateHosts bool
	// AllowedHosts, when non-empty, restricts fetches to exactly these
	// hosts. Listed hosts are explicitly trusted and skip address
	// screening.
	AllowedHosts []string
}

// Validate checks raw against the policy and returns the URL with its host
// normalized for dialing.
func (p Policy) Validate(ctx context.Context, raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("fetch: invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("fetch: scheme %q not allowed", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("fetch: missing url host")
	}

	host, err := mediaurl.NormalizeHost(u.Hostname())
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}

	if len(p.AllowedHosts) > 0 {
		if !p.hostAllowed(host) {
			return "", fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
		}
		u.Host = joinHostPort(host, u.Port())
		return u.String(), nil
	}

	ips, err := resolveHostIPs(ctx, host)
	if err != nil {
		return "", err
	}
	for _, ip := range ips {
		if reason, blocked := p.blockedIP(ip); blocked {
			return "", fmt.Errorf("%w: %s is %s", ErrBlockedAddress, ip.String(), reason)
		}
	}

	u.Host = joinHostPort(host, u.Port())
	return u.String(), nil
}

func (p Policy) hostAllowed(host string) bool {
	for _, entry := range p.AllowedHosts {
		normalized, err := mediaurl.NormalizeHost(entry)
		if err != nil {
			continue
		}
		if normalized == host {
			return true
		}
	}
	return false
}

// blockedIP reports whether ip may not be dialed. Link-local, multicast,
// and unspecified addresses are never dialable; loopback and private
// ranges depend on AllowPrivateHosts.
func (p Policy) blockedIP(ip net.IP) (string, bool) {
	if ip == nil || ip.IsUnspecified() {
		return "unspecified", true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return "link-local", true
	}
	if ip.IsMulticast() {
		return "multicast", true
	}
	if !p.AllowPrivateHosts {
		if ip.IsLoopback() {
			return "loopback", true
		}
		if ip.IsPrivate() {
			return "private", true
		}
	}
	return "", false
}

func resolveHostIPs(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("fetch: resolve host %q: %w", host, err)
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		if addr.IP != nil {
			ips = append(ips, addr.IP)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("fetch: resolve host %q: no addresses", host)
	}
	return ips, nil
}

func joinHostPort(host, port string) string {
	if port == "" {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, port)
}
