// Package hostutil validates host components of camera addresses.
package hostutil

import (
	"fmt"
	"net"
	"strings"
	"unicode"
)

// ValidateHost accepts an IPv4 literal, an IPv6 literal (without brackets)
// or an RFC 1123 hostname.
func ValidateHost(raw string) error {
	switch {
	case looksLikeIPv4(raw):
		if !isIPv4(raw) {
			return fmt.Errorf("bad IP: '%s'", raw)
		}
	case strings.Contains(raw, ":"):
		if !isIPv6(raw) {
			return fmt.Errorf("bad IPv6: '%s'", raw)
		}
	default:
		if !isHostname(raw) {
			return fmt.Errorf("bad hostname: '%s'", raw)
		}
	}
	return nil
}

// ValidateIP accepts only IPv4 or IPv6 literals. Camera addresses given as
// an address/port/path triple must be IPs.
func ValidateIP(raw string) error {
	if net.ParseIP(raw) == nil {
		return fmt.Errorf("bad IP address: '%s'", raw)
	}
	return nil
}

// looksLikeIPv4 reports whether raw is a dotted quad of digits.
func looksLikeIPv4(raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return false
			}
		}
	}
	return true
}

func isIPv4(raw string) bool {
	ip := net.ParseIP(raw)
	return ip != nil && ip.To4() != nil
}

func isIPv6(raw string) bool {
	ip := net.ParseIP(raw)
	return ip != nil && ip.To4() == nil
}

// isHostname checks DNS label rules (RFC 1123).
func isHostname(raw string) bool {
	if raw == "" || len(raw) > 253 {
		return false
	}
	for _, label := range strings.Split(raw, ".") {
		if len(label) < 1 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
				return false
			}
		}
	}
	return true
}
