// Package avurl parses and rewrites media source URLs the way ffmpeg reads them.
package avurl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/edirooss/firewatch-server/pkg/hostutil"
)

type URL struct {
	Scheme   string `json:"scheme"`
	Userinfo string `json:"userinfo"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	Path     string `json:"path"`
}

// Schemes accepted as camera sources.
var sourceSchemes = map[string]struct{}{
	"rtsp":  {},
	"rtsps": {},
	"rtmp":  {},
	"http":  {},
	"https": {},
	"srt":   {},
	"udp":   {},
}

// Parse splits raw into components and validates host and port.
// Credentials must not be embedded; they are kept apart and added with
// WithUserinfo when the source is opened.
func Parse(raw string) (*URL, error) {
	scheme, userinfo, host, port, path, l := split(raw)

	// split/join must round-trip; anything else is a parser bug
	if raw != join(scheme, userinfo, host, port, path, l) {
		return nil, errors.New("unable to parse URL")
	}
	if l.junk != "" {
		return nil, errors.New("invalid URL")
	}
	if l.hasAt {
		return nil, errors.New("userinfo should not be embedded in the URL")
	}
	if host != "" {
		if err := hostutil.ValidateHost(host); err != nil {
			return nil, err
		}
	}
	if port != "" && !isPort(port) {
		return nil, fmt.Errorf("bad port: '%s'", port)
	}

	return &URL{Scheme: scheme, Userinfo: userinfo, Host: host, Port: port, Path: path}, nil
}

// ParseSource is Parse restricted to network schemes a camera can be
// reached with.
func ParseSource(raw string) (*URL, error) {
	u, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if _, ok := sourceSchemes[strings.ToLower(u.Scheme)]; !ok {
		return nil, fmt.Errorf("unsupported scheme: '%s'", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

// RTSP renders rtsp://host:port/path. A leading '/' on path is optional.
func RTSP(host string, port int, path string) string {
	h := host
	if strings.Contains(h, ":") {
		h = "[" + h + "]"
	}
	return "rtsp://" + h + ":" + strconv.Itoa(port) + "/" + strings.TrimPrefix(path, "/")
}

// WithUserinfo returns raw with username[:password] set as its userinfo,
// replacing any existing one. An empty username returns raw unchanged.
func WithUserinfo(raw, username, password string) string {
	if username == "" {
		return raw
	}
	scheme, _, host, port, path, l := split(raw)
	userinfo := escapeUsername(username)
	if password != "" {
		userinfo += ":" + escapePassword(password)
	}
	l.hasAt = true
	return join(scheme, userinfo, host, port, path, l)
}

// Redact masks the password part of the userinfo so the URL can be logged.
func Redact(raw string) string {
	scheme, userinfo, host, port, path, l := split(raw)
	if !l.hasAt {
		return raw
	}
	if user, _, ok := strings.Cut(userinfo, ":"); ok {
		userinfo = user + ":xxxxx"
	}
	return join(scheme, userinfo, host, port, path, l)
}

// escapeUsername escapes only '/', '?', '#' and ':' using percent-encoding.
func escapeUsername(s string) string {
	return strings.NewReplacer("/", "%2F", "?", "%3F", "#", "%23", ":", "%3A").Replace(s)
}

// escapePassword escapes only '/', '?', and '#' using percent-encoding.
func escapePassword(s string) string {
	return strings.NewReplacer("/", "%2F", "?", "%3F", "#", "%23").Replace(s)
}

// isPort reports whether s is a decimal port in 0..65535 without leading zeros.
func isPort(s string) bool {
	if len(s) > 1 && s[0] == '0' {
		return false
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return false
	}
	return port >= 0 && port <= 65535
}
