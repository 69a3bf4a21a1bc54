package avurl

import "strings"

// layout records the punctuation seen while splitting so join can rebuild
// the exact input.
type layout struct {
	hasScheme bool
	slashes   int
	hasAt     bool
	brackets  bool
	hasPort   bool
	junk      string
}

// split follows ffmpeg's av_url_split (libavformat/utils.c) without its
// buffer truncation. The port is kept as the raw substring.
func split(raw string) (scheme, userinfo, host, port, path string, l layout) {
	colon := strings.IndexByte(raw, ':')
	if colon == -1 {
		// plain filename
		path = raw
		return
	}

	l.hasScheme = true
	scheme = raw[:colon]
	cur := colon + 1

	for l.slashes < 2 {
		if cur == len(raw) {
			return
		}
		if raw[cur] != '/' {
			break
		}
		cur++
		l.slashes++
	}
	if cur == len(raw) {
		return
	}

	// authority ends at the first '/', '?' or '#'
	pathAt := cur + strcspn(raw[cur:], "/?#")
	path = raw[pathAt:]
	if pathAt == cur {
		return
	}

	// userinfo runs up to the last '@' of the authority
	start := cur
	for {
		at := strings.IndexByte(raw[cur:pathAt], '@')
		if at == -1 {
			break
		}
		l.hasAt = true
		userinfo = raw[start : cur+at]
		cur += at + 1
		if cur == len(raw) {
			return
		}
	}

	if end := strings.IndexByte(raw[cur:pathAt], ']'); end != -1 && raw[cur] == '[' {
		l.brackets = true
		host = raw[cur+1 : cur+end]
		cur += end + 1
		if cur == len(raw) {
			return
		}
		if raw[cur] == ':' {
			l.hasPort = true
			port = raw[cur+1 : pathAt]
		} else if cur != pathAt {
			l.junk = raw[cur:pathAt]
		}
		return
	}

	if c := strings.IndexByte(raw[cur:pathAt], ':'); c != -1 {
		l.hasPort = true
		host = raw[cur : cur+c]
		port = raw[cur+c+1 : pathAt]
		return
	}
	host = raw[cur:pathAt]
	return
}

func join(scheme, userinfo, host, port, path string, l layout) string {
	var b strings.Builder
	b.WriteString(scheme)
	if l.hasScheme {
		b.WriteByte(':')
	}
	b.WriteString(strings.Repeat("/", l.slashes))
	b.WriteString(userinfo)
	if l.hasAt {
		b.WriteByte('@')
	}
	if l.brackets {
		b.WriteString("[" + host + "]")
	} else {
		b.WriteString(host)
	}
	if l.hasPort {
		b.WriteByte(':')
	}
	b.WriteString(port)
	b.WriteString(l.junk)
	b.WriteString(path)
	return b.String()
}

// strcspn returns the length of the initial segment of s that
// contains none of the bytes in reject.
func strcspn(s, reject string) int {
	if idx := strings.IndexAny(s, reject); idx != -1 {
		return idx
	}
	return len(s)
}
