package pg

import (
	"net/url"
	"regexp"
	"strings"
)

// URL-style connection string with credentials. The host part anchors
// on the final @ so passwords containing @ still match.
var connStringRe = regexp.MustCompile(`^(postgres(?:ql)?://)([^:]+):(.*)@([^@]+)$`)

// NormalizeConnString percent-encodes the password portion of a URL
// style connection string when it contains a raw @, which would
// otherwise split the URL at the wrong place. Key=value DSNs and
// already-clean URLs pass through untouched.
func NormalizeConnString(conn string) string {
	m := connStringRe.FindStringSubmatch(conn)
	if m == nil {
		return conn
	}
	password := m[3]
	if !strings.Contains(password, "@") {
		return conn
	}
	return m[1] + m[2] + ":" + escapePassword(password) + "@" + m[4]
}

func escapePassword(password string) string {
	return strings.ReplaceAll(url.QueryEscape(password), "+", "%20")
}

var passwordOptRe = regexp.MustCompile(`password=\S+`)

// Redact masks the password for display. Works on both URL style
// strings and key=value DSNs; everything else passes through.
func Redact(conn string) string {
	if m := connStringRe.FindStringSubmatch(conn); m != nil {
		return m[1] + m[2] + ":****@" + m[4]
	}
	return passwordOptRe.ReplaceAllString(conn, "password=****")
}
