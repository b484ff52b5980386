package pam

import (
	"strings"
)

// Credentials is the parsed form of a PS-Auth credential string.
type Credentials struct {
	Key   string
	RunAs string
}

// ParseAuth parses a combined credential string. Accepted forms:
//
//	PS-Auth key=<key>; runas=<user>;
//	key=<key>;runas=<user>;
//	<key>
//
// The "PS-Auth" prefix and the key=/runas= labels are case-insensitive. A
// runas= segment overrides defaultRunAs. The first unlabeled segment is the
// key when no key= segment precedes it.
func ParseAuth(raw, defaultRunAs string) Credentials {
	creds := Credentials{RunAs: strings.TrimSpace(defaultRunAs)}

	s := strings.TrimSpace(raw)
	if len(s) >= len("PS-Auth") && strings.EqualFold(s[:len("PS-Auth")], "PS-Auth") {
		s = strings.TrimSpace(s[len("PS-Auth"):])
	}

	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		lower := strings.ToLower(seg)
		switch {
		case strings.HasPrefix(lower, "key="):
			creds.Key = strings.TrimSpace(seg[len("key="):])
		case strings.HasPrefix(lower, "runas="):
			creds.RunAs = strings.TrimSpace(seg[len("runas="):])
		case creds.Key == "":
			creds.Key = seg
		}
	}
	return creds
}

// Empty reports whether no key was supplied.
func (c Credentials) Empty() bool {
	return c.Key == ""
}

// Header renders the Authorization header value.
func (c Credentials) Header() string {
	h := "PS-Auth key=" + c.Key + ";"
	if c.RunAs != "" {
		h += " runas=" + c.RunAs + ";"
	}
	return h
}

// String keeps the key out of logs and error messages.
func (c Credentials) String() string {
	if c.RunAs == "" {
		return "PS-Auth key=[REDACTED];"
	}
	return "PS-Auth key=[REDACTED]; runas=" + c.RunAs + ";"
}
