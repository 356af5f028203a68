package target

import (
	"net/url"
	"strings"
)

const placeholder = "[REDACTED]"

// Redact returns the descriptor with its password masked, suitable for log
// lines and banners. Descriptors that do not parse as URLs are masked whole.
func Redact(descriptor string) string {
	d := strings.TrimSpace(descriptor)
	if d == "" {
		return ""
	}
	if strings.HasPrefix(d, "file:") {
		return d
	}
	u, err := url.Parse(d)
	if err != nil || u.Scheme == "" {
		return placeholder
	}
	if _, ok := u.User.Password(); !ok {
		return d
	}
	u.User = url.UserPassword(u.User.Username(), "xxxxx")
	return u.String()
}

// Redactor scrubs the descriptor's password from arbitrary text such as
// driver error messages, which sometimes echo the DSN back.
type Redactor struct {
	replacements map[string]string // secret -> placeholder
}

// NewRedactor builds a Redactor for the password embedded in descriptor.
// Both the raw and URL-encoded forms are replaced. A descriptor without a
// password yields a passthrough Redactor.
func NewRedactor(descriptor string) *Redactor {
	r := &Redactor{replacements: make(map[string]string)}
	for _, pass := range passwords(strings.TrimSpace(descriptor)) {
		r.add(pass)
	}
	return r
}

func (r *Redactor) add(pass string) {
	if pass == "" {
		return
	}
	r.replacements[pass] = placeholder
	if encoded := url.QueryEscape(pass); encoded != pass {
		r.replacements[encoded] = placeholder
	}
	if encoded := url.PathEscape(pass); encoded != pass {
		r.replacements[encoded] = placeholder
	}
}

// passwords extracts the descriptor's password. Descriptors url.Parse
// rejects, such as an unescaped '#' in the password, are split by hand: the
// userinfo ends at the last '@' and the password starts after its first ':'.
func passwords(d string) []string {
	if u, err := url.Parse(d); err == nil {
		if pass, ok := u.User.Password(); ok {
			return []string{pass}
		}
		return nil
	}

	_, rest, ok := strings.Cut(d, "://")
	if !ok {
		return nil
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return nil
	}
	_, raw, ok := strings.Cut(rest[:at], ":")
	if !ok || raw == "" {
		return nil
	}
	out := []string{raw}
	if decoded, err := url.PathUnescape(raw); err == nil && decoded != raw {
		out = append(out, decoded)
	}
	return out
}

// Redact replaces every known secret in input.
func (r *Redactor) Redact(input string) string {
	if r == nil || len(r.replacements) == 0 {
		return input
	}
	result := input
	for secret, mask := range r.replacements {
		result = strings.ReplaceAll(result, secret, mask)
	}
	return result
}
