// Package sanitize redacts real data for the degraded (Mirror) response path.
//
// Masking is rune-for-rune: every redacted rune becomes exactly one marker,
// so the output reveals where something was hidden but never more than that,
// and its byte length never exceeds the input's.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Marker replaces every redacted rune.
const Marker = '*'

// DefaultSecretKeys are the field names whose values are always masked.
var DefaultSecretKeys = []string{
	"password", "passwd", "pwd", "senha",
	"secret", "client_secret",
	"token", "access_token", "refresh_token",
	"api_key", "apikey", "api-key",
	"authorization",
}

// Rule masks submatches of every match of Pattern. Each participating group
// listed in Groups is masked; an empty Groups masks the whole match. Runes
// listed in Keep are left in place inside a masked span.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Groups  []int
	Keep    string
}

// SecretValueRule masks the value of key=value, key: value and "key": "value"
// pairs whose key ends in one of keys (case-insensitive). A quoted value is
// masked up to its closing quote, an unterminated one up to the next
// separator, and an authentication scheme such as
// "Bearer" is masked together with the credential that follows it.
func SecretValueRule(keys ...string) Rule {
	quoted := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(k))
	}
	if len(quoted) == 0 {
		quoted = append(quoted, regexp.QuoteMeta(DefaultSecretKeys[0]))
	}
	return Rule{
		Name: "secret_value",
		Pattern: regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)["']?\s*[:=]\s*` +
			`(?:"((?:[^"\\]|\\.)*)"` +
			`|'((?:[^'\\]|\\.)*)'` +
			`|["']?((?:(?:bearer|basic|digest|negotiate)[ \t]+)?[^\s,;&"']+))`),
		Groups: []int{1, 2, 3},
	}
}

// AuthorizationHeaderRule masks everything after the colon of an
// Authorization or Proxy-Authorization header line.
func AuthorizationHeaderRule() Rule {
	return Rule{
		Name:    "authorization_header",
		Pattern: regexp.MustCompile(`(?im)^[ \t]*(?:proxy-)?authorization[ \t]*:[ \t]*([^\r\n]+)`),
		Groups:  []int{1},
	}
}

// EmailRule masks e-mail addresses except for their '@' and '.' separators.
func EmailRule() Rule {
	return Rule{
		Name:    "email",
		Pattern: regexp.MustCompile(`[A-Za-z0-9._%+\-*]+@[A-Za-z0-9\-*]+(?:\.[A-Za-z0-9\-*]+)+`),
		Keep:    "@.",
	}
}

// Sanitizer is a stateless, deterministic redactor. It is safe for concurrent
// use.
type Sanitizer struct {
	rules []Rule
}

// NewSanitizer builds a sanitizer that masks digits, the values of the given
// secret keys and e-mail addresses. Listing "authorization" also masks whole
// Authorization header lines. A nil or empty key list uses
// DefaultSecretKeys.
func NewSanitizer(secretKeys []string, extra ...Rule) *Sanitizer {
	if len(secretKeys) == 0 {
		secretKeys = DefaultSecretKeys
	}
	rules := []Rule{SecretValueRule(secretKeys...)}
	for _, k := range secretKeys {
		if strings.EqualFold(strings.TrimSpace(k), "authorization") {
			rules = append(rules, AuthorizationHeaderRule())
			break
		}
	}
	rules = append(rules, EmailRule())
	rules = append(rules, extra...)
	return &Sanitizer{rules: rules}
}

// Default returns a sanitizer with the default rule set.
func Default() *Sanitizer {
	return NewSanitizer(nil)
}

// Sanitize redacts data. It applies the rule set until the output stops
// changing, which makes it idempotent.
func (s *Sanitizer) Sanitize(data string) string {
	out := s.pass(data)
	for {
		next := s.pass(out)
		if next == out {
			return out
		}
		out = next
	}
}

func (s *Sanitizer) pass(data string) string {
	out := maskDigits(data)
	for _, r := range s.rules {
		out = applyRule(out, r)
	}
	return out
}

func maskDigits(data string) string {
	if strings.IndexFunc(data, unicode.IsDigit) < 0 {
		return data
	}
	// strings.Map would rewrite invalid bytes as U+FFFD and grow the output.
	var b strings.Builder
	b.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRuneInString(data)
		if unicode.IsDigit(r) {
			b.WriteRune(Marker)
		} else {
			b.WriteString(data[:size])
		}
		data = data[size:]
	}
	return b.String()
}

func applyRule(data string, r Rule) string {
	if r.Pattern == nil {
		return data
	}
	matches := r.Pattern.FindAllStringSubmatchIndex(data, -1)
	if len(matches) == 0 {
		return data
	}

	groups := r.Groups
	if len(groups) == 0 {
		groups = []int{0}
	}

	var b strings.Builder
	b.Grow(len(data))
	last := 0
	for _, m := range matches {
		for _, g := range groups {
			if 2*g+1 >= len(m) {
				continue
			}
			start, end := m[2*g], m[2*g+1]
			if start < 0 || start < last {
				continue
			}
			b.WriteString(data[last:start])
			maskSpan(&b, data[start:end], r.Keep)
			last = end
		}
	}
	b.WriteString(data[last:])
	return b.String()
}

func maskSpan(b *strings.Builder, span, keep string) {
	for len(span) > 0 {
		r, size := utf8.DecodeRuneInString(span)
		if keep != "" && r != utf8.RuneError && strings.ContainsRune(keep, r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(Marker)
		}
		span = span[size:]
	}
}
