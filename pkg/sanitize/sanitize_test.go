package sanitize

import (
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_MasksDigits(t *testing.T) {
	s := Default()
	assert.Equal(t, "balance R$ *.***,**", s.Sanitize("balance R$ 1.000,00"))
	assert.Equal(t, "id ***", s.Sanitize("id ١٢٣"), "non-ASCII digits are masked too")
}

func TestSanitize_MasksSecretValues(t *testing.T) {
	s := Default()
	cases := map[string]string{
		"senha=hunter":            "senha=******",
		"user=bob password=abc;x": "user=bob password=***;x",
		"Token: AbCdEf":           "Token: ******",
		"api_key=k-x&next=1":      "api_key=***&next=*",
		"secret = s3cr3t":         "secret = ******",
	}
	for in, want := range cases {
		assert.Equal(t, want, s.Sanitize(in), "input %q", in)
	}
}

func TestSanitize_MasksQuotedAndPrefixedSecrets(t *testing.T) {
	s := Default()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"double quoted", `password="hunter"`, `password="******"`},
		{"single quoted", `token: 'abcdef'`, `token: '******'`},
		{"json object", `{"password":"hunter"}`, `{"password":"******"}`},
		{"json spaced", `{"api_key": "a b c", "user": "bob"}`, `{"api_key": "*****", "user": "bob"}`},
		{"json escaped quote", `{"secret":"a\"b"}`, `{"secret":"****"}`},
		{"unterminated quote", `senha="abc def`, `senha="*** def`},
		{"bearer scheme", "Authorization: Bearer abcdefghij", "Authorization: *****************"},
		{"bearer in query", "authorization=Bearer xyz&a=b", "authorization=**********&a=b"},
		{"underscore prefix", "db_password=hunter", "db_password=******"},
		{"dotted prefix", "app.secret: value", "app.secret: *****"},
		{"prefixed json key", `{"github_token":"gho_abc"}`, `{"github_token":"*******"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.Sanitize(tc.in))
		})
	}
}

func TestSanitize_MasksAuthorizationHeaderLine(t *testing.T) {
	value := `Digest username="bob", realm="api", response="abc"`
	in := "GET /accounts\r\nAuthorization: " + value + "\r\nHost: example"
	want := "GET /accounts\r\nAuthorization: " + strings.Repeat("*", len(value)) + "\r\nHost: example"
	assert.Equal(t, want, Default().Sanitize(in))

	proxy := "Proxy-Authorization: Basic dXNlcjpwYXNz"
	assert.Equal(t, "Proxy-Authorization: "+strings.Repeat("*", len("Basic dXNlcjpwYXNz")), Default().Sanitize(proxy))

	noAuth := NewSanitizer([]string{"pin"})
	assert.Equal(t, "Authorization: open", noAuth.Sanitize("Authorization: open"))
}

func TestSanitize_NonSecretKeysKeepTheirValues(t *testing.T) {
	s := Default()
	assert.Equal(t, "user=bob region=east", s.Sanitize("user=bob region=east"))
	assert.Equal(t, "tokenizer=fast", s.Sanitize("tokenizer=fast"))
}

func TestSanitize_MasksEmail(t *testing.T) {
	s := Default()
	assert.Equal(t, "contact ****.***@*******.***", s.Sanitize("contact jane.doe@example.com"))
}

func TestSanitize_CustomKeys(t *testing.T) {
	s := NewSanitizer([]string{"pin"})
	assert.Equal(t, "pin=**** password=open", s.Sanitize("pin=abcd password=open"))
}

func TestSanitize_ExtraRule(t *testing.T) {
	s := NewSanitizer(nil, Rule{
		Name:    "name",
		Pattern: regexp.MustCompile(`name=(\w+)`),
		Groups:  []int{1},
	})
	assert.Equal(t, "name=****", s.Sanitize("name=jane"))
}

func TestSanitize_LengthNeverGrows(t *testing.T) {
	s := Default()
	inputs := []string{
		"",
		"plain text",
		"CPF 123.456.789-00, saldo R$ 1.000,00, cartao 1234-5678-9012-3456",
		"senha=çãõ token=日本語",
		"invalid \xff\xfe bytes 42",
		"١٢٣ password=١٢٣",
	}
	for _, in := range inputs {
		out := s.Sanitize(in)
		assert.LessOrEqual(t, len(out), len(in), "input %q", in)
		if utf8.ValidString(in) {
			assert.Equal(t, utf8.RuneCountInString(in), utf8.RuneCountInString(out), "rune count for %q", in)
		}
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	s := Default()
	inputs := []string{
		"SENSITIVE_DATABASE_RECORD",
		"password=abc@x.io email=a.b@c.de",
		"x,token=ab@c.d",
		"token=abc;x@y.z 99",
	}
	for _, in := range inputs {
		once := s.Sanitize(in)
		assert.Equal(t, once, s.Sanitize(once), "input %q", in)
	}
}

func TestSanitize_NoDigitsLeft(t *testing.T) {
	out := Default().Sanitize("acct 0042 ref 9")
	assert.False(t, strings.ContainsAny(out, "0123456789"))
}

func TestSecretValueRule_EmptyKeys(t *testing.T) {
	r := SecretValueRule("", "  ")
	assert.True(t, r.Pattern.MatchString("password=x"))
}
