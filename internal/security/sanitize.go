package security

import (
	"regexp"
	"strings"
)

var (
	blockPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<\s*script\b[^>]*>.*?<\s*/\s*script\s*>`),
		regexp.MustCompile(`(?is)<\s*style\b[^>]*>.*?<\s*/\s*style\s*>`),
		regexp.MustCompile(`(?is)<\s*iframe\b[^>]*>.*?<\s*/\s*iframe\s*>`),
		regexp.MustCompile(`(?is)<\s*object\b[^>]*>.*?<\s*/\s*object\s*>`),
		regexp.MustCompile(`(?is)<\s*embed\b[^>]*>.*?<\s*/\s*embed\s*>`),
		regexp.MustCompile(`(?is)<\s*form\b[^>]*>.*?<\s*/\s*form\s*>`),
	}

	dangerousTag = regexp.MustCompile(`(?i)<\s*/?\s*(?:script|style|iframe|frame|frameset|object|embed|applet|form|input|button|textarea|select|option|meta|link|base|svg|math|img|video|audio|source)\b[^>]*>`)

	eventHandler = regexp.MustCompile(`(?i)\bon[a-z]+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]*)`)

	dangerousScheme = regexp.MustCompile(`(?i)(?:javascript|vbscript)\s*:|\bdata\s*:\s*[a-z]+/[a-z0-9.+-]+[;,]?`)

	whitespace = regexp.MustCompile(`\s+`)

	angleEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#x27;",
		"/", "&#x2F;",
		`\`, "&#x5C;",
		"`", "&#96;",
	)
)

// maxSanitizePasses bounds the fixpoint loop in SanitizeMessage
const maxSanitizePasses = 16

// SanitizeMessage strips markup that could execute when the message is
// rendered and escapes the angle brackets that remain. The result is a fixed
// point: sanitizing it again returns it unchanged.
func SanitizeMessage(s string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		next := sanitizePass(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func sanitizePass(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	for _, re := range blockPatterns {
		s = re.ReplaceAllString(s, "")
	}
	s = dangerousTag.ReplaceAllString(s, "")
	s = eventHandler.ReplaceAllString(s, "")
	s = dangerousScheme.ReplaceAllString(s, "")
	s = angleEscaper.Replace(s)
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// EscapeHTML replaces the characters that are significant in HTML with their
// entities.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// NormalizeEmail lower-cases an address and canonicalizes the local part for
// providers that ignore dots or sub-addresses.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return email
	}
	local, domain := email[:at], email[at+1:]

	switch domain {
	case "gmail.com", "googlemail.com":
		domain = "gmail.com"
		local = cutSubaddress(local, "+")
		local = strings.ReplaceAll(local, ".", "")
	case "outlook.com", "hotmail.com", "live.com":
		local = cutSubaddress(local, "+")
	case "icloud.com", "me.com", "mac.com":
		local = cutSubaddress(local, "+")
	case "yahoo.com", "ymail.com", "rocketmail.com":
		local = cutSubaddress(local, "-")
	}

	if local == "" {
		return email
	}
	return local + "@" + domain
}

func cutSubaddress(local, sep string) string {
	if i := strings.Index(local, sep); i > 0 {
		return local[:i]
	}
	return local
}
