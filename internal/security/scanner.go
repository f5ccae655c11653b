// Package security holds the request screening and text sanitizing used on
// the public contact path.
package security

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Category names an attack class
type Category string

const (
	SQLInjection   Category = "sql_injection"
	XSS            Category = "xss"
	PathTraversal  Category = "path_traversal"
	ShellInjection Category = "shell_injection"
	NoSQLInjection Category = "nosql_injection"
)

// SnippetLength bounds how much of an offending value is logged
const SnippetLength = 100

type pattern struct {
	category Category
	re       *regexp.Regexp
}

var attackPatterns = []pattern{
	{SQLInjection, regexp.MustCompile(`(?i)(` +
		`\bunion\s+(?:all\s+)?select\b|` +
		`\b(?:drop|truncate)\s+(?:table|database|schema)\b|` +
		`\balter\s+table\b|` +
		`\binsert\s+into\s+\w+\s*(?:\(|\bvalues\b)|` +
		`\bdelete\s+from\s+\w+\s*(?:;|\bwhere\b|$)|` +
		`\bupdate\s+\w+\s+set\s+\w+\s*=|` +
		`'\s*or\s*'?\d+'?\s*=\s*'?\d+|` +
		`'\s*or\s*'[^']*'\s*=\s*'|` +
		`'\s*--|;\s*--|` +
		`\bxp_cmdshell\b|\bexec(?:ute)?\s*\(|` +
		`\b(?:sleep|benchmark)\s*\(\s*\d+|\bwaitfor\s+delay\b` +
		`)`)},
	{XSS, regexp.MustCompile(`(?i)(` +
		`<\s*script\b|` +
		`<\s*(?:iframe|object|embed|applet)\b|` +
		`\bjavascript\s*:|\bvbscript\s*:|` +
		`\bdata\s*:\s*text/html|` +
		`\bon(?:load|error|click|dblclick|mouse[a-z]+|key[a-z]+|focus|blur|submit|change|input|abort|animation[a-z]+|toggle)\s*=|` +
		`\beval\s*\(` +
		`)`)},
	{PathTraversal, regexp.MustCompile(`(?i)(` +
		`\.\./|\.\.\\|` +
		`%2e%2e(?:%2f|%5c|/|\\)|\.\.%2f|\.\.%5c|` +
		`/etc/(?:passwd|shadow|hosts)\b|` +
		`\bc:\\windows\\` +
		`)`)},
	{ShellInjection, regexp.MustCompile(`(?i)(` +
		"`" + `|\$\(|` +
		`&&|\|\||` +
		`[;&|]\s*(?:cat|ls|rm|wget|curl|bash|sh|nc|netcat|chmod|chown|python|perl|whoami|id)(?:\s|$)` +
		`)`)},
	{NoSQLInjection, regexp.MustCompile(`\$(?:where|ne|eq|gt|gte|lt|lte|in|nin|regex|exists|elemMatch|expr|or|and|not|function)\b`)},
}

// Finding describes the first attack pattern hit in a request
type Finding struct {
	Field    string
	Category Category
	Snippet  string
}

// Scanner matches request values against known injection shapes
type Scanner struct {
	patterns []pattern
}

// NewScanner returns a scanner with the built-in pattern set
func NewScanner() *Scanner {
	return &Scanner{patterns: attackPatterns}
}

// ScanString checks one value
func (s *Scanner) ScanString(field, value string) (Finding, bool) {
	for _, p := range s.patterns {
		if p.re.MatchString(value) {
			return Finding{Field: field, Category: p.category, Snippet: Snippet(value)}, true
		}
	}
	return Finding{}, false
}

// ScanValues checks every value of a query string or form
func (s *Scanner) ScanValues(prefix string, values url.Values) (Finding, bool) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		field := join(prefix, k)
		if f, ok := s.scanKey(field, k); ok {
			return f, true
		}
		for _, v := range values[k] {
			if f, ok := s.ScanString(field, v); ok {
				return f, true
			}
		}
	}
	return Finding{}, false
}

// ScanJSON walks a decoded JSON document and checks every string value and
// object key.
func (s *Scanner) ScanJSON(prefix string, doc interface{}) (Finding, bool) {
	switch v := doc.(type) {
	case string:
		return s.ScanString(prefix, v)
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			field := join(prefix, k)
			if f, ok := s.scanKey(field, k); ok {
				return f, true
			}
			if f, ok := s.ScanJSON(field, v[k]); ok {
				return f, true
			}
		}
	case []interface{}:
		for i, item := range v {
			if f, ok := s.ScanJSON(fmt.Sprintf("%s[%d]", prefix, i), item); ok {
				return f, true
			}
		}
	}
	return Finding{}, false
}

// scanKey flags operator-style keys used to smuggle query operators or
// prototype pollution through JSON objects.
func (s *Scanner) scanKey(field, key string) (Finding, bool) {
	switch {
	case strings.HasPrefix(key, "$"),
		key == "__proto__", key == "constructor", key == "prototype":
		return Finding{Field: field, Category: NoSQLInjection, Snippet: Snippet(key)}, true
	}
	return Finding{}, false
}

// Snippet truncates v to SnippetLength runes
func Snippet(v string) string {
	r := []rune(v)
	if len(r) <= SnippetLength {
		return v
	}
	return string(r[:SnippetLength])
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
