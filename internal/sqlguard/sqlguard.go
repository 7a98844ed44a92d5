// Package sqlguard implements the read-only SQL whitelist and identifier
// sanitizer shared by the SQL-backed service adapters (§4.3). Both functions
// are pure: no I/O, no state.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

var blockedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "TRUNCATE", "ALTER",
	"CREATE", "GRANT", "REVOKE", "EXEC", "EXECUTE",
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_.]{1,128}$`)

// CheckReadOnly accepts only statements that read data: the first
// non-whitespace token must be SELECT or WITH (case-insensitive), and the
// statement must not contain a semicolon, a `--` or `/*` comment marker, or
// any mutating keyword as a whole word.
func CheckReadOnly(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return fmt.Errorf("empty statement not allowed")
	}

	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("Multiple statements not allowed")
	}
	if strings.Contains(trimmed, "--") {
		return fmt.Errorf("comment markers not allowed")
	}
	if strings.Contains(trimmed, "/*") {
		return fmt.Errorf("comment markers not allowed")
	}

	firstToken := firstWord(trimmed)
	upper := strings.ToUpper(firstToken)
	if upper != "SELECT" && upper != "WITH" {
		return fmt.Errorf("only SELECT or WITH statements are allowed, got %q", firstToken)
	}

	upperSQL := strings.ToUpper(trimmed)
	for _, kw := range blockedKeywords {
		if containsWholeWord(upperSQL, kw) {
			return fmt.Errorf("keyword %q is not allowed in read-only statements", kw)
		}
	}

	return nil
}

// SanitizeIdentifier accepts only ASCII letters, digits, underscore, and dot
// (for schema.table references), 1-128 characters. It returns name unchanged
// on success. Callers apply dialect-native quoting to the returned value —
// never instead of sanitization.
func SanitizeIdentifier(name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q: must match %s", name, identifierPattern.String())
	}
	return name, nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// containsWholeWord reports whether kw appears in s (both already uppercase)
// bordered by non-identifier characters (or the string boundary) on both
// sides, so e.g. "SELECTED" does not match the keyword "SELECT" and
// "DROPDOWN" does not match "DROP".
func containsWholeWord(s, kw string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], kw)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(kw)

		beforeOK := start == 0 || !isIdentChar(s[start-1])
		afterOK := end == len(s) || !isIdentChar(s[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isIdentChar(b byte) bool {
	return b == '_' ||
		(b >= 'A' && b <= 'Z') ||
		(b >= 'a' && b <= 'z') ||
		(b >= '0' && b <= '9')
}
