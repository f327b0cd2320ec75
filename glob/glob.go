// Package glob compiles the Watchtower-Sentry key-pattern mini-language into
// an anchored regular expression. The vocabulary is a restricted glob over
// '.'-separated key segments: '*' (any run of
// non-'.'), '?' (one non-'.'), '[...]' (character class), '{a,b,c}'
// (alternation), a single level of '(...)' (capturing group for
// aggregation), and '\x' escapes.
package glob

import (
	"fmt"
	"regexp"
	"strings"
)

// ToRegex translates a glob pattern into an anchored *regexp.Regexp. Each
// top-level '(...)' in pattern becomes one capturing group in the result, in
// source order: the emitted capturing groups correspond positionally to the
// pattern's parenthesized subexpressions.
func ToRegex(pattern string) (*regexp.Regexp, error) {
	src, err := translate(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob: %q: %w", pattern, err)
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("glob: %q: compiled to invalid regexp %q: %w", pattern, src, err)
	}
	return re, nil
}

// MustToRegex is ToRegex but panics on error; used where the pattern is a
// compile-time constant.
func MustToRegex(pattern string) *regexp.Regexp {
	re, err := ToRegex(pattern)
	if err != nil {
		panic(err)
	}
	return re
}

// translate runs the character-by-character state machine that produces the
// regexp source for pattern. It rejects nested '(...)' groups and the meta
// characters '.', '*', '{', '}', '[', ']', '(', ')' inside a '{...}'
// alternation.
func translate(pattern string) (string, error) {
	var out strings.Builder
	out.WriteString("^")

	inGroup := false
	inClass := false
	classStart := false
	inBrace := false

	const globMeta = "*?{}[]()"

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]

		switch {
		case c == '\\':
			i++
			if i >= len(runes) {
				return "", fmt.Errorf("illegal trailing '\\' in pattern")
			}
			if !strings.ContainsRune(globMeta, runes[i]) {
				return "", fmt.Errorf("illegal escape '\\%c' in pattern", runes[i])
			}
			out.WriteString(regexp.QuoteMeta(string(runes[i])))
			classStart = false

		case inClass:
			switch {
			case c == ']':
				inClass = false
				out.WriteRune(c)
			case c == '^' && classStart:
				// a negated class must also exclude the '.' segment separator
				out.WriteString("^.")
			case c == '^' || c == '-':
				out.WriteRune(c)
			default:
				out.WriteString(classLiteral(c))
			}
			classStart = false

		case inBrace:
			switch c {
			case '}':
				inBrace = false
				out.WriteString(")")
			case ',':
				out.WriteString("|")
			case '.', '*', '{', '[', ']', '(', ')':
				return "", fmt.Errorf("illegal character %q inside {...} alternation", c)
			default:
				out.WriteString(regexp.QuoteMeta(string(c)))
			}

		case c == '*':
			out.WriteString("[^.]*")
		case c == '?':
			out.WriteString("[^.]")
		case c == '[':
			inClass = true
			classStart = true
			out.WriteRune('[')
		case c == '{':
			inBrace = true
			out.WriteString("(?:")
		case c == '(':
			if inGroup {
				return "", fmt.Errorf("nested (...) groups are illegal")
			}
			inGroup = true
			out.WriteRune('(')
		case c == ')':
			if !inGroup {
				return "", fmt.Errorf("unmatched )")
			}
			inGroup = false
			out.WriteRune(')')
		case c == '.':
			out.WriteString(`\.`)
		default:
			out.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	if inGroup {
		return "", fmt.Errorf("unterminated (...) group")
	}
	if inClass {
		return "", fmt.Errorf("unterminated [...] class")
	}
	if inBrace {
		return "", fmt.Errorf("unterminated {...} alternation")
	}

	out.WriteString("$")
	return out.String(), nil
}

// classLiteral quotes a character for safe inclusion inside a regexp
// character class (where most metacharacters other than ']', '^', '-',
// '\\' lose their special meaning, but Go's regexp still treats a few
// specially if unescaped).
func classLiteral(c rune) string {
	switch c {
	case '\\', ']':
		return "\\" + string(c)
	default:
		return string(c)
	}
}

// Matcher matches a compiled glob against keys and extracts captured
// aggregation groups.
type Matcher struct {
	Pattern string
	re      *regexp.Regexp
}

// Compile builds a Matcher from a glob pattern.
func Compile(pattern string) (*Matcher, error) {
	re, err := ToRegex(pattern)
	if err != nil {
		return nil, err
	}
	return &Matcher{Pattern: pattern, re: re}, nil
}

// Match reports whether key matches the pattern and, if so, the ordered
// list of captured substrings (one per top-level '(...)').
func (m *Matcher) Match(key string) (groups []string, ok bool) {
	sub := m.re.FindStringSubmatch(key)
	if sub == nil {
		return nil, false
	}
	if len(sub) > 1 {
		return sub[1:], true
	}
	return nil, true
}

// Substitute rebuilds a group key by substituting groups, in order, into the
// '(...)' positions of the original pattern. Positions outside any '(...)'
// are copied from the pattern verbatim; callers always call this with a
// matched pattern, so the surrounding glob syntax serves only as literal
// separators between the substituted captures.
func Substitute(pattern string, groups []string) string {
	var out strings.Builder
	idx := 0
	depth := 0
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '\\':
			if depth == 0 {
				i++
				if i < len(runes) {
					out.WriteRune(runes[i])
				}
			}
		case '(':
			depth++
			if depth == 1 && idx < len(groups) {
				out.WriteString(groups[idx])
				idx++
			}
		case ')':
			depth--
		default:
			if depth == 0 {
				out.WriteRune(c)
			}
		}
	}
	return out.String()
}

// MatchFunc returns a predicate suitable for pipeline.Filter that keeps
// samples whose key matches pattern.
func MatchFunc(pattern string) (func(key string) bool, error) {
	m, err := Compile(pattern)
	if err != nil {
		return nil, err
	}
	return func(key string) bool {
		_, ok := m.Match(key)
		return ok
	}, nil
}
