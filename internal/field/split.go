package field

// split.go splits tag strings at comma separators while allowing for brackets and quoted strings

import (
	"fmt"
	"strings"
)

// SplitArgs splits a string on commas and returns the resulting slice of (trimmed) strings.
// It ignores commas within strings, round brackets, square brackets or braces, which
// allows for "nested" structures. For example "a,b(c,d),e"  => []string{ "a", "b(c,d)", "e" }
// An error is returned if there is a problem with the input string such as unmatched brackets.
func SplitArgs(s string) ([]string, error) {
	var round, square, brace int
	var inString bool
	retval := make([]string, 0, 4)
	start := 0

	for i, c := range s {
		if inString {
			if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(':
			round++
		case '[':
			square++
		case '{':
			brace++
		case ')':
			if round--; round < 0 {
				return nil, fmt.Errorf("unmatched right bracket ')' in %q", s)
			}
		case ']':
			if square--; square < 0 {
				return nil, fmt.Errorf("unmatched right square bracket ']' in %q", s)
			}
		case '}':
			if brace--; brace < 0 {
				return nil, fmt.Errorf("unmatched right brace '}' in %q", s)
			}
		case ',':
			if round == 0 && square == 0 && brace == 0 { // only split at "top-level" commas
				retval = append(retval, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	switch {
	case inString:
		return nil, fmt.Errorf("unmatched quote (unterminated string) in %q", s)
	case round > 0:
		return nil, fmt.Errorf("unmatched left bracket '(' in %q", s)
	case square > 0:
		return nil, fmt.Errorf("unmatched left square bracket '[' in %q", s)
	case brace > 0:
		return nil, fmt.Errorf("unmatched left brace '{' in %q", s)
	}

	// Add last (or only) segment
	return append(retval, strings.TrimSpace(s[start:])), nil
}
