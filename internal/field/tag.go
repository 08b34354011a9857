package field

// tag.go handles extracting info from the "egg:" tag string (from struct field metadata)

import (
	"errors"
	"fmt"
	"strings"
)

// TagName is the struct field tag key used for resolver metadata
const TagName = "egg"

// GetTagInfo extracts the GraphQL field name and argument names from the field's tag (if any).
// A tag looks like `egg:"allBooks(author,genre)"` - a resolver name with optional bracketed
// argument names.  Nullability comes from the schema, not the tag.  If the tag just contains a dash (-) then nil
// is returned (no error).  If the tag string is empty then the returned Info is not nil but
// the Name field is empty.
func GetTagInfo(tag string) (*Info, error) {
	if tag == "-" {
		return nil, nil // this field is to be ignored
	}
	parts, err := SplitArgs(tag)
	if err != nil {
		return nil, fmt.Errorf("%w splitting tag %q", err, tag)
	}

	fieldInfo := &Info{}
	for i, part := range parts {
		if i == 0 { // first string is the name with optional args
			if err := getMain(part, fieldInfo); err != nil {
				return nil, fmt.Errorf("%w in resolver %q of tag %q", err, part, tag)
			}
			continue
		}
		if part != "" { // empty sections are ignored
			return nil, fmt.Errorf("unknown option %q in tag %q", part, tag)
		}
	}
	return fieldInfo, nil
}

// getMain handles the first part of the tag which may just be the resolver name (or even empty),
// but can also include the resolver's argument names (comma-separated and within brackets).
func getMain(s string, r *Info) error {
	i := strings.IndexByte(s, '(')
	if i == -1 {
		r.Name = s
		return nil
	}
	r.Name = strings.TrimSpace(s[:i])

	list, err := getBracketedList(s[i:])
	if err != nil {
		return fmt.Errorf("%w getting resolver args", err)
	}
	r.Params = list
	for _, p := range list {
		if p == "" {
			return errors.New("empty argument name")
		}
	}
	return nil
}

// getBracketedList gets a list of values from a string enclosed in brackets.
// Eg for getBracketedList("(a, b)") it will return the list of strings {"a", "b"}.
func getBracketedList(s string) ([]string, error) {
	last := len(s) - 1
	if last < 1 || s[0] != '(' || s[last] != ')' {
		return nil, errors.New("arguments not in brackets")
	}
	s = strings.TrimSpace(s[1:last])
	if s == "" {
		// Avoid behaviour of SplitArgs on boundary condition (empty string)
		return []string{}, nil
	}
	return SplitArgs(s)
}
