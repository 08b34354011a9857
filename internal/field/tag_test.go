package field_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/andrewwphillips/library/internal/field"
	"pgregory.net/rapid"
)

func TestGetTagInfo(t *testing.T) {
	tagData := map[string]struct {
		in string
		// Expected results
		name   string
		params []string
	}{
		"Empty":        {``, "", nil},
		"Empty2":       {`,`, "", nil},
		"NameOnly":     {`id`, "id", nil},
		"Params0":      {`me()`, "me", []string{}},
		"Params1":      {`bookAdded(ctx)`, "bookAdded", []string{"ctx"}},
		"Params2":      {`allBooks(author,genre)`, "allBooks", []string{"author", "genre"}},
		"ParamsSpaced": {`addBook( title , published , author, genres )`, "addBook", []string{"title", "published", "author", "genres"}},
		"ParamsOnly":   {`(a,b)`, "", []string{"a", "b"}},
	}
	for name, data := range tagData {
		got, err := field.GetTagInfo(data.in)
		Assertf(t, err == nil, "Error   : %12s: expected no error got %v", name, err)
		if err != nil {
			continue
		}
		Assertf(t, got.Name == data.name, "Name    : %12s: expected %q got %q", name, data.name, got.Name)
		Assertf(t, reflect.DeepEqual(got.Params, data.params), "Params  : %12s: expected %q got %q", name, data.params, got.Params)
	}
}

func TestGetTagInfoErrors(t *testing.T) {
	errorData := map[string]string{
		"UnknownOption": `name,subscript`,
		"Nullable":      `born,nullable`,
		"Unmatched":     `f(a,b`,
		"EmptyArg":      `f(a,,b)`,
		"Trailing":      `f(a)x`,
	}
	for name, in := range errorData {
		_, err := field.GetTagInfo(in)
		Assertf(t, err != nil, "%14s: expected an error for %q", name, in)
	}

	got, err := field.GetTagInfo("-")
	Assertf(t, err == nil && got == nil, "dash tag should be ignored, got %v %v", got, err)
}

func TestSplitArgs(t *testing.T) {
	splitArgsData := map[string]struct {
		in  string
		exp []string
	}{
		"Empty":         {"", []string{""}},
		"DoubleEmpty":   {",", []string{"", ""}},
		"One":           {"a", []string{"a"}},
		"OneSpace":      {" a ", []string{"a"}},
		"OneQuotes":     {`"a" `, []string{`"a"`}},
		"Brackets":      {"(a)", []string{"(a)"}},
		"BracketNested": {"a(b(c), d), e(f)", []string{"a(b(c), d)", "e(f)"}},
		"Params4":       {"  a,  b,  c,  d(e, f) ", []string{"a", "b", "c", "d(e, f)"}},
		"String":        {`a(b"(c), d), e("f)`, []string{`a(b"(c), d), e("f)`}},
		"String3":       {` a("{]}"), b[1,2,3] `, []string{`a("{]}")`, `b[1,2,3]`}},
	}
	for name, data := range splitArgsData {
		t.Run(name, func(t *testing.T) {
			got, err := field.SplitArgs(data.in)
			Assertf(t, err == nil, "Error: expected no error got %v", err)
			Assertf(t, reflect.DeepEqual(got, data.exp), "Split: expected %q got %q", data.exp, got)
		})
	}
}

// TestSplitArgsRoundTrip checks that joining any list of argument names with commas splits back to the same list
func TestSplitArgsRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z_][a-zA-Z0-9_]{0,10}`), 1, 8).Draw(t, "names")
		got, err := field.SplitArgs(strings.Join(names, ", "))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(got, names) {
			t.Fatalf("expected %q got %q", names, got)
		}
	})
}

func Assertf(t *testing.T, succeeded bool, format string, args ...interface{}) {
	const (
		succeed = "\u2713" // tick
		failed  = "X"      //"\u2717" // cross
	)

	t.Helper()
	if !succeeded {
		t.Errorf("%s\t"+format, append([]interface{}{failed}, args...)...)
	} else {
		t.Logf("%s\t"+format, append([]interface{}{succeed}, args...)...)
	}
}
