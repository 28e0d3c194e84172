package aggregator

import (
	"bytes"
	"regexp"
	"strings"
)

// Category is a regular-expression filter plus the ordered list of
// Computations to run against any metric name it matches. Grounded on
// original_source/.../maths/math_category.{hpp,cpp}, generalized with the
// teacher aggregator's prefix/substring pre-match optimization (the teacher
// derives these from a regex's static leading literal to skip the regex
// engine on the hot path).
type Category struct {
	Filter       string
	regex        *regexp.Regexp
	prefix       []byte
	Computations []*Computation
}

// NewCategory compiles filter as a regular expression and derives its
// static-prefix pre-match optimization.
func NewCategory(filter string) (*Category, error) {
	re, err := regexp.Compile(filter)
	if err != nil {
		return nil, err
	}
	return &Category{
		Filter: filter,
		regex:  re,
		prefix: regexToPrefix(filter),
	}, nil
}

// AddComputation appends a computation to the category.
func (c *Category) AddComputation(comp *Computation) {
	c.Computations = append(c.Computations, comp)
}

// Empty reports whether the category has no computations.
func (c *Category) Empty() bool { return len(c.Computations) == 0 }

// PreMatch cheaply rejects names that cannot possibly match the category's
// regex, based on its derived static prefix. A false here guarantees the
// regex would not match; a true here means the regex still must run.
func (c *Category) PreMatch(name []byte) bool {
	return len(c.prefix) == 0 || bytes.HasPrefix(name, c.prefix)
}

// Matches reports whether name satisfies both the pre-match and the full
// regular expression.
func (c *Category) Matches(name []byte) bool {
	return c.PreMatch(name) && c.regex.Match(name)
}

// regexToPrefix inspects a regex pattern and returns the longest static
// leading literal substring it can extract — e.g. "^app\." yields "app.".
// A literal followed by '*', '?' or '{' is left out of the prefix (it may
// occur zero times), and a pattern containing '|' yields no prefix at all.
// Ported verbatim in spirit from the teacher aggregator's regexToPrefix,
// which performs the identical scan to support its own PreMatch.
func regexToPrefix(pattern string) []byte {
	if strings.ContainsRune(pattern, '|') {
		return nil
	}
	var prefix []byte
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		if i == 0 {
			if ch == '^' {
				continue
			}
			break
		}
		switch {
		case (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-':
			prefix = append(prefix, ch)
		case ch == '\\' && i+1 < len(pattern) && pattern[i+1] == '.':
			prefix = append(prefix, '.')
			i++
		default:
			if (ch == '*' || ch == '?' || ch == '{') && len(prefix) > 0 {
				prefix = prefix[:len(prefix)-1]
			}
			return prefix
		}
	}
	return prefix
}
