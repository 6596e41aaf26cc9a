package backend

import (
	"regexp"
	"strings"
)

// fenceWrapperRe matches output wrapped in a single markdown fence.
// The opening fence must be bare or tagged markdown/md so that a page
// that legitimately is one code block keeps its fence.
var fenceWrapperRe = regexp.MustCompile("(?s)^```(?:markdown|md)?[ \t]*\n(.*?)\n?[ \t]*```$")

// Sanitize normalizes a model's raw output into a fragment: trims
// whitespace and unwraps the enclosing code fence that models add
// despite instructions.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceWrapperRe.FindStringSubmatch(s); len(m) > 1 {
		s = strings.TrimSpace(m[1])
	}
	return s
}
