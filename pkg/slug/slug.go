// Package slug builds and checks URL path segments such as category ids and
// blog post slugs.
package slug

import (
	"regexp"
	"strings"
)

// MaxLength bounds generated and accepted slugs.
const MaxLength = 100

var pattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Make lowercases s, keeps ASCII letters and digits, and joins the runs
// between them with single hyphens. Other characters are dropped.
func Make(s string) string {
	var (
		b    strings.Builder
		dash bool
	)
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}

	out := b.String()
	if len(out) > MaxLength {
		out = strings.TrimRight(out[:MaxLength], "-")
	}
	return out
}

// Valid reports whether s is a well-formed slug.
func Valid(s string) bool {
	return len(s) <= MaxLength && pattern.MatchString(s)
}
