package kvstore

import (
	"regexp"
	"strings"
)

// compileGlob turns a pattern with '*' as its only wildcard into an anchored
// regular expression. Every other character matches literally.
func compileGlob(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}
