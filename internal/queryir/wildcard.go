package queryir

import (
	"strings"

	"golang.org/x/text/cases"
)

// Wildcard matches any run of characters, including none.
const Wildcard = "%"

// HasWildcard reports whether s contains the wildcard marker.
func HasWildcard(s string) bool {
	return strings.Contains(s, Wildcard)
}

// MatchWildcard reports whether s matches pattern, where every "%" matches
// any run of characters and everything else matches itself byte for byte.
// This is SQL LIKE with case_sensitive_like on and LikePattern escaping.
func MatchWildcard(s, pattern string) bool {
	parts := strings.Split(pattern, Wildcard)
	if len(parts) == 1 {
		return s == pattern
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for _, mid := range parts[1 : len(parts)-1] {
		i := strings.Index(s, mid)
		if i < 0 {
			return false
		}
		s = s[i+len(mid):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}

// LikeEscape is the ESCAPE character used with LikePattern.
const LikeEscape = `\`

// LikePattern turns a wildcard literal into a LIKE pattern: "%" stays a
// wildcard, "_" and the escape character are matched literally.
func LikePattern(pattern string) string {
	r := strings.NewReplacer(LikeEscape, LikeEscape+LikeEscape, "_", LikeEscape+"_")
	return r.Replace(pattern)
}

// Fold returns the Unicode case folding of s. Both backends fold with this
// function (the relational one through a registered SQL function).
func Fold(s string) string {
	return cases.Fold().String(s)
}
