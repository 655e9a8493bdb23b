package metrics

import (
	"strings"
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// reason keeps label cardinality bounded: anything outside allowed becomes "other".
func reason(r string, allowed ...string) string {
	r = norm(r)
	for _, a := range allowed {
		if r == a {
			return r
		}
	}
	return "other"
}
