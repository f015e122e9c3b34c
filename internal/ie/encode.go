package ie

import (
	"sort"
	"strings"
)

// EncodeSorted joins a selector set into the sorted, comma-separated wire
// format stored in Event.rsn_akms / Event.rsn_ciphers.
func EncodeSorted(set Selectors) string {
	out := make([]string, 0, len(set))
	for sel := range set {
		out = append(out, sel)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// DecodeSorted parses the comma-separated wire format back into a set. An
// empty string decodes to an empty (non-nil) set.
func DecodeSorted(s string) Selectors {
	set := Selectors{}
	if s == "" {
		return set
	}
	for _, sel := range strings.Split(s, ",") {
		set[sel] = struct{}{}
	}
	return set
}
