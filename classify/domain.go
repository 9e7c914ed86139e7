// Package classify maps free-text sender strings onto grouping keys.
package classify

import (
	"regexp"
	"strings"
)

// Other is the group for senders without a recognisable domain.
const Other = "Other"

var (
	emailPattern  = regexp.MustCompile(`[\w.-]+@([\w.-]+)`)
	domainPattern = regexp.MustCompile(`([\w.-]+\.(?:com|org|net|edu|io|co|gov))\b`)
)

// Domain returns the domain part of the first address found in sender,
// falling back to a bare domain-like token and then to Other.
func Domain(sender string) string {
	if m := emailPattern.FindStringSubmatch(sender); m != nil {
		if d := clean(m[1]); d != "" {
			return d
		}
	}
	if m := domainPattern.FindStringSubmatch(sender); m != nil {
		if d := clean(m[1]); d != "" {
			return d
		}
	}
	return Other
}

func clean(d string) string {
	return strings.ToLower(strings.Trim(d, ".-"))
}
