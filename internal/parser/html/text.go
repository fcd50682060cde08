package html

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	styleBlock  = regexp.MustCompile(`(?is)<style\b.*?</style\s*>`)
	commentNode = regexp.MustCompile(`(?s)<!--.*?-->`)
	anyTag      = regexp.MustCompile(`(?s)<[^>]*>`)
	digitsOnly  = regexp.MustCompile(`\D`)
)

// stripNoise removes scripts, styles and comments
func stripNoise(s string) string {
	s = scriptBlock.ReplaceAllString(s, " ")
	s = styleBlock.ReplaceAllString(s, " ")
	return commentNode.ReplaceAllString(s, " ")
}

// cleanText strips tags, unescapes entities, collapses whitespace and
// normalizes to NFC
func cleanText(s string) string {
	s = anyTag.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = strings.Join(strings.Fields(s), " ")
	return norm.NFC.String(s)
}

// segments splits markup into its non-empty text nodes, in order
func segments(s string) []string {
	var out []string
	for _, part := range anyTag.Split(s, -1) {
		if t := cleanText(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func onlyDigits(s string) string {
	return digitsOnly.ReplaceAllString(s, "")
}
