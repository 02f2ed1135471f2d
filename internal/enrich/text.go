package enrich

import (
	"strings"

	"golang.org/x/net/html"
)

// TextContent returns the visible text of an HTML fragment. Images count
// through their alt text, so an emoji-only message is not blank.
func TextContent(fragment string) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.TextToken:
			sb.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "img" {
				continue
			}
			for _, a := range tok.Attr {
				if a.Key == "alt" {
					sb.WriteString(a.Val)
				}
			}
		}
	}
}

// IsBlank reports whether an HTML fragment has no visible text.
func IsBlank(fragment string) bool {
	return strings.TrimSpace(TextContent(fragment)) == ""
}
