package transcript

import (
	"regexp"
	"strings"
)

// AnchorID is the element id the page scrolls to on load.
const AnchorID = "transcript-end"

// Anchor is the terminal scroll anchor marker.
const Anchor = `<div id="` + AnchorID + `" class="transcript-anchor"></div>`

var anchorRe = regexp.MustCompile(`<div id="` + AnchorID + `"[^>]*>\s*</div>`)

// PlaceAnchor removes every anchor already present in fragment and appends
// exactly one at the end. Applying it to output that was regenerated or
// concatenated any number of times still yields a single anchor.
func PlaceAnchor(fragment string) string {
	return strings.TrimRight(anchorRe.ReplaceAllString(fragment, ""), "\n") + "\n" + Anchor
}

// CountAnchors reports how many anchor markers fragment contains.
func CountAnchors(fragment string) int {
	return len(anchorRe.FindAllStringIndex(fragment, -1))
}
