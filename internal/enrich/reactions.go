package enrich

import (
	"html"
	"strconv"
	"strings"

	"chatview-server/internal/emoji"
	"chatview-server/internal/types"
)

// RenderReactions renders the reaction bar. Super reactions carry their own
// class and a burst marker.
func RenderReactions(reactions []types.Reaction, prefs types.Preferences) string {
	if len(reactions) == 0 {
		return ""
	}
	o := emoji.Options{ShowImages: prefs.ShowImages, ShowAnimations: prefs.ShowAnimations}

	var sb strings.Builder
	sb.WriteString(`<div class="reactions">`)
	for _, r := range reactions {
		if r.Count <= 0 {
			continue
		}
		class := "reaction"
		if r.IsSuperReaction {
			class += " reaction-super"
		}
		if r.Me {
			class += " reaction-me"
		}
		title := r.Emoji.Name
		if r.Emoji.IsCustom() {
			title = ":" + title + ":"
		}
		sb.WriteString(`<span class="` + class + `" title="` + html.EscapeString(title) + `">`)
		if r.IsSuperReaction {
			sb.WriteString(`<span class="reaction-burst" aria-label="super reaction"></span>`)
		}
		sb.WriteString(emoji.Render(r.Emoji, o))
		sb.WriteString(`<span class="reaction-count">` + strconv.Itoa(r.Count) + `</span></span>`)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}
