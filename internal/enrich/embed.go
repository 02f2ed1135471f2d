package enrich

import (
	"html"
	"strings"
	"time"

	"chatview-server/internal/emoji"
	"chatview-server/internal/types"
)

// renderRich renders markdown from an embed, poll or other structured field.
func renderRich(text string, prefs types.Preferences) string {
	o := emoji.Options{ShowImages: prefs.ShowImages, ShowAnimations: prefs.ShowAnimations}
	return defaultMarkdown.Render(text, emoji.Extension(o))
}

// RenderEmbed renders a rich embed. Empty embeds render to "".
func RenderEmbed(e types.Embed, prefs types.Preferences) string {
	if e.IsEmpty() {
		return ""
	}
	var sb strings.Builder

	sb.WriteString(`<div class="embed"`)
	if c := ColorHex(e.Color); c != "" {
		sb.WriteString(` style="border-left-color:` + c + `"`)
	}
	sb.WriteString(`><div class="embed-body">`)

	if p := e.Provider; p != nil && p.Name != "" {
		sb.WriteString(`<div class="embed-provider">`)
		writeMaybeLink(&sb, p.Name, p.URL)
		sb.WriteString(`</div>`)
	}

	if a := e.Author; a != nil && a.Name != "" {
		sb.WriteString(`<div class="embed-author">`)
		if a.IconURL != "" && prefs.ShowImages {
			sb.WriteString(`<img class="embed-author-icon" src="`)
			sb.WriteString(html.EscapeString(MediaURL(a.IconURL)))
			sb.WriteString(`" alt="" width="24" height="24" loading="lazy">`)
		}
		writeMaybeLink(&sb, a.Name, a.URL)
		sb.WriteString(`</div>`)
	}

	if e.Title != "" {
		sb.WriteString(`<div class="embed-title">`)
		if href, ok := LinkURL(e.URL); ok {
			sb.WriteString(`<a href="`)
			sb.WriteString(html.EscapeString(href))
			sb.WriteString(`" target="_blank" rel="noopener">`)
			sb.WriteString(renderRich(e.Title, prefs))
			sb.WriteString(`</a>`)
		} else {
			sb.WriteString(renderRich(e.Title, prefs))
		}
		sb.WriteString(`</div>`)
	}

	if e.Description != "" {
		sb.WriteString(`<div class="embed-description">`)
		sb.WriteString(renderRich(e.Description, prefs))
		sb.WriteString(`</div>`)
	}

	if len(e.Fields) > 0 {
		sb.WriteString(`<div class="embed-fields">`)
		for _, f := range e.Fields {
			sb.WriteString(`<div class="embed-field`)
			if f.Inline {
				sb.WriteString(` embed-field-inline`)
			}
			sb.WriteString(`"><div class="embed-field-name">`)
			sb.WriteString(renderRich(f.Name, prefs))
			sb.WriteString(`</div><div class="embed-field-value">`)
			sb.WriteString(renderRich(f.Value, prefs))
			sb.WriteString(`</div></div>`)
		}
		sb.WriteString(`</div>`)
	}

	if prefs.ShowImages {
		switch {
		case e.Video != nil && e.Video.URL != "":
			sb.WriteString(`<video class="embed-video" src="`)
			sb.WriteString(html.EscapeString(MediaURL(e.Video.URL)))
			sb.WriteString(`" controls preload="metadata"></video>`)
		case e.Image != nil && e.Image.URL != "":
			writeMedia(&sb, "embed-image", e.Image, prefs)
		}
	}
	sb.WriteString(`</div>`)

	if e.Thumbnail != nil && e.Thumbnail.URL != "" && prefs.ShowImages {
		writeMedia(&sb, "embed-thumbnail", e.Thumbnail, prefs)
	}

	if e.Footer != nil || e.Timestamp != nil {
		sb.WriteString(`<div class="embed-footer">`)
		if f := e.Footer; f != nil {
			if f.IconURL != "" && prefs.ShowImages {
				sb.WriteString(`<img class="embed-footer-icon" src="`)
				sb.WriteString(html.EscapeString(MediaURL(f.IconURL)))
				sb.WriteString(`" alt="" width="20" height="20" loading="lazy">`)
			}
			sb.WriteString(html.EscapeString(f.Text))
		}
		if e.Timestamp != nil {
			if e.Footer != nil && e.Footer.Text != "" {
				sb.WriteString(" \u2022 ")
			}
			t := e.Timestamp.In(prefs.Location())
			sb.WriteString(`<time datetime="`)
			sb.WriteString(t.Format(time.RFC3339))
			sb.WriteString(`">`)
			sb.WriteString(t.Format("01/02/2006 3:04 PM"))
			sb.WriteString(`</time>`)
		}
		sb.WriteString(`</div>`)
	}

	sb.WriteString(`</div>`)
	return sb.String()
}

// writeMaybeLink links text to href when href is a web URL.
func writeMaybeLink(sb *strings.Builder, text, raw string) {
	href, ok := LinkURL(raw)
	if !ok {
		sb.WriteString(`<span>`)
		sb.WriteString(html.EscapeString(text))
		sb.WriteString(`</span>`)
		return
	}
	sb.WriteString(`<a href="`)
	sb.WriteString(html.EscapeString(href))
	sb.WriteString(`" target="_blank" rel="noopener">`)
	sb.WriteString(html.EscapeString(text))
	sb.WriteString(`</a>`)
}

// writeMedia writes an embed image. Animated images become links when
// animations are off.
func writeMedia(sb *strings.Builder, class string, m *types.EmbedMedia, prefs types.Preferences) {
	src := html.EscapeString(MediaURL(m.URL))
	if isAnimatedURL(m.URL) && !prefs.ShowAnimations {
		sb.WriteString(`<a class="` + class + ` media-paused" href="` + src + `" target="_blank" rel="noopener">GIF</a>`)
		return
	}
	sb.WriteString(`<img class="` + class + `" src="` + src + `" alt="" loading="lazy">`)
}
