package enrich

import (
	"html"
	"net/url"
	"path"
	"strings"

	"github.com/dustin/go-humanize"

	"chatview-server/internal/types"
)

// spoilerPrefix marks an attachment the uploader flagged as a spoiler.
const spoilerPrefix = "SPOILER_"

func isAnimatedURL(raw string) bool {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	return strings.EqualFold(path.Ext(p), ".gif")
}

// RenderAttachments renders uploaded files. Images and video respect the
// viewer's media preferences; everything else is a download link.
func (e *Env) RenderAttachments(atts []types.Attachment) string {
	return RenderAttachments(atts, e.prefs())
}

// RenderAttachments renders uploaded files for prefs.
func RenderAttachments(atts []types.Attachment, prefs types.Preferences) string {
	if len(atts) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(`<div class="attachments">`)
	for _, a := range atts {
		spoiler := strings.HasPrefix(a.Name, spoilerPrefix)
		if spoiler {
			sb.WriteString(`<span class="spoiler spoiler-attachment">`)
		}
		writeAttachment(&sb, a, prefs)
		if spoiler {
			sb.WriteString(`</span>`)
		}
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

func writeAttachment(sb *strings.Builder, a types.Attachment, prefs types.Preferences) {
	src := html.EscapeString(MediaURL(a.URL))
	name := html.EscapeString(strings.TrimPrefix(a.Name, spoilerPrefix))

	switch {
	case a.Kind == types.AttachmentImage && prefs.ShowImages &&
		(prefs.ShowAnimations || !isAnimatedURL(a.Name)):
		sb.WriteString(`<a class="attachment-image" href="` + src + `" target="_blank" rel="noopener">`)
		sb.WriteString(`<img src="` + src + `" alt="` + name + `" loading="lazy"></a>`)
	case a.Kind == types.AttachmentVideo && prefs.ShowImages:
		sb.WriteString(`<video class="attachment-video" src="` + src + `" controls preload="metadata"></video>`)
	case a.Kind == types.AttachmentAudio:
		sb.WriteString(`<div class="attachment-audio"><span class="attachment-name">` + name + `</span>`)
		sb.WriteString(`<audio src="` + src + `" controls preload="metadata"></audio></div>`)
	default:
		sb.WriteString(`<div class="attachment-file"><a href="` + src + `" download="` + name + `">` + name + `</a>`)
		if a.Size > 0 {
			sb.WriteString(` <span class="attachment-size">` + humanize.Bytes(uint64(a.Size)) + `</span>`)
		}
		sb.WriteString(`</div>`)
	}
}

// RenderStickers renders stickers, or their names when images are off.
func RenderStickers(stickers []types.Sticker, prefs types.Preferences) string {
	if len(stickers) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(`<div class="stickers">`)
	for _, s := range stickers {
		name := html.EscapeString(s.Name)
		if !prefs.ShowImages || (s.Animated && !prefs.ShowAnimations) {
			sb.WriteString(`<span class="sticker-name">Sticker: ` + name + `</span>`)
			continue
		}
		sb.WriteString(`<img class="sticker" src="` + html.EscapeString(StickerURL(s.ID)) +
			`" alt="` + name + `" title="` + name + `" width="160" height="160" loading="lazy">`)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}
