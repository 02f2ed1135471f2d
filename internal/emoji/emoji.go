// Package emoji recognises unicode and custom emoji in message text and
// renders them through the emoji proxy.
package emoji

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"

	"chatview-server/internal/markdown"
	"chatview-server/internal/types"
)

// Rendered sizes in pixels. Jumbo emoji are twice the inline size.
const (
	InlineSize = 22
	JumboSize  = 2 * InlineSize

	// MaxJumbo is the largest emoji-only message rendered at jumbo size.
	MaxJumbo = 29
)

// CustomRe matches the platform's custom emoji token: <:name:id> or
// <a:name:id> for animated emoji.
var CustomRe = regexp.MustCompile(`<(a?):(\w{2,32}):(\d{17,20})>`)

const (
	vs16       = '\uFE0F'
	zwj        = '\u200D'
	keycapMark = '\u20E3'
)

// pictographic covers the code points that render as emoji on their own.
// Code points below U+2000 (digits, copyright, registered) only count as emoji
// with a presentation selector or keycap mark.
var pictographic = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x203c, Hi: 0x203c, Stride: 1},
		{Lo: 0x2049, Hi: 0x2049, Stride: 1},
		{Lo: 0x21a9, Hi: 0x21aa, Stride: 1},
		{Lo: 0x231a, Hi: 0x231b, Stride: 1},
		{Lo: 0x2328, Hi: 0x2328, Stride: 1},
		{Lo: 0x23cf, Hi: 0x23cf, Stride: 1},
		{Lo: 0x23e9, Hi: 0x23f3, Stride: 1},
		{Lo: 0x23f8, Hi: 0x23fa, Stride: 1},
		{Lo: 0x24c2, Hi: 0x24c2, Stride: 1},
		{Lo: 0x25aa, Hi: 0x25ab, Stride: 1},
		{Lo: 0x25b6, Hi: 0x25b6, Stride: 1},
		{Lo: 0x25c0, Hi: 0x25c0, Stride: 1},
		{Lo: 0x25fb, Hi: 0x25fe, Stride: 1},
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2b05, Hi: 0x2b07, Stride: 1},
		{Lo: 0x2b1b, Hi: 0x2b1c, Stride: 1},
		{Lo: 0x2b50, Hi: 0x2b50, Stride: 1},
		{Lo: 0x2b55, Hi: 0x2b55, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303d, Hi: 0x303d, Stride: 1},
		{Lo: 0x3297, Hi: 0x3297, Stride: 1},
		{Lo: 0x3299, Hi: 0x3299, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1faff, Stride: 1},
	},
}

// textDefault holds letterlike symbols and arrows that display as text
// unless a presentation selector follows. U+2139 is a letter, so the generic
// selector rule below does not cover it.
var textDefault = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x2122, Hi: 0x2122, Stride: 1},
		{Lo: 0x2139, Hi: 0x2139, Stride: 1},
		{Lo: 0x2194, Hi: 0x2199, Stride: 1},
	},
}

// IsEmoji reports whether a single grapheme cluster is an emoji. ZWJ
// sequences, skin tones, flags and keycaps are one cluster each.
func IsEmoji(cluster string) bool {
	if cluster == "" {
		return false
	}
	if strings.ContainsRune(cluster, keycapMark) {
		return true
	}
	first := []rune(cluster)[0]
	if unicode.Is(pictographic, first) {
		return true
	}
	if !strings.ContainsRune(cluster, vs16) {
		return false
	}
	return unicode.Is(textDefault, first) || (first >= 0x80 && !unicode.IsLetter(first))
}

// Analysis describes the emoji content of a raw message.
type Analysis struct {
	Count     int
	OnlyEmoji bool
}

// Jumbo reports whether the message qualifies for jumbo emoji.
func (a Analysis) Jumbo() bool {
	return a.OnlyEmoji && a.Count >= 1 && a.Count <= MaxJumbo
}

// Analyze counts the emoji in raw message text and reports whether anything
// other than emoji and whitespace remains.
func Analyze(raw string) Analysis {
	a := Analysis{OnlyEmoji: true}
	a.Count = len(CustomRe.FindAllStringIndex(raw, -1))
	rest := CustomRe.ReplaceAllString(raw, " ")

	g := uniseg.NewGraphemes(rest)
	for g.Next() {
		cluster := g.Str()
		if strings.TrimSpace(cluster) == "" {
			continue
		}
		if IsEmoji(cluster) {
			a.Count++
			continue
		}
		a.OnlyEmoji = false
	}
	return a
}

// Options control emoji rendering for one message.
type Options struct {
	ShowImages     bool
	ShowAnimations bool
	Jumbo          bool
}

// OptionsFor returns rendering options for raw message text under prefs.
func OptionsFor(raw string, prefs types.Preferences) Options {
	return Options{
		ShowImages:     prefs.ShowImages,
		ShowAnimations: prefs.ShowAnimations,
		Jumbo:          Analyze(raw).Jumbo(),
	}
}

func (o Options) size() int {
	if o.Jumbo {
		return JumboSize
	}
	return InlineSize
}

func (o Options) class() string {
	if o.Jumbo {
		return "emoji jumbo"
	}
	return "emoji"
}

// Codepoints returns the proxy file name for a unicode emoji: lowercase hex
// code points joined by '-', without the presentation selector unless the
// cluster is a ZWJ sequence.
func Codepoints(cluster string) string {
	keepVS := strings.ContainsRune(cluster, zwj)
	parts := make([]string, 0, 4)
	for _, r := range cluster {
		if r == vs16 && !keepVS {
			continue
		}
		parts = append(parts, strconv.FormatInt(int64(r), 16))
	}
	return strings.Join(parts, "-")
}

// UnicodeURL is the proxy path for a unicode emoji image.
func UnicodeURL(cluster string) string {
	return "/emoji/twemoji/" + Codepoints(cluster) + ".png"
}

// CustomURL is the proxy path for a custom emoji image. The animated variant
// is only requested when animations are enabled.
func CustomURL(id string, animated, showAnimations bool) string {
	if animated && showAnimations {
		return "/emoji/" + id + ".gif"
	}
	return "/emoji/" + id + ".png"
}

// RenderUnicode renders one unicode emoji cluster.
func RenderUnicode(cluster string, o Options) string {
	if !o.ShowImages {
		return fmt.Sprintf(`<span class="%s">%s</span>`, o.class(), html.EscapeString(cluster))
	}
	return fmt.Sprintf(`<img class="%s" src="%s" alt="%s" width="%d" height="%d" draggable="false">`,
		o.class(), UnicodeURL(cluster), html.EscapeString(cluster), o.size(), o.size())
}

// RenderCustom renders a custom emoji, or its :name: text when images are off.
func RenderCustom(name, id string, animated bool, o Options) string {
	alt := ":" + name + ":"
	if !o.ShowImages {
		return `<span class="emoji-text">` + html.EscapeString(alt) + `</span>`
	}
	return fmt.Sprintf(`<img class="%s" src="%s" alt="%s" title="%s" width="%d" height="%d" draggable="false">`,
		o.class(), html.EscapeString(CustomURL(id, animated, o.ShowAnimations)),
		html.EscapeString(alt), html.EscapeString(alt), o.size(), o.size())
}

// Render renders a reaction or poll emoji.
func Render(e types.Emoji, o Options) string {
	if e.IsCustom() {
		return RenderCustom(e.Name, e.ID, e.Animated, o)
	}
	return RenderUnicode(e.Name, o)
}

// Extension returns a markdown extension that replaces custom emoji tokens and
// unicode emoji with rendered emoji.
func Extension(o Options) markdown.Extension {
	return markdown.ExtensionFunc(func(s string, protect func(string) string) string {
		s = CustomRe.ReplaceAllStringFunc(s, func(match string) string {
			m := CustomRe.FindStringSubmatch(match)
			return protect(RenderCustom(m[2], m[3], m[1] == "a", o))
		})

		var sb strings.Builder
		g := uniseg.NewGraphemes(s)
		for g.Next() {
			cluster := g.Str()
			if IsEmoji(cluster) {
				sb.WriteString(protect(RenderUnicode(cluster, o)))
				continue
			}
			sb.WriteString(cluster)
		}
		return sb.String()
	})
}
