package markdown

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

// Placeholder tokens are built from private-use runes that are scrubbed from
// input, so a token can never be forged by message text.
const (
	phOpen  = '\uE000'
	phClose = '\uE001'

	// maxDepth bounds restoration recursion. Each level renders text captured
	// strictly inside its parent, so real input stays far below it.
	maxDepth = 8
)

var placeholderRe = regexp.MustCompile("\uE000([0-9]+)\uE001")

type slotKind int

const (
	slotCodeBlock slotKind = iota
	slotCodeSpan
	slotLink
	slotMaskedLink
	slotExtension
	slotUnderline
	slotSpoiler
	slotHeader
	slotList
	slotQuote
)

func (k slotKind) isCode() bool { return k == slotCodeBlock || k == slotCodeSpan }

// isBlock reports whether the slot renders a block element, which already
// starts a new line on its own.
func (k slotKind) isBlock() bool {
	switch k {
	case slotCodeBlock, slotHeader, slotList, slotQuote:
		return true
	}
	return false
}

// slot is one protected construct. text is the captured content (verbatim for
// code), raw the original markup used when recursion is cut off.
type slot struct {
	kind  slotKind
	text  string
	raw   string
	lang  string
	level int
	href  string
	items []string
	html  string
}

// document is the state of a single render: the slot table shared by every
// recursion level.
type document struct {
	r     *Renderer
	slots []slot
}

func (d *document) protect(s slot) string {
	d.slots = append(d.slots, s)
	return string(phOpen) + strconv.Itoa(len(d.slots)-1) + string(phClose)
}

func (d *document) protectHTML(trusted string) string {
	return d.protect(slot{kind: slotExtension, html: trusted})
}

func (d *document) lookup(token string) (slot, bool) {
	m := placeholderRe.FindStringSubmatch(token)
	if m == nil {
		return slot{}, false
	}
	i, err := strconv.Atoi(m[1])
	if err != nil || i < 0 || i >= len(d.slots) {
		return slot{}, false
	}
	return d.slots[i], true
}

// blockLine reports whether line is nothing but a block placeholder.
func (d *document) blockLine(line string) bool {
	if !placeholderRe.MatchString(line) || placeholderRe.FindString(line) != line {
		return false
	}
	s, ok := d.lookup(line)
	return ok && s.kind.isBlock()
}

// =============================================================================
// Phase 2: render and restore
// =============================================================================

// blockMode controls which line constructs are recognised.
type blockMode struct {
	quotes bool
}

// renderBlock runs the structural steps and the inline engine over s, then
// restores every non-code placeholder it contains.
func (d *document) renderBlock(s string, depth int, mode blockMode) string {
	s = normalizeEmphasis(s)
	s = d.extractInline(s)
	s = d.extractHeaders(s)
	s = d.extractLines(s, mode)
	return d.restore(d.r.engine(s), depth)
}

// renderInline is renderBlock without headers, quotes and lists. It is used
// for text captured by spoilers, underlines, headers and list items.
func (d *document) renderInline(s string, depth int) string {
	s = normalizeEmphasis(s)
	s = d.extractInline(s)
	return d.restore(d.r.engine(s), depth)
}

func (d *document) restore(s string, depth int) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(token string) string {
		sl, ok := d.lookup(token)
		if !ok || sl.kind.isCode() {
			return token
		}
		if depth >= maxDepth {
			return html.EscapeString(d.expandRaw(sl.raw))
		}
		return d.restoreSlot(sl, depth+1)
	})
}

func (d *document) restoreSlot(sl slot, depth int) string {
	switch sl.kind {
	case slotExtension:
		return sl.html
	case slotLink:
		href := html.EscapeString(sl.href)
		return fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener">%s</a>`, href, href)
	case slotMaskedLink:
		return fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener">%s</a>`,
			html.EscapeString(sl.href), d.renderInline(sl.text, depth))
	case slotUnderline:
		return "<u>" + d.renderInline(sl.text, depth) + "</u>"
	case slotSpoiler:
		return `<span class="spoiler">` + d.renderInline(sl.text, depth) + "</span>"
	case slotHeader:
		return fmt.Sprintf("<h%d>%s</h%d>", sl.level, d.renderInline(sl.text, depth), sl.level)
	case slotList:
		var sb strings.Builder
		sb.WriteString("<ul>")
		for _, item := range sl.items {
			sb.WriteString("<li>")
			sb.WriteString(d.renderInline(item, depth))
			sb.WriteString("</li>")
		}
		sb.WriteString("</ul>")
		return sb.String()
	case slotQuote:
		// Quotes do not nest on the platform: markers inside stay literal.
		return "<blockquote>" + d.renderBlock(sl.text, depth, blockMode{quotes: false}) + "</blockquote>"
	}
	return html.EscapeString(sl.raw)
}

// expandRaw replaces structural placeholders in raw with their own markup.
// Slots only ever reference slots created before them, so this terminates.
func (d *document) expandRaw(raw string) string {
	return placeholderRe.ReplaceAllStringFunc(raw, func(token string) string {
		sl, ok := d.lookup(token)
		if !ok || sl.kind.isCode() {
			return token
		}
		if sl.kind == slotExtension {
			return token
		}
		return d.expandRaw(sl.raw)
	})
}

// restoreCode resolves code placeholders last, from HTML-escaped raw content,
// so code is never markdown-processed. Extension slots left by a depth
// cut-off are resolved here too.
func (d *document) restoreCode(s string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(token string) string {
		sl, ok := d.lookup(token)
		if !ok {
			return token
		}
		switch sl.kind {
		case slotCodeBlock:
			class := ""
			if sl.lang != "" {
				class = ` class="language-` + html.EscapeString(sl.lang) + `"`
			}
			return "<pre><code" + class + ">" + html.EscapeString(sl.text) + "</code></pre>"
		case slotCodeSpan:
			return "<code>" + d.restoreCode(html.EscapeString(sl.text)) + "</code>"
		case slotExtension:
			return sl.html
		}
		return token
	})
}
