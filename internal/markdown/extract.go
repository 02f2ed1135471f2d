package markdown

import (
	"regexp"
	"strings"
)

// =============================================================================
// Phase 1: tokenize and protect
// =============================================================================

var (
	// A fence only counts when it is closed; an unclosed fence stays literal.
	codeBlockRe  = regexp.MustCompile("(?s)```(?:([A-Za-z0-9_+#.-]+)\n)?(.*?)```")
	codeDoubleRe = regexp.MustCompile("``([^`](?:.*?[^`])?)``")
	codeSpanRe   = regexp.MustCompile("`([^`\n]+)`")

	maskedLinkRe = regexp.MustCompile(`\[([^\[\]\n]+)\]\(\s*<?(https?://[^\s<>()]+)>?\s*\)`)
	urlRe        = regexp.MustCompile(`<(https?://[^\s<>]+)>|https?://[^\s<>]+`)

	tripleStarRe  = regexp.MustCompile(`\*\*\*([^*\n]+?)\*\*\*`)
	tripleUnderRe = regexp.MustCompile(`___([^_\n]+?)___`)

	spoilerRe   = regexp.MustCompile(`(?s)\|\|(.+?)\|\|`)
	underlineRe = regexp.MustCompile(`(?s)__(.+?)__`)

	headerRe = regexp.MustCompile(`(?m)^(#{1,3}) +(\S[^\n]*)$`)
	bulletRe = regexp.MustCompile(`^\s*[-*] +(\S.*)$`)
)

// scrub removes the placeholder delimiter runes from user text and unifies
// line endings.
func scrub(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		if r == phOpen || r == phClose {
			return '\uFFFD'
		}
		return r
	}, s)
}

// StripCode drops fenced blocks and inline code spans from s, leaving the text
// the renderer would format. Callers use it to look for keywords outside code.
func StripCode(s string) string {
	s = codeBlockRe.ReplaceAllString(scrub(s), " ")
	for _, re := range []*regexp.Regexp{codeDoubleRe, codeSpanRe} {
		s = re.ReplaceAllString(s, " ")
	}
	return s
}

// extractCodeBlocks protects fenced code. It runs before everything else so
// fenced content is never reinterpreted.
func (d *document) extractCodeBlocks(s string) string {
	return codeBlockRe.ReplaceAllStringFunc(s, func(match string) string {
		m := codeBlockRe.FindStringSubmatch(match)
		body := strings.TrimPrefix(m[2], "\n")
		body = strings.TrimSuffix(body, "\n")
		return d.protect(slot{kind: slotCodeBlock, lang: m[1], text: body, raw: match})
	})
}

// extractCodeSpans protects inline code, double-backtick spans first.
func (d *document) extractCodeSpans(s string) string {
	for _, re := range []*regexp.Regexp{codeDoubleRe, codeSpanRe} {
		s = re.ReplaceAllStringFunc(s, func(match string) string {
			m := re.FindStringSubmatch(match)
			return d.protect(slot{kind: slotCodeSpan, text: m[1], raw: match})
		})
	}
	return s
}

// extractLinks protects URLs so that emphasis and underline markers inside
// them survive untouched.
func (d *document) extractLinks(s string) string {
	s = maskedLinkRe.ReplaceAllStringFunc(s, func(match string) string {
		m := maskedLinkRe.FindStringSubmatch(match)
		return d.protect(slot{kind: slotMaskedLink, text: m[1], href: m[2], raw: match})
	})
	return urlRe.ReplaceAllStringFunc(s, func(match string) string {
		if strings.HasPrefix(match, "<") {
			return d.protect(slot{kind: slotLink, href: match[1 : len(match)-1], raw: match})
		}
		href, trail := splitTrailing(match)
		return d.protect(slot{kind: slotLink, href: href, raw: href}) + trail
	})
}

// splitTrailing separates punctuation that ends a sentence, or closes
// markup, from a bare URL.
func splitTrailing(u string) (string, string) {
	end := len(u)
	for end > 0 {
		c := u[end-1]
		if strings.IndexByte(".,:;!?'\"*_~|", c) >= 0 {
			end--
			continue
		}
		if c == ')' && strings.Count(u[:end], "(") < strings.Count(u[:end], ")") {
			end--
			continue
		}
		break
	}
	return u[:end], u[end:]
}

// normalizeEmphasis rewrites the bold+italic shorthands into forms the inline
// engine and the underline pass understand.
func normalizeEmphasis(s string) string {
	s = tripleStarRe.ReplaceAllString(s, "**_${1}_**")
	return tripleUnderRe.ReplaceAllString(s, "__*${1}*__")
}

// extractInline protects spoilers and underlines, which the inline engine has
// no syntax for.
func (d *document) extractInline(s string) string {
	s = spoilerRe.ReplaceAllStringFunc(s, func(match string) string {
		m := spoilerRe.FindStringSubmatch(match)
		return d.protect(slot{kind: slotSpoiler, text: m[1], raw: match})
	})
	return underlineRe.ReplaceAllStringFunc(s, func(match string) string {
		m := underlineRe.FindStringSubmatch(match)
		return d.protect(slot{kind: slotUnderline, text: m[1], raw: match})
	})
}

func (d *document) extractHeaders(s string) string {
	return headerRe.ReplaceAllStringFunc(s, func(match string) string {
		m := headerRe.FindStringSubmatch(match)
		return d.protect(slot{kind: slotHeader, level: len(m[1]), text: m[2], raw: match})
	})
}

// extractLines is the line-oriented structural pass for quotes and bullet
// lists. A multi-line quote marker swallows the rest of the input.
func (d *document) extractLines(s string, mode blockMode) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	var bullets []string
	var bulletRaw []string

	flush := func() {
		if len(bullets) == 0 {
			return
		}
		out = append(out, d.protect(slot{kind: slotList, items: bullets, raw: strings.Join(bulletRaw, "\n")}))
		bullets, bulletRaw = nil, nil
	}

	for i, line := range lines {
		if mode.quotes {
			if line == ">>>" || strings.HasPrefix(line, ">>> ") {
				flush()
				rest := append([]string{strings.TrimPrefix(strings.TrimPrefix(line, ">>>"), " ")}, lines[i+1:]...)
				body := strings.Join(rest, "\n")
				out = append(out, d.protect(slot{kind: slotQuote, text: body, raw: strings.Join(lines[i:], "\n")}))
				return joinLines(d, out)
			}
			if line == ">" || strings.HasPrefix(line, "> ") {
				flush()
				body := strings.TrimPrefix(strings.TrimPrefix(line, ">"), " ")
				out = append(out, d.protect(slot{kind: slotQuote, text: body, raw: line}))
				continue
			}
		}
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			bullets = append(bullets, m[1])
			bulletRaw = append(bulletRaw, line)
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()
	return joinLines(d, out)
}

// joinLines rejoins lines, dropping the newline after a block placeholder so
// the engine does not emit a break after a block element.
func joinLines(d *document, lines []string) string {
	var sb strings.Builder
	for i, line := range lines {
		sb.WriteString(line)
		if i < len(lines)-1 && !d.blockLine(line) {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
