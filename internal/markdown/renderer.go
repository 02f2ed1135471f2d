// Package markdown renders the chat platform's markdown dialect to inline HTML.
//
// Rendering is two-phase. Dialect constructs the generic inline engine does not
// know (code, links, underline, spoilers, headers, quotes, lists and anything
// an Extension claims) are first replaced by opaque placeholder tokens. The
// engine then runs over the remaining skeleton and the tokens are restored
// innermost-first, with code restored last from escaped raw text.
package markdown

import (
	"bytes"
	"errors"
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"

	"chatview-server/internal/metrics"
)

// ErrPlaceholderLeak is returned by RenderStrict when a placeholder token
// survives restoration.
var ErrPlaceholderLeak = errors.New("markdown: unresolved placeholder in output")

// Extension claims dialect syntax before structural parsing. Protect rewrites s,
// replacing each construct it recognises with the token returned by protect
// for the construct's trusted HTML.
type Extension interface {
	Protect(s string, protect func(html string) string) string
}

// ExtensionFunc adapts a function to Extension.
type ExtensionFunc func(s string, protect func(html string) string) string

func (f ExtensionFunc) Protect(s string, protect func(html string) string) string {
	return f(s, protect)
}

// RegexpExtension returns an Extension that replaces every match of re with
// the HTML produced by render. render receives the submatches.
func RegexpExtension(re *regexp.Regexp, render func(m []string) string) Extension {
	return ExtensionFunc(func(s string, protect func(string) string) string {
		return re.ReplaceAllStringFunc(s, func(match string) string {
			return protect(render(re.FindStringSubmatch(match)))
		})
	})
}

// Renderer holds the configured inline engine. It is safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	log    *slog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger used to report invariant violations.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.log = l }
}

// New returns a Renderer. The engine only knows paragraphs, emphasis and
// strikethrough; every other construct belongs to the dialect passes.
func New(opts ...Option) *Renderer {
	p := parser.NewParser(
		parser.WithBlockParsers(util.Prioritized(parser.NewParagraphParser(), 1000)),
		parser.WithInlineParsers(util.Prioritized(parser.NewEmphasisParser(), 500)),
	)
	r := &Renderer{
		md: goldmark.New(
			goldmark.WithParser(p),
			goldmark.WithExtensions(extension.Strikethrough),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		policy: bluemonday.NewPolicy().AllowElements("strong", "em", "del", "br"),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRenderer = New()

// Render renders text with the package default Renderer.
func Render(text string, exts ...Extension) string {
	return defaultRenderer.Render(text, exts...)
}

// Render converts text to an HTML fragment safe for inline placement. It never
// fails: a leaked placeholder is logged, counted and removed.
func (r *Renderer) Render(text string, exts ...Extension) string {
	out, err := r.RenderStrict(text, exts...)
	if err != nil {
		r.log.Error("markdown placeholder leak", "error", err, "input_len", len(text))
		metrics.IncrementPlaceholderLeak()
		out = placeholderRe.ReplaceAllString(out, "")
	}
	return out
}

// RenderStrict is Render that reports a leaked placeholder as
// ErrPlaceholderLeak along with the unstripped output.
func (r *Renderer) RenderStrict(text string, exts ...Extension) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	d := &document{r: r}
	s := scrub(text)
	s = d.extractCodeBlocks(s)
	s = d.extractCodeSpans(s)
	s = d.extractLinks(s)
	for _, ext := range exts {
		s = ext.Protect(s, d.protectHTML)
	}
	out := d.restoreCode(d.renderBlock(s, 0, blockMode{quotes: true}))
	if placeholderRe.MatchString(out) {
		return out, ErrPlaceholderLeak
	}
	return out, nil
}

// engine runs the generic inline engine and sanitizes its output, so only the
// engine's own tags and escaped text reach the restore step.
func (r *Renderer) engine(s string) string {
	if strings.TrimSpace(s) == "" {
		return html.EscapeString(s)
	}
	// Entities the user typed are text, not markup.
	src := strings.ReplaceAll(s, "&", "&amp;")
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return html.EscapeString(s)
	}
	return r.policy.Sanitize(unwrapParagraphs(buf.String()))
}

// unwrapParagraphs turns the engine's paragraph blocks into an inline
// fragment, keeping paragraph breaks as a double line break.
func unwrapParagraphs(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<p>")
	s = strings.TrimSuffix(s, "</p>")
	s = strings.ReplaceAll(s, "</p>\n<p>", "<br><br>")
	return strings.ReplaceAll(s, "<br>\n", "<br>")
}
