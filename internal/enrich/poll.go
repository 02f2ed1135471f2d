package enrich

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"chatview-server/internal/emoji"
	"chatview-server/internal/types"
)

// RenderPoll renders a poll with per-answer vote share bars.
func RenderPoll(p types.Poll, prefs types.Preferences) string {
	return renderPoll(p, prefs, time.Now())
}

func renderPoll(p types.Poll, prefs types.Preferences, now time.Time) string {
	total := p.TotalVotes()
	closed := p.Finalized || (p.Expiry != nil && !p.Expiry.After(now))

	top := 0
	for _, a := range p.Answers {
		top = max(top, a.VoteCount)
	}

	var sb strings.Builder
	sb.WriteString(`<div class="poll`)
	if closed {
		sb.WriteString(` poll-closed`)
	}
	sb.WriteString(`"><div class="poll-question">`)
	sb.WriteString(html.EscapeString(p.Question))
	sb.WriteString(`</div><div class="poll-answers">`)

	o := emoji.Options{ShowImages: prefs.ShowImages, ShowAnimations: prefs.ShowAnimations}
	for _, a := range p.Answers {
		pct := 0
		if total > 0 {
			pct = (a.VoteCount*100 + total/2) / total
		}
		sb.WriteString(`<div class="poll-answer`)
		if closed && top > 0 && a.VoteCount == top {
			sb.WriteString(` poll-winner`)
		}
		sb.WriteString(`"><div class="poll-answer-label">`)
		if a.Emoji != nil {
			sb.WriteString(emoji.Render(*a.Emoji, o))
			sb.WriteString(` `)
		}
		sb.WriteString(html.EscapeString(a.Text))
		sb.WriteString(`</div>`)
		fmt.Fprintf(&sb, `<div class="poll-bar"><div class="poll-bar-fill" style="width:%d%%"></div></div>`, pct)
		fmt.Fprintf(&sb, "<span class=\"poll-votes\">%s \u00b7 %d%%</span></div>", votes(a.VoteCount), pct)
	}
	sb.WriteString(`</div><div class="poll-footer">`)
	sb.WriteString(votes(total))
	if p.AllowMultiselect {
		sb.WriteString(" \u00b7 Select one or more answers")
	}
	switch {
	case closed:
		sb.WriteString(" \u00b7 Poll closed")
	case p.Expiry != nil:
		sb.WriteString(" \u00b7 Ends ")
		sb.WriteString(humanize.RelTime(*p.Expiry, now, "ago", "from now"))
	}
	sb.WriteString(`</div></div>`)
	return sb.String()
}

func votes(n int) string {
	if n == 1 {
		return "1 vote"
	}
	return humanize.Comma(int64(n)) + " votes"
}
