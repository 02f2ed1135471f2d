package enrich

import (
	"fmt"
	"html"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"chatview-server/internal/markdown"
	"chatview-server/internal/metrics"
	"chatview-server/internal/types"
)

var (
	userMentionRe    = regexp.MustCompile(`<@!?(\d+)>`)
	roleMentionRe    = regexp.MustCompile(`<@&(\d+)>`)
	channelMentionRe = regexp.MustCompile(`<#(\d+)>`)
	everyoneRe       = regexp.MustCompile(`@(everyone|here)\b`)
	timestampRe      = regexp.MustCompile(`<t:(-?\d{1,13})(?::([tTdDfFR]))?>`)
)

// MentionsViewer reports whether m should be highlighted for v. Each rule is
// evaluated independently: a direct mention, a reply that pings the viewer's
// own message, @everyone or @here outside code, or a mention of a role the viewer holds.
func MentionsViewer(m *types.Message, v types.Viewer) bool {
	if v.ID == "" {
		return false
	}
	direct := m.MentionsUser(v.ID)
	replyPing := m.IsReply() && m.MentionRepliedUser &&
		m.ReferencedMessage != nil && m.ReferencedMessage.Author.ID == v.ID
	everyone := m.MentionEveryone || everyoneRe.MatchString(markdown.StripCode(m.Content))
	role := slices.ContainsFunc(m.MentionRoleIDs, v.HasRole)
	return direct || replyPing || everyone || role
}

// textExtensions returns the mention and timestamp extensions for m.
func (e *Env) textExtensions(m *types.Message) []markdown.Extension {
	return []markdown.Extension{
		markdown.RegexpExtension(userMentionRe, func(s []string) string { return e.userMention(m, s[1]) }),
		markdown.RegexpExtension(roleMentionRe, func(s []string) string { return e.roleMention(s[1]) }),
		markdown.RegexpExtension(channelMentionRe, func(s []string) string { return e.channelMention(m, s[1]) }),
		markdown.RegexpExtension(everyoneRe, func(s []string) string {
			return `<span class="mention mention-everyone">@` + s[1] + `</span>`
		}),
		markdown.RegexpExtension(timestampRe, func(s []string) string { return e.timestamp(s[1], s[2]) }),
	}
}

func (e *Env) userMention(m *types.Message, id string) string {
	class := "mention"
	if id == e.Viewer.ID {
		class += " mention-self"
	}
	u, ok := m.MentionedUser(id)
	if !ok && e.Dir != nil {
		u, ok = e.Dir.User(id)
	}
	if !ok {
		return `<span class="` + class + ` mention-unknown">@unknown-user</span>`
	}
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	return fmt.Sprintf(`<span class="%s" data-user-id="%s">@%s</span>`, class, html.EscapeString(id), html.EscapeString(name))
}

func (e *Env) roleMention(id string) string {
	class := "mention mention-role"
	if e.Viewer.HasRole(id) {
		class += " mention-self"
	}
	var r types.Role
	ok := false
	if e.Dir != nil {
		r, ok = e.Dir.Role(id)
	}
	if !ok {
		return `<span class="` + class + ` mention-unknown">@deleted-role</span>`
	}
	style := ""
	if c := ColorHex(r.Color); c != "" {
		style = ` style="color:` + c + `"`
	}
	return fmt.Sprintf(`<span class="%s"%s>@%s</span>`, class, style, html.EscapeString(r.Name))
}

func (e *Env) channelMention(m *types.Message, id string) string {
	var c types.Channel
	ok := false
	if e.Dir != nil {
		c, ok = e.Dir.Channel(id)
	}
	if !ok {
		e.logger().Debug("channel reference unresolved", "channel_id", id, "message_id", m.ID)
		metrics.IncrementReferenceFailure("channel")
		return `<span class="mention mention-channel mention-unknown">#unknown-channel</span>`
	}
	return fmt.Sprintf(`<a class="mention mention-channel" href="/channels/%s">#%s</a>`,
		html.EscapeString(c.ID), html.EscapeString(c.Name))
}

// Timestamp styles understood by <t:unix:style>.
var timestampLayouts = map[string]string{
	"t": "3:04 PM",
	"T": "3:04:05 PM",
	"d": "01/02/2006",
	"D": "January 2, 2006",
	"f": "January 2, 2006 3:04 PM",
	"F": "Monday, January 2, 2006 3:04 PM",
}

func (e *Env) timestamp(unix, style string) string {
	secs, err := strconv.ParseInt(unix, 10, 64)
	if err != nil {
		return html.EscapeString("<t:" + unix + ">")
	}
	t := time.Unix(secs, 0).In(e.loc())
	full := t.Format(timestampLayouts["F"])

	var text string
	switch style {
	case "R":
		text = humanize.RelTime(t, e.now(), "ago", "from now")
	case "":
		text = t.Format(timestampLayouts["f"])
	default:
		text = t.Format(timestampLayouts[style])
	}
	return fmt.Sprintf(`<time class="timestamp" datetime="%s" title="%s">%s</time>`,
		t.Format(time.RFC3339), html.EscapeString(full), html.EscapeString(text))
}
