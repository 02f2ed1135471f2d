// Package transcript folds an ordered message window into one HTML fragment:
// messages are grouped into runs, enriched, separated by viewer-local day and
// terminated by a single scroll anchor.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"chatview-server/internal/emoji"
	"chatview-server/internal/enrich"
	"chatview-server/internal/types"
)

// ErrUnsorted is returned when the input is not in ascending time order.
var ErrUnsorted = errors.New("transcript: messages are not in ascending order")

// RunGap is the largest gap between consecutive messages of one run.
const RunGap = 7 * time.Minute

const (
	layoutShort = "3:04 PM"
	layoutFull  = "Monday, January 2, 2006 3:04 PM"
	layoutLabel = "01/02/2006 3:04 PM"
	layoutDay   = "January 2, 2006"
	dayKey      = "2006-01-02"
)

// Composer renders transcripts for one viewer. It holds no per-call state, so
// one Composer may serve concurrent Compose calls.
type Composer struct {
	env  *enrich.Env
	refs *enrich.References
}

// NewComposer returns a Composer. refs holds reply and forward targets
// resolved ahead of time; nil means no reference resolves.
func NewComposer(env *enrich.Env, refs *enrich.References) *Composer {
	return &Composer{env: env, refs: refs}
}

// Compose renders msgs for viewer using only the reference data the platform
// inlined in the messages.
func Compose(msgs []types.Message, viewer types.Viewer) (string, error) {
	env := enrich.NewEnv(viewer)
	refs := enrich.NewResolver(nil, env.Log).Prefetch(context.Background(), msgs, 0)
	return NewComposer(env, refs).Compose(msgs)
}

// pendingRun is the run being buffered. Header data is taken from last when
// the run is flushed.
type pendingRun struct {
	first   *types.Message
	last    *types.Message
	mention bool
	forward bool
	body    strings.Builder
}

// foldState is everything carried from one message to the next.
type foldState struct {
	out strings.Builder
	run *pendingRun

	seen   bool
	prevAt time.Time

	day string
}

// contribution is one message's rendered output before it is placed.
type contribution struct {
	system  string
	block   string
	mention bool
	forward bool
}

// Compose folds msgs, which must be in ascending CreatedAt order, into an HTML
// fragment ending in exactly one anchor.
func (c *Composer) Compose(msgs []types.Message) (string, error) {
	var st foldState
	for i := range msgs {
		m := &msgs[i]
		if st.seen && m.CreatedAt.Before(st.prevAt) {
			return "", fmt.Errorf("%w: message %s at %s follows %s", ErrUnsorted,
				m.ID, m.CreatedAt.Format(time.RFC3339), st.prevAt.Format(time.RFC3339))
		}
		st.seen = true
		st.prevAt = m.CreatedAt

		contrib, ok, err := c.render(m)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}

		local := m.CreatedAt.In(c.loc())
		if key := local.Format(dayKey); key != st.day {
			if err := c.flush(&st); err != nil {
				return "", err
			}
			sep, err := execute("date-separator", local.Format(layoutDay))
			if err != nil {
				return "", err
			}
			st.out.WriteString(sep)
			st.day = key
		}

		if contrib.system != "" {
			if err := c.flush(&st); err != nil {
				return "", err
			}
			st.out.WriteString(contrib.system)
			continue
		}

		if st.run != nil && startsRun(st.run.last, m) {
			if err := c.flush(&st); err != nil {
				return "", err
			}
		}
		if st.run == nil {
			st.run = &pendingRun{first: m}
		}
		st.run.last = m
		st.run.mention = contrib.mention
		st.run.forward = contrib.forward
		st.run.body.WriteString(contrib.block)
	}
	if err := c.flush(&st); err != nil {
		return "", err
	}
	return PlaceAnchor(st.out.String()), nil
}

// startsRun reports whether m opens a new run after prev.
func startsRun(prev, m *types.Message) bool {
	return prev.Author.ID != m.Author.ID || m.CreatedAt.Sub(prev.CreatedAt) > RunGap
}

// flush writes the pending run, if any, through its template.
func (c *Composer) flush(st *foldState) error {
	r := st.run
	if r == nil {
		return nil
	}
	st.run = nil

	first := r.first.CreatedAt.In(c.loc())
	v := runView{
		RenderTemplate: selectTemplate(r.forward, r.mention),
		ID:             r.first.ID,
		AuthorID:       r.last.Author.ID,
		DisplayName:    r.last.DisplayName(),
		AvatarURL:      c.avatar(r.last),
		Bot:            r.last.Author.Bot,
		TimeISO:        first.Format(time.RFC3339),
		TimeLabel:      first.Format(layoutLabel),
		Body:           template.HTML(r.body.String()),
	}
	if r.last.Member != nil {
		if hex := enrich.ColorHex(r.last.Member.Color); hex != "" {
			v.Color = template.CSS("color:" + hex)
		}
	}
	out, err := execute(templateDispatcher, v)
	if err != nil {
		return fmt.Errorf("render run %s: %w", r.first.ID, err)
	}
	st.out.WriteString(out)
	return nil
}

func (c *Composer) avatar(m *types.Message) string {
	prefs := c.env.Viewer.Preferences
	if !prefs.ShowImages {
		return ""
	}
	return enrich.AvatarURL(m.Author, m.Member, prefs.ShowAnimations)
}

// render produces m's contribution. ok is false for a blank message, which
// contributes nothing and leaves the fold state untouched.
func (c *Composer) render(m *types.Message) (contribution, bool, error) {
	if m.Type.IsSystem() {
		if line, ok := enrich.RenderSystemLine(m); ok {
			return contribution{system: line}, true, nil
		}
	}

	prefs := c.env.Viewer.Preferences
	v := messageView{ID: m.ID}

	target, hasReply := c.refs.Reply(m)
	if hasReply {
		v.Reply = template.HTML(c.env.RenderReplyContext(target))
	}
	fwd, hasForward := c.refs.Forward(m)
	if hasForward {
		v.Forward = template.HTML(c.env.RenderForward(m, fwd))
	}

	if m.Content != "" {
		v.Content = template.HTML(c.env.RenderContent(m, m.Content))
		v.Jumbo = prefs.ShowImages && emoji.Analyze(m.Content).Jumbo()
	}

	var extras strings.Builder
	extras.WriteString(c.env.RenderAttachments(m.Attachments))
	for _, e := range m.Embeds {
		extras.WriteString(enrich.RenderEmbed(e, prefs))
	}
	extras.WriteString(enrich.RenderStickers(m.Stickers, prefs))
	if m.Poll != nil {
		extras.WriteString(enrich.RenderPoll(*m.Poll, prefs))
	}
	extras.WriteString(enrich.RenderReactions(m.Reactions, prefs))
	v.Extras = template.HTML(extras.String())

	hasMedia := len(m.Attachments) > 0 || len(m.Embeds) > 0 || len(m.Stickers) > 0 ||
		m.Poll != nil || hasForward
	if !hasMedia && enrich.IsBlank(string(v.Content)) {
		return contribution{}, false, nil
	}

	// A reply target fetched after the fact still counts for reply pings.
	probe := *m
	if hasReply && probe.ReferencedMessage == nil {
		probe.ReferencedMessage = target
	}
	v.Mention = enrich.MentionsViewer(&probe, c.env.Viewer)

	local := m.CreatedAt.In(c.loc())
	v.TimeISO = local.Format(time.RFC3339)
	v.TimeShort = local.Format(layoutShort)
	v.TimeFull = local.Format(layoutFull)
	if m.EditedAt != nil {
		v.Edited = true
		v.EditedFull = m.EditedAt.In(c.loc()).Format(layoutFull)
	}

	block, err := execute("message", v)
	if err != nil {
		return contribution{}, false, fmt.Errorf("render message %s: %w", m.ID, err)
	}
	return contribution{block: block, mention: v.Mention, forward: hasForward}, true, nil
}

func (c *Composer) loc() *time.Location {
	if c.env.Location == nil {
		return time.Local
	}
	return c.env.Location
}
