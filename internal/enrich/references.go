package enrich

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"chatview-server/internal/metrics"
	"chatview-server/internal/types"
)

// MessageFetcher loads a single message. Implementations return an error
// wrapping a not-found or forbidden condition when the target is gone.
type MessageFetcher interface {
	Message(ctx context.Context, channelID, messageID string) (*types.Message, error)
}

// Forwarded is the resolved content of a forwarded message. Author is nil when
// the original message could not be loaded but the platform supplied a
// snapshot of its content.
type Forwarded struct {
	Author      *types.User
	Member      *types.Member
	Content     string
	CreatedAt   time.Time
	Attachments []types.Attachment
	Embeds      []types.Embed

	GuildID   string
	ChannelID string
	MessageID string
}

// DisplayName returns the original author's visible name, or "" if unknown.
func (f *Forwarded) DisplayName() string {
	if f.Author == nil {
		return ""
	}
	m := types.Message{Author: *f.Author, Member: f.Member}
	return m.DisplayName()
}

// Resolver resolves reply and forward references, preferring the data the
// platform inlined and falling back to the fetcher.
type Resolver struct {
	fetch MessageFetcher
	log   *slog.Logger
}

// NewResolver returns a Resolver. fetch may be nil, in which case only inlined
// data is used.
func NewResolver(fetch MessageFetcher, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{fetch: fetch, log: log}
}

// Reply returns the message m replies to.
func (r *Resolver) Reply(ctx context.Context, m *types.Message) (*types.Message, error) {
	if !m.IsReply() {
		return nil, ErrUnresolved
	}
	if m.ReferencedMessage != nil {
		return m.ReferencedMessage, nil
	}
	if r.fetch == nil {
		return nil, fmt.Errorf("%w: reply %s: no fetcher", ErrUnresolved, m.Reference.MessageID)
	}
	channelID := m.Reference.ChannelID
	if channelID == "" {
		channelID = m.ChannelID
	}
	target, err := r.fetch.Message(ctx, channelID, m.Reference.MessageID)
	if err != nil {
		return nil, fmt.Errorf("%w: reply %s: %v", ErrUnresolved, m.Reference.MessageID, err)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: reply %s: empty result", ErrUnresolved, m.Reference.MessageID)
	}
	return target, nil
}

// Forward returns the content m forwards. A snapshot is enough to render; the
// original message is only needed for provenance.
func (r *Resolver) Forward(ctx context.Context, m *types.Message) (*Forwarded, error) {
	if !m.IsForward() {
		return nil, ErrUnresolved
	}
	ref := m.Reference
	f := &Forwarded{GuildID: ref.GuildID, ChannelID: ref.ChannelID, MessageID: ref.MessageID}
	if s := m.Snapshot; s != nil {
		f.Content = s.Content
		f.CreatedAt = s.CreatedAt
		f.Attachments = s.Attachments
		f.Embeds = s.Embeds
	}

	if r.fetch == nil {
		if m.Snapshot == nil {
			return nil, fmt.Errorf("%w: forward %s: no snapshot", ErrUnresolved, ref.MessageID)
		}
		return f, nil
	}

	orig, err := r.fetch.Message(ctx, ref.ChannelID, ref.MessageID)
	switch {
	case err == nil && orig != nil:
		f.Author = &orig.Author
		f.Member = orig.Member
		if m.Snapshot == nil {
			f.Content = orig.Content
			f.CreatedAt = orig.CreatedAt
			f.Attachments = orig.Attachments
			f.Embeds = orig.Embeds
		}
	case m.Snapshot == nil:
		return nil, fmt.Errorf("%w: forward %s: %v", ErrUnresolved, ref.MessageID, err)
	default:
		r.log.Debug("forward origin unavailable, using snapshot", "message_id", m.ID, "error", err)
	}
	return f, nil
}

// References holds resolved reply and forward targets for a message window,
// keyed by the referencing message's id. It is read-only after Prefetch.
type References struct {
	replies  map[string]*types.Message
	forwards map[string]*Forwarded
}

// Reply returns the resolved reply target for m.
func (refs *References) Reply(m *types.Message) (*types.Message, bool) {
	if refs == nil {
		return nil, false
	}
	t, ok := refs.replies[m.ID]
	return t, ok
}

// Forward returns the resolved forward content for m.
func (refs *References) Forward(m *types.Message) (*Forwarded, bool) {
	if refs == nil {
		return nil, false
	}
	f, ok := refs.forwards[m.ID]
	return f, ok
}

// Prefetch resolves every reference in msgs with at most workers concurrent
// lookups. Lookups are independent; a failed one is logged and counted, and
// the message later renders without its reference. Prefetch never fails.
func (r *Resolver) Prefetch(ctx context.Context, msgs []types.Message, workers int) *References {
	refs := &References{
		replies:  make(map[string]*types.Message),
		forwards: make(map[string]*Forwarded),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range msgs {
		m := &msgs[i]
		switch {
		case m.IsReply():
			g.Go(func() error {
				target, err := r.Reply(gctx, m)
				if err != nil {
					r.log.Debug("reply reference unresolved", "message_id", m.ID, "channel_id", m.ChannelID, "error", err)
					metrics.IncrementReferenceFailure("reply")
					return nil
				}
				mu.Lock()
				refs.replies[m.ID] = target
				mu.Unlock()
				return nil
			})
		case m.IsForward():
			g.Go(func() error {
				f, err := r.Forward(gctx, m)
				if err != nil {
					r.log.Debug("forward reference unresolved", "message_id", m.ID, "channel_id", m.ChannelID, "error", err)
					metrics.IncrementReferenceFailure("forward")
					return nil
				}
				mu.Lock()
				refs.forwards[m.ID] = f
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()
	return refs
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimRightFunc(string(r[:n]), unicode.IsSpace) + "\u2026"
}

// RenderReplyContext renders the single-line context shown above a reply.
func (e *Env) RenderReplyContext(target *types.Message) string {
	var sb strings.Builder
	sb.WriteString(`<div class="reply-context"><a class="reply-link" href="#m-`)
	sb.WriteString(html.EscapeString(target.ID))
	sb.WriteString(`">`)

	if e.prefs().ShowImages {
		sb.WriteString(`<img class="reply-avatar" src="`)
		sb.WriteString(html.EscapeString(AvatarURL(target.Author, target.Member, e.prefs().ShowAnimations)))
		sb.WriteString(`" alt="" width="16" height="16" loading="lazy">`)
	}

	sb.WriteString(`<span class="reply-author"`)
	if target.Member != nil {
		if c := ColorHex(target.Member.Color); c != "" {
			sb.WriteString(` style="color:` + c + `"`)
		}
	}
	sb.WriteString(`>@`)
	sb.WriteString(html.EscapeString(target.DisplayName()))
	sb.WriteString(`</span> <span class="reply-content">`)

	raw := strings.Join(strings.Fields(target.Content), " ")
	switch {
	case raw != "":
		sb.WriteString(e.renderPreview(target, Truncate(raw, e.forwardPreview())))
	case len(target.Attachments) > 0:
		sb.WriteString(`<em>Click to see attachment</em>`)
	default:
		sb.WriteString(`<em>Click to see original message</em>`)
	}
	sb.WriteString(`</span></a></div>`)
	return sb.String()
}

// RenderForward renders forwarded content with its provenance.
func (e *Env) RenderForward(owner *types.Message, f *Forwarded) string {
	var sb strings.Builder
	sb.WriteString(`<div class="forward"><div class="forward-label">Forwarded</div>`)

	if f.Content != "" {
		sb.WriteString(`<div class="forward-content">`)
		// Raw text is cut before rendering so markup is never split.
		sb.WriteString(e.renderPreview(owner, Truncate(f.Content, e.forwardPreview())))
		sb.WriteString(`</div>`)
	}
	sb.WriteString(e.RenderAttachments(f.Attachments))
	for _, emb := range f.Embeds {
		sb.WriteString(RenderEmbed(emb, e.prefs()))
	}

	sb.WriteString(`<div class="forward-meta">`)
	if name := f.DisplayName(); name != "" {
		sb.WriteString(`<span class="forward-author">`)
		sb.WriteString(html.EscapeString(name))
		sb.WriteString("</span> \u00b7 ")
	}
	if !f.CreatedAt.IsZero() {
		t := f.CreatedAt.In(e.loc())
		sb.WriteString(`<time datetime="`)
		sb.WriteString(t.Format(time.RFC3339))
		sb.WriteString(`">`)
		sb.WriteString(t.Format("01/02/2006 3:04 PM"))
		sb.WriteString(`</time>`)
	}
	sb.WriteString(`</div></div>`)
	return sb.String()
}

func (e *Env) forwardPreview() int {
	if e.ForwardPreview <= 0 {
		return DefaultForwardPreview
	}
	return e.ForwardPreview
}
