package enrich

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatview-server/internal/types"
)

const viewerID = "100"

func testEnv(t *testing.T) *Env {
	t.Helper()
	e := NewEnv(types.Viewer{
		ID:          viewerID,
		RoleIDs:     []string{"500"},
		Preferences: types.Preferences{ShowImages: true, ShowAnimations: true, Timezone: "UTC"},
	})
	dir := NewStaticDirectory()
	dir.Channels["300"] = types.Channel{ID: "300", Name: "general"}
	dir.Roles["500"] = types.Role{ID: "500", Name: "mods", Color: 0x3498db}
	dir.AddUsers(types.User{ID: "200", Username: "bob"})
	e.Dir = dir
	e.Now = func() time.Time { return time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestMentionsViewer(t *testing.T) {
	viewer := types.Viewer{ID: viewerID, RoleIDs: []string{"500"}}
	mine := &types.Message{ID: "1", Author: types.User{ID: viewerID}}
	other := &types.Message{ID: "2", Author: types.User{ID: "200"}}

	tests := []struct {
		name string
		msg  types.Message
		want bool
	}{
		{"plain", types.Message{Content: "hello"}, false},
		{"direct", types.Message{MentionUserIDs: []string{viewerID}}, true},
		{"other user", types.Message{MentionUserIDs: []string{"200"}}, false},
		{"reply ping to viewer", types.Message{
			Reference:          &types.Reference{Kind: types.ReferenceReply, MessageID: "1"},
			ReferencedMessage:  mine,
			MentionRepliedUser: true,
		}, true},
		{"reply without ping", types.Message{
			Reference:         &types.Reference{Kind: types.ReferenceReply, MessageID: "1"},
			ReferencedMessage: mine,
		}, false},
		{"reply ping to someone else", types.Message{
			Reference:          &types.Reference{Kind: types.ReferenceReply, MessageID: "2"},
			ReferencedMessage:  other,
			MentionRepliedUser: true,
		}, false},
		{"everyone flag", types.Message{MentionEveryone: true}, true},
		{"here in text", types.Message{Content: "ping @here please"}, true},
		{"everyone in code span", types.Message{Content: "`@everyone` is a keyword"}, false},
		{"here in code block", types.Message{Content: "```\n@here\n```"}, false},
		{"everyone after code span", types.Message{Content: "`x` @everyone"}, true},
		{"held role", types.Message{MentionRoleIDs: []string{"500"}}, true},
		{"other role", types.Message{MentionRoleIDs: []string{"501"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MentionsViewer(&tt.msg, viewer))
		})
	}

	assert.False(t, MentionsViewer(&types.Message{MentionEveryone: true}, types.Viewer{}))
}

func TestRenderContentMentions(t *testing.T) {
	e := testEnv(t)
	m := &types.Message{
		ID:       "9",
		Content:  "hi <@100> and <@!200>, see <#300> <#301> <@&500> <@&999> @everyone",
		Mentions: []types.User{{ID: viewerID, Username: "me", GlobalName: "Me"}},
	}
	out := e.RenderContent(m, m.Content)

	assert.Contains(t, out, `<span class="mention mention-self" data-user-id="100">@Me</span>`)
	assert.Contains(t, out, `<span class="mention" data-user-id="200">@bob</span>`)
	assert.Contains(t, out, `<a class="mention mention-channel" href="/channels/300">#general</a>`)
	assert.Contains(t, out, `#unknown-channel`)
	assert.Contains(t, out, `<span class="mention mention-role mention-self" style="color:#3498db">@mods</span>`)
	assert.Contains(t, out, `@deleted-role`)
	assert.Contains(t, out, `<span class="mention mention-everyone">@everyone</span>`)
}

func TestMentionsInsideCodeStayLiteral(t *testing.T) {
	e := testEnv(t)
	m := &types.Message{Content: "`<@100>`"}
	assert.Equal(t, "<code>&lt;@100&gt;</code>", e.RenderContent(m, m.Content))
}

func TestTimestamps(t *testing.T) {
	e := testEnv(t)
	m := &types.Message{}

	out := e.RenderContent(m, "<t:1704067200:D>")
	assert.Contains(t, out, `datetime="2024-01-01T00:00:00Z"`)
	assert.Contains(t, out, ">January 1, 2024</time>")

	out = e.RenderContent(m, "<t:1704067200:R>")
	assert.Contains(t, out, "1 day ago")

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	e.Location = ny
	out = e.RenderContent(m, "<t:1704067200:t>")
	assert.Contains(t, out, ">7:00 PM</time>")
}

type fakeFetcher struct {
	msgs  map[string]*types.Message
	calls atomic.Int32
}

func (f *fakeFetcher) Message(_ context.Context, _, id string) (*types.Message, error) {
	f.calls.Add(1)
	if m, ok := f.msgs[id]; ok {
		return m, nil
	}
	return nil, errors.New("not found")
}

func reply(id, target string) types.Message {
	return types.Message{ID: id, ChannelID: "c", Reference: &types.Reference{Kind: types.ReferenceReply, MessageID: target}}
}

func forward(id, target string, snap *types.Snapshot) types.Message {
	return types.Message{ID: id, ChannelID: "c", Snapshot: snap,
		Reference: &types.Reference{Kind: types.ReferenceForward, ChannelID: "o", MessageID: target}}
}

func TestResolverReply(t *testing.T) {
	f := &fakeFetcher{msgs: map[string]*types.Message{"t1": {ID: "t1", Content: "target"}}}
	r := NewResolver(f, nil)

	m := reply("1", "t1")
	got, err := r.Reply(context.Background(), &m)
	require.NoError(t, err)
	assert.Equal(t, "target", got.Content)

	m = reply("2", "gone")
	_, err = r.Reply(context.Background(), &m)
	assert.ErrorIs(t, err, ErrUnresolved)

	inline := reply("3", "x")
	inline.ReferencedMessage = &types.Message{ID: "x"}
	got, err = r.Reply(context.Background(), &inline)
	require.NoError(t, err)
	assert.Equal(t, "x", got.ID)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestResolverForward(t *testing.T) {
	orig := &types.Message{ID: "o1", Author: types.User{ID: "7", Username: "alice"}, Content: "original"}
	f := &fakeFetcher{msgs: map[string]*types.Message{"o1": orig}}
	r := NewResolver(f, nil)

	m := forward("1", "o1", &types.Snapshot{Content: "snapshot"})
	got, err := r.Forward(context.Background(), &m)
	require.NoError(t, err)
	assert.Equal(t, "snapshot", got.Content)
	assert.Equal(t, "alice", got.DisplayName())

	m = forward("2", "gone", &types.Snapshot{Content: "kept"})
	got, err = r.Forward(context.Background(), &m)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Content)
	assert.Equal(t, "", got.DisplayName())

	m = forward("3", "gone", nil)
	_, err = r.Forward(context.Background(), &m)
	assert.ErrorIs(t, err, ErrUnresolved)

	m = forward("4", "o1", nil)
	got, err = NewResolver(nil, nil).Forward(context.Background(), &m)
	assert.ErrorIs(t, err, ErrUnresolved)
	assert.Nil(t, got)
}

func TestPrefetchDegrades(t *testing.T) {
	f := &fakeFetcher{msgs: map[string]*types.Message{
		"t1": {ID: "t1", Content: "a"},
		"o1": {ID: "o1", Content: "b"},
	}}
	msgs := []types.Message{
		reply("1", "t1"),
		reply("2", "missing"),
		forward("3", "o1", nil),
		forward("4", "missing", nil),
		{ID: "5", Content: "plain"},
	}
	refs := NewResolver(f, nil).Prefetch(context.Background(), msgs, 2)

	_, ok := refs.Reply(&msgs[0])
	assert.True(t, ok)
	_, ok = refs.Reply(&msgs[1])
	assert.False(t, ok)
	fw, ok := refs.Forward(&msgs[2])
	require.True(t, ok)
	assert.Equal(t, "b", fw.Content)
	_, ok = refs.Forward(&msgs[3])
	assert.False(t, ok)
	_, ok = refs.Reply(&msgs[4])
	assert.False(t, ok)

	var nilRefs *References
	_, ok = nilRefs.Reply(&msgs[0])
	assert.False(t, ok)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 100))
	assert.Equal(t, "h\u00e9llo\u2026", Truncate("h\u00e9llo world", 6))
	assert.Equal(t, strings.Repeat("x", 100)+"\u2026", Truncate(strings.Repeat("x", 150), 100))
}

func TestRenderForwardTruncatesRawText(t *testing.T) {
	e := testEnv(t)
	// The cut lands inside the bold span: the markers never close, so they
	// render literally instead of producing broken markup.
	content := strings.Repeat("a", 95) + " **bold text here**"
	f := &Forwarded{Content: content, CreatedAt: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
		Author: &types.User{ID: "7", Username: "alice"}}
	out := e.RenderForward(&types.Message{}, f)

	assert.Contains(t, out, "Forwarded")
	assert.Contains(t, out, "\u2026")
	assert.NotContains(t, out, "<strong>")
	assert.NotContains(t, out, "here")
	assert.Contains(t, out, `<span class="forward-author">alice</span>`)
	assert.Contains(t, out, "01/01/2024 9:30 AM")
}

func TestRenderReplyContext(t *testing.T) {
	e := testEnv(t)
	target := &types.Message{ID: "55", Author: types.User{ID: "200", Username: "bob"},
		Member: &types.Member{Nick: "Bobby", Color: 0xff0000}, Content: "line one\nline **two**"}
	out := e.RenderReplyContext(target)
	assert.Contains(t, out, `href="#m-55"`)
	assert.Contains(t, out, `style="color:#ff0000">@Bobby</span>`)
	assert.Contains(t, out, "line one line <strong>two</strong>")
	assert.Contains(t, out, `class="reply-avatar"`)

	e.Viewer.Preferences.ShowImages = false
	out = e.RenderReplyContext(&types.Message{ID: "56", Author: types.User{ID: "200", Username: "bob"},
		Attachments: []types.Attachment{{Name: "a.png"}}})
	assert.NotContains(t, out, "<img")
	assert.Contains(t, out, "Click to see attachment")
}

func TestRenderEmbed(t *testing.T) {
	ts := time.Date(2024, 3, 4, 5, 6, 0, 0, time.UTC)
	emb := types.Embed{
		Title:       "Release *notes*",
		URL:         "https://example.com/r",
		Description: "**big** news",
		Color:       0x00ff00,
		Author:      &types.EmbedAuthor{Name: "Bot <3", IconURL: "https://cdn.example/icon.png"},
		Fields:      []types.EmbedField{{Name: "Version", Value: "`1.2`", Inline: true}},
		Image:       &types.EmbedMedia{URL: "https://cdn.example/pic.png"},
		Footer:      &types.EmbedFooter{Text: "footer"},
		Timestamp:   &ts,
		Provider:    &types.EmbedProvider{Name: "Example"},
	}
	prefs := types.Preferences{ShowImages: true, ShowAnimations: true, Timezone: "UTC"}
	out := RenderEmbed(emb, prefs)

	assert.Contains(t, out, `border-left-color:#00ff00`)
	assert.Contains(t, out, `Bot &lt;3`)
	assert.Contains(t, out, `Release <em>notes</em>`)
	assert.Contains(t, out, `<strong>big</strong> news`)
	assert.Contains(t, out, `embed-field embed-field-inline`)
	assert.Contains(t, out, `<code>1.2</code>`)
	assert.Contains(t, out, `/media?url=https%3A%2F%2Fcdn.example%2Fpic.png`)
	assert.Contains(t, out, "footer \u2022 <time")
	assert.Contains(t, out, "03/04/2024 5:06 AM")

	prefs.ShowImages = false
	out = RenderEmbed(emb, prefs)
	assert.NotContains(t, out, "<img")

	assert.Equal(t, "", RenderEmbed(types.Embed{}, prefs))
}

func TestRenderEmbedLinksOnlyWebURLs(t *testing.T) {
	prefs := types.Preferences{Timezone: "UTC"}
	emb := types.Embed{
		Title:    "Click",
		URL:      "javascript:alert(1)",
		Author:   &types.EmbedAuthor{Name: "someone", URL: "JavaScript:alert(2)"},
		Provider: &types.EmbedProvider{Name: "site", URL: "data:text/html,hi"},
	}
	out := RenderEmbed(emb, prefs)
	assert.NotContains(t, strings.ToLower(out), "javascript:")
	assert.NotContains(t, out, "data:")
	assert.NotContains(t, out, "<a ")
	assert.Contains(t, out, `<div class="embed-title">Click</div>`)
	assert.Contains(t, out, `<span>someone</span>`)

	emb.URL = "https://example.com/a?b=1&c=2"
	emb.Author.URL = "http://example.com/me"
	out = RenderEmbed(emb, prefs)
	assert.Contains(t, out, `<a href="https://example.com/a?b=1&amp;c=2" target="_blank" rel="noopener">Click</a>`)
	assert.Contains(t, out, `<a href="http://example.com/me" target="_blank" rel="noopener">someone</a>`)
}

func TestLinkURL(t *testing.T) {
	for _, bad := range []string{"", "javascript:alert(1)", "//example.com", "/relative", "ftp://example.com", "vbscript:x"} {
		_, ok := LinkURL(bad)
		assert.False(t, ok, bad)
	}
	href, ok := LinkURL(" HTTPS://example.com/x ")
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/x", href)
}

func TestRenderPoll(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(3 * time.Hour)
	p := types.Poll{
		Question: "Lunch?",
		Answers: []types.PollAnswer{
			{Text: "Pizza", VoteCount: 3, Emoji: &types.Emoji{Name: "\U0001F355"}},
			{Text: "Salad", VoteCount: 1},
		},
		AllowMultiselect: true,
		Expiry:           &expiry,
	}
	prefs := types.DefaultPreferences()

	out := renderPoll(p, prefs, now)
	assert.Contains(t, out, "width:75%")
	assert.Contains(t, out, "width:25%")
	assert.Contains(t, out, "4 votes")
	assert.Contains(t, out, "1 vote \u00b7")
	assert.Contains(t, out, "Select one or more answers")
	assert.Contains(t, out, "Ends 3 hours from now")
	assert.Contains(t, out, "/emoji/twemoji/1f355.png")
	assert.NotContains(t, out, "poll-winner")

	out = renderPoll(p, prefs, expiry.Add(time.Minute))
	assert.Contains(t, out, "Poll closed")
	assert.Equal(t, 1, strings.Count(out, "poll-winner"))

	empty := renderPoll(types.Poll{Question: "?", Answers: []types.PollAnswer{{Text: "a"}}}, prefs, now)
	assert.Contains(t, empty, "width:0%")
	assert.Contains(t, empty, "0 votes")
}

func TestRenderReactions(t *testing.T) {
	prefs := types.DefaultPreferences()
	out := RenderReactions([]types.Reaction{
		{Emoji: types.Emoji{Name: "\U0001F600"}, Count: 2, Me: true},
		{Emoji: types.Emoji{ID: "123456789012345678", Name: "party"}, Count: 5, IsSuperReaction: true},
		{Emoji: types.Emoji{Name: "x"}, Count: 0},
	}, prefs)

	assert.Equal(t, 2, strings.Count(out, `class="reaction-count"`))
	assert.Contains(t, out, `class="reaction reaction-me"`)
	assert.Contains(t, out, `class="reaction reaction-super" title=":party:"`)
	assert.Contains(t, out, `reaction-burst`)
	assert.Contains(t, out, `<span class="reaction-count">5</span>`)
	assert.Equal(t, "", RenderReactions(nil, prefs))
}

func TestRenderAttachments(t *testing.T) {
	atts := []types.Attachment{
		{Name: "cat.png", URL: "https://cdn/cat.png", Kind: types.AttachmentImage},
		{Name: "SPOILER_plot.png", URL: "https://cdn/plot.png", Kind: types.AttachmentImage},
		{Name: "dance.gif", URL: "https://cdn/dance.gif", Kind: types.AttachmentImage, Size: 2048},
		{Name: "clip.mp4", URL: "https://cdn/clip.mp4", Kind: types.AttachmentVideo},
		{Name: "notes.txt", URL: "https://cdn/notes.txt", Kind: types.AttachmentFile, Size: 1500000},
	}
	out := RenderAttachments(atts, types.Preferences{ShowImages: true, ShowAnimations: true})
	assert.Equal(t, 3, strings.Count(out, "<img"))
	assert.Contains(t, out, `<span class="spoiler spoiler-attachment">`)
	assert.Contains(t, out, `alt="plot.png"`)
	assert.Contains(t, out, "<video")
	assert.Contains(t, out, "1.5 MB")

	out = RenderAttachments(atts, types.Preferences{ShowImages: true})
	assert.Equal(t, 2, strings.Count(out, "<img"))
	assert.Contains(t, out, "2.0 kB")

	out = RenderAttachments(atts, types.Preferences{})
	assert.NotContains(t, out, "<img")
	assert.NotContains(t, out, "<video")
	assert.Contains(t, out, `download="cat.png"`)
}

func TestRenderStickers(t *testing.T) {
	st := []types.Sticker{{ID: "42", Name: "Wave"}}
	assert.Contains(t, RenderStickers(st, types.DefaultPreferences()), `src="/stickers/42.png"`)
	assert.Contains(t, RenderStickers(st, types.Preferences{}), "Sticker: Wave")
	assert.Equal(t, "", RenderStickers(nil, types.DefaultPreferences()))
}

func TestSystemLines(t *testing.T) {
	author := types.User{ID: "1", Username: "ann"}
	tests := []struct {
		msg  types.Message
		want string
	}{
		{types.Message{Type: types.MessageRecipientAdd, Author: author, Mentions: []types.User{{ID: "2", Username: "ben"}}}, "ann added ben to the group."},
		{types.Message{Type: types.MessageRecipientRemove, Author: author, Mentions: []types.User{author}}, "ann left the group."},
		{types.Message{Type: types.MessageChannelPinnedMessage, Author: author}, "ann pinned a message to this channel."},
		{types.Message{Type: types.MessageGuildBoost, Author: author, Content: "3"}, "ann just boosted the server 3 times!"},
		{types.Message{Type: types.MessageGuildBoostTier2, Author: author}, "ann just boosted the server! The server has achieved Level 2!"},
		{types.Message{Type: types.MessageThreadCreated, Author: author, Content: "plans"}, "ann started a thread: plans"},
	}
	for _, tt := range tests {
		got, ok := SystemText(&tt.msg)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got)
	}

	join := types.Message{ID: "1234567890123456789", Type: types.MessageMemberJoin, Author: author}
	first, ok := RenderSystemLine(&join)
	require.True(t, ok)
	again, _ := RenderSystemLine(&join)
	assert.Equal(t, first, again)
	assert.Contains(t, first, "<em>")
	assert.Contains(t, first, "ann")

	_, ok = SystemText(&types.Message{Type: types.MessageDefault})
	assert.False(t, ok)
	_, ok = SystemText(&types.Message{Type: types.MessageType(999)})
	assert.False(t, ok)
}

func TestTextContent(t *testing.T) {
	assert.Equal(t, "a & b", TextContent(`<strong>a</strong> &amp; <em>b</em>`))
	assert.True(t, IsBlank(`<br><span class="x"> </span>`))
	assert.False(t, IsBlank(`<img class="emoji" alt="x">`))
	assert.True(t, IsBlank(""))
}

func TestAvatarURL(t *testing.T) {
	u := types.User{ID: "80351110224678912", Avatar: "a_abc"}
	assert.Equal(t, "/avatars/80351110224678912/a_abc.gif", AvatarURL(u, nil, true))
	assert.Equal(t, "/avatars/80351110224678912/a_abc.png", AvatarURL(u, nil, false))
	assert.Equal(t, "/avatars/80351110224678912/m.png", AvatarURL(u, &types.Member{Avatar: "m"}, true))

	u.Avatar = ""
	assert.True(t, strings.HasPrefix(AvatarURL(u, nil, true), "/avatars/default/"))
	assert.Equal(t, "", ColorHex(0))
	assert.Equal(t, "#0000ff", ColorHex(255))
}
