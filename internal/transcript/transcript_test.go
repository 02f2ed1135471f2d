package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatview-server/internal/enrich"
	"chatview-server/internal/types"
)

const (
	viewerID = "100"
	grin     = "\U0001F600"
)

var base = time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)

func testViewer(tz string) types.Viewer {
	return types.Viewer{
		ID:          viewerID,
		RoleIDs:     []string{"500"},
		Preferences: types.Preferences{ShowImages: true, ShowAnimations: true, Timezone: tz},
	}
}

func msg(id, author string, at time.Time, content string) types.Message {
	return types.Message{
		ID:        id,
		ChannelID: "1",
		Author:    types.User{ID: author, Username: "user" + author},
		CreatedAt: at,
		Content:   content,
	}
}

func compose(t *testing.T, msgs ...types.Message) string {
	t.Helper()
	out, err := Compose(msgs, testViewer("UTC"))
	require.NoError(t, err)
	return out
}

func countRuns(s string) int       { return strings.Count(s, `class="run-header"`) }
func countSeparators(s string) int { return strings.Count(s, `class="date-separator"`) }

func TestRunMerge(t *testing.T) {
	out := compose(t,
		msg("1", "200", base, "first"),
		msg("2", "200", base.Add(60*time.Second), "second"),
	)
	assert.Equal(t, 1, countRuns(out))
	assert.Equal(t, 2, strings.Count(out, `class="message`))
	assert.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
}

func TestRunSplitOnGap(t *testing.T) {
	out := compose(t,
		msg("1", "200", base, "first"),
		msg("2", "200", base.Add(8*time.Minute), "second"),
	)
	assert.Equal(t, 2, countRuns(out))
}

func TestRunGapMeasuredFromPreviousMessage(t *testing.T) {
	// Each gap is under seven minutes although the run spans fifteen.
	out := compose(t,
		msg("1", "200", base, "a"),
		msg("2", "200", base.Add(5*time.Minute), "b"),
		msg("3", "200", base.Add(10*time.Minute), "c"),
		msg("4", "200", base.Add(15*time.Minute), "d"),
	)
	assert.Equal(t, 1, countRuns(out))

	out = compose(t,
		msg("1", "200", base, "a"),
		msg("2", "200", base.Add(RunGap), "b"),
		msg("3", "200", base.Add(2*RunGap+time.Second), "c"),
	)
	assert.Equal(t, 2, countRuns(out), "exactly seven minutes stays in the run")
}

func TestRunSplitOnAuthor(t *testing.T) {
	out := compose(t,
		msg("1", "200", base, "a"),
		msg("2", "201", base.Add(time.Second), "b"),
		msg("3", "200", base.Add(2*time.Second), "c"),
	)
	assert.Equal(t, 3, countRuns(out))
}

func TestRunGroupsByIdentityNotName(t *testing.T) {
	a := msg("1", "200", base, "a")
	b := msg("2", "201", base.Add(time.Second), "b")
	a.Author.Username = "same"
	b.Author.Username = "same"
	assert.Equal(t, 2, countRuns(compose(t, a, b)))
}

func TestRunHeaderUsesLastSnapshotAndFirstTime(t *testing.T) {
	a := msg("1", "200", base, "a")
	a.Member = &types.Member{Nick: "Old Nick", Color: 0xff0000}
	b := msg("2", "200", base.Add(2*time.Minute), "b")
	b.Member = &types.Member{Nick: "New Nick", Color: 0x00ff00}

	out := compose(t, a, b)
	assert.Contains(t, out, "New Nick")
	assert.NotContains(t, out, "Old Nick")
	assert.Contains(t, out, "color:#00ff00")
	assert.Contains(t, out, `<time class="run-time" datetime="2024-01-02T12:00:00Z">01/02/2024 12:00 PM</time>`)
	assert.Contains(t, out, `id="run-1"`)
}

func TestDaySeparatorUsesViewerZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	late := time.Date(2024, 1, 1, 23, 30, 0, 0, ny)
	early := time.Date(2024, 1, 2, 0, 5, 0, 0, ny)
	msgs := []types.Message{
		msg("1", "200", late, "late"),
		msg("2", "200", early, "early"),
	}

	out, err := Compose(msgs, testViewer("America/New_York"))
	require.NoError(t, err)
	assert.Equal(t, 2, countSeparators(out))
	between := out[strings.Index(out, "late"):strings.Index(out, "early")]
	assert.Equal(t, 1, countSeparators(between))
	assert.Contains(t, between, "January 2, 2024")

	// The same instants expressed in UTC still split for a New York viewer.
	utcMsgs := []types.Message{
		msg("1", "200", late.UTC(), "late"),
		msg("2", "200", early.UTC(), "early"),
	}
	out, err = Compose(utcMsgs, testViewer("America/New_York"))
	require.NoError(t, err)
	assert.Equal(t, 2, countSeparators(out))

	// Both instants fall on January 2 in UTC.
	out, err = Compose(utcMsgs, testViewer("UTC"))
	require.NoError(t, err)
	assert.Equal(t, 1, countSeparators(out))
}

func TestDayChangeClosesRun(t *testing.T) {
	out := compose(t,
		msg("1", "200", time.Date(2024, 1, 1, 23, 58, 0, 0, time.UTC), "before"),
		msg("2", "200", time.Date(2024, 1, 2, 0, 3, 0, 0, time.UTC), "after"),
	)
	assert.Equal(t, 2, countSeparators(out))
	assert.Equal(t, 2, countRuns(out))
}

func TestDaySeparatorBeforeFirstMessage(t *testing.T) {
	out := compose(t, msg("1", "200", base, "hi"))
	require.Equal(t, 1, countSeparators(out))
	assert.Less(t, strings.Index(out, "date-separator"), strings.Index(out, "run-header"))
	assert.Contains(t, out, "January 2, 2024")
}

func TestUnknownTimezoneFallsBack(t *testing.T) {
	_, err := Compose([]types.Message{msg("1", "200", base, "hi")}, testViewer("Not/AZone"))
	assert.NoError(t, err)
}

func TestJumboEmoji(t *testing.T) {
	out := compose(t, msg("1", "200", base, grin+grin+grin))
	assert.Equal(t, 3, strings.Count(out, `width="44"`))
	assert.Contains(t, out, "message-content jumbo")

	out = compose(t, msg("1", "200", base, grin+grin+grin+" hi"))
	assert.NotContains(t, out, `width="44"`)
	assert.Equal(t, 3, strings.Count(out, `width="22"`))
	assert.NotContains(t, out, "message-content jumbo")
}

func TestBlankSuppression(t *testing.T) {
	blank := msg("1", "200", base, "")
	out := compose(t, blank)
	assert.Zero(t, countRuns(out))
	assert.Zero(t, countSeparators(out))
	assert.Equal(t, 1, CountAnchors(out))

	whitespace := msg("2", "200", base, "   \n ")
	assert.Zero(t, countRuns(compose(t, whitespace)))

	withFile := msg("3", "200", base, "")
	withFile.Attachments = []types.Attachment{{Name: "a.txt", URL: "https://cdn.example/a.txt", Kind: types.AttachmentFile}}
	assert.Equal(t, 1, countRuns(compose(t, withFile)))

	join := msg("4", "200", base, "")
	join.Type = types.MessageMemberJoin
	out = compose(t, join)
	assert.Contains(t, out, `class="system-message"`)
	assert.Contains(t, out, "<em>")
	assert.Zero(t, countRuns(out))
}

func TestBlankMessageDoesNotTouchState(t *testing.T) {
	// A blank message from someone else must not split the run around it.
	out := compose(t,
		msg("1", "200", base, "a"),
		msg("2", "201", base.Add(time.Second), ""),
		msg("3", "200", base.Add(2*time.Second), "b"),
	)
	assert.Equal(t, 1, countRuns(out))
}

func TestSystemMessageBreaksRun(t *testing.T) {
	pin := msg("2", "200", base.Add(time.Second), "")
	pin.Type = types.MessageChannelPinnedMessage
	out := compose(t,
		msg("1", "200", base, "a"),
		pin,
		msg("3", "200", base.Add(2*time.Second), "b"),
	)
	assert.Equal(t, 2, countRuns(out))
	assert.Contains(t, out, "pinned a message")
	first := strings.Index(out, "run-1")
	line := strings.Index(out, "system-message")
	second := strings.Index(out, "run-3")
	assert.True(t, first < line && line < second)
}

func TestAnchorIdempotence(t *testing.T) {
	msgs := []types.Message{
		msg("1", "200", base, "a"),
		msg("2", "201", base.Add(time.Minute), "b"),
	}
	a := compose(t, msgs...)
	b := compose(t, msgs...)
	require.Equal(t, 1, CountAnchors(a))

	joined := PlaceAnchor(a + b)
	assert.Equal(t, 1, CountAnchors(joined))
	assert.True(t, strings.HasSuffix(joined, Anchor))
	assert.Equal(t, joined, PlaceAnchor(joined))
}

func TestPlaceAnchorEmpty(t *testing.T) {
	assert.Equal(t, "\n"+Anchor, PlaceAnchor(""))
	assert.Equal(t, "\n"+Anchor, PlaceAnchor(Anchor+Anchor))
}

func TestTemplateSelection(t *testing.T) {
	forward := func(m types.Message) types.Message {
		m.Reference = &types.Reference{Kind: types.ReferenceForward, MessageID: "900", ChannelID: "2"}
		m.Snapshot = &types.Snapshot{Content: "shared text", CreatedAt: base.Add(-time.Hour)}
		return m
	}
	mention := func(m types.Message) types.Message {
		m.MentionUserIDs = []string{viewerID}
		return m
	}

	tests := []struct {
		name string
		msg  types.Message
		want string
	}{
		{"plain", msg("1", "200", base, "hi"), `<section class="run" id="run-1">`},
		{"mention", mention(msg("1", "200", base, "hi <@100>")), `<section class="run run-mention" id="run-1"`},
		{"forward", forward(msg("1", "200", base, "")), `<section class="run run-forward" id="run-1">`},
		{"forward mention", mention(forward(msg("1", "200", base, ""))), `<section class="run run-forward run-mention" id="run-1"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := compose(t, tc.msg)
			assert.Contains(t, out, tc.want)
			assert.Equal(t, 1, strings.Count(out, "<section"))
		})
	}
}

func TestEveryoneInCodeIsNotAMention(t *testing.T) {
	out := compose(t, msg("1", "200", base, "`@everyone` is a keyword"))
	assert.NotContains(t, out, "run-mention")
	assert.Contains(t, out, "<code>@everyone</code>")

	out = compose(t, msg("1", "200", base, "heads up @everyone"))
	assert.Contains(t, out, `class="run run-mention"`)
}

func TestTemplateSelectionUsesLastMessage(t *testing.T) {
	first := msg("1", "200", base, "hey <@100>")
	first.MentionUserIDs = []string{viewerID}
	out := compose(t, first, msg("2", "200", base.Add(time.Minute), "never mind"))
	assert.Contains(t, out, `<section class="run" id="run-1">`)
	assert.NotContains(t, out, "run-mention")
	assert.Contains(t, out, "message message-mention", "the message itself is still highlighted")

	out = compose(t, msg("1", "200", base, "hi"), first)
	assert.Contains(t, out, `class="run run-mention"`)
}

func TestUnsortedInput(t *testing.T) {
	_, err := Compose([]types.Message{
		msg("2", "200", base.Add(time.Minute), "b"),
		msg("1", "200", base, "a"),
	}, testViewer("UTC"))
	assert.True(t, errors.Is(err, ErrUnsorted))

	_, err = Compose([]types.Message{
		msg("1", "200", base, "a"),
		msg("2", "201", base, "b"),
	}, testViewer("UTC"))
	assert.NoError(t, err, "equal timestamps are in order")
}

type failingFetcher struct{}

func (failingFetcher) Message(context.Context, string, string) (*types.Message, error) {
	return nil, fmt.Errorf("fetch: %w", enrich.ErrUnresolved)
}

func TestReferenceDegradation(t *testing.T) {
	reply := msg("1", "200", base, "replying")
	reply.Reference = &types.Reference{Kind: types.ReferenceReply, MessageID: "42", ChannelID: "1"}
	fwd := msg("2", "201", base.Add(time.Second), "")
	fwd.Reference = &types.Reference{Kind: types.ReferenceForward, MessageID: "43", ChannelID: "9"}
	fwdText := msg("3", "202", base.Add(2*time.Second), "with comment")
	fwdText.Reference = &types.Reference{Kind: types.ReferenceForward, MessageID: "44", ChannelID: "9"}
	msgs := []types.Message{reply, fwd, fwdText}

	env := enrich.NewEnv(testViewer("UTC"))
	refs := enrich.NewResolver(failingFetcher{}, nil).Prefetch(context.Background(), msgs, 2)
	out, err := NewComposer(env, refs).Compose(msgs)
	require.NoError(t, err)

	assert.Contains(t, out, "replying")
	assert.NotContains(t, out, "reply-context")
	assert.NotContains(t, out, "run-forward")
	assert.NotContains(t, out, `id="m-2"`, "an unresolved forward with no text is blank")
	assert.Contains(t, out, "with comment")
}

func TestReplyContextRendered(t *testing.T) {
	target := msg("1", viewerID, base, "original words")
	reply := msg("2", "200", base.Add(time.Minute), "answer")
	reply.Reference = &types.Reference{Kind: types.ReferenceReply, MessageID: "1", ChannelID: "1"}
	reply.ReferencedMessage = &target
	reply.MentionRepliedUser = true

	out := compose(t, target, reply)
	assert.Contains(t, out, `class="reply-context"`)
	assert.Contains(t, out, `href="#m-1"`)
	assert.Contains(t, out, "run-mention", "reply ping to the viewer highlights the run")
}

func TestNilReferencesRenderPlain(t *testing.T) {
	reply := msg("1", "200", base, "text")
	reply.Reference = &types.Reference{Kind: types.ReferenceReply, MessageID: "9"}
	target := msg("9", "201", base.Add(-time.Minute), "t")
	reply.ReferencedMessage = &target

	out, err := NewComposer(enrich.NewEnv(testViewer("UTC")), nil).Compose([]types.Message{reply})
	require.NoError(t, err)
	assert.NotContains(t, out, "reply-context")
}

func TestHeaderEscaping(t *testing.T) {
	m := msg("1", "200", base, "hi")
	m.Member = &types.Member{Nick: `<script>alert(1)</script>`}
	out := compose(t, m)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestEditedMarker(t *testing.T) {
	m := msg("1", "200", base, "fixed typo")
	edited := base.Add(time.Minute)
	m.EditedAt = &edited
	assert.Contains(t, compose(t, m), "(edited)")
}

func TestImagesOffHidesAvatars(t *testing.T) {
	v := testViewer("UTC")
	v.Preferences.ShowImages = false
	out, err := Compose([]types.Message{msg("1", "200", base, grin)}, v)
	require.NoError(t, err)
	assert.NotContains(t, out, `class="avatar"`)
	assert.NotContains(t, out, "<img")
	assert.NotContains(t, out, "message-content jumbo")
}

func TestEmptyInput(t *testing.T) {
	out, err := Compose(nil, testViewer("UTC"))
	require.NoError(t, err)
	assert.Equal(t, "\n"+Anchor, out)
}

func TestDispatcherRoutesEachTemplate(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{templatePlain, `<section class="run" id="run-7">`},
		{templateMention, `<section class="run run-mention" id="run-7"`},
		{templateForward, `<section class="run run-forward" id="run-7">`},
		{templateForwardMention, `<section class="run run-forward run-mention" id="run-7"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(templateDispatcher, runView{RenderTemplate: tc.name, ID: "7", DisplayName: "bob"})
			require.NoError(t, err)
			assert.Contains(t, out, tc.want)
			assert.Equal(t, 1, strings.Count(out, "<section"))

			direct, err := execute(tc.name, runView{RenderTemplate: tc.name, ID: "7", DisplayName: "bob"})
			require.NoError(t, err)
			assert.Equal(t, direct, out)
		})
	}
}

func TestSelectTemplate(t *testing.T) {
	assert.Equal(t, "run-plain", selectTemplate(false, false))
	assert.Equal(t, "run-mention", selectTemplate(false, true))
	assert.Equal(t, "run-forward", selectTemplate(true, false))
	assert.Equal(t, "run-forward-mention", selectTemplate(true, true))
}
