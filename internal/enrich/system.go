package enrich

import (
	"html"
	"strconv"
	"strings"

	"chatview-server/internal/types"
)

var welcomePhrases = []string{
	"%s joined the party.",
	"%s is here.",
	"Welcome, %s. We hope you brought pizza.",
	"A wild %s appeared.",
	"%s just landed.",
	"%s just slid into the server.",
	"%s just showed up!",
	"Welcome %s. Say hi!",
	"%s hopped into the server.",
	"Everyone welcome %s!",
	"Glad you're here, %s.",
	"Good to see you, %s.",
	"Yay you made it, %s!",
}

// welcomePhrase picks a join phrase from the message's timestamp so the same
// message always gets the same phrase.
func welcomePhrase(m *types.Message) string {
	n := uint64(m.CreatedAt.UnixMilli())
	if id, err := strconv.ParseUint(m.ID, 10, 64); err == nil {
		n = id >> 22
	}
	return welcomePhrases[n%uint64(len(welcomePhrases))]
}

// SystemText describes a system-event message in plain text. ok is false for
// types that are not recognised system events.
func SystemText(m *types.Message) (text string, ok bool) {
	author := m.DisplayName()
	target := ""
	if len(m.Mentions) > 0 {
		target = m.Mentions[0].GlobalName
		if target == "" {
			target = m.Mentions[0].Username
		}
	}

	switch m.Type {
	case types.MessageRecipientAdd:
		return author + " added " + target + " to the group.", true
	case types.MessageRecipientRemove:
		if target == "" || (len(m.Mentions) > 0 && m.Mentions[0].ID == m.Author.ID) {
			return author + " left the group.", true
		}
		return author + " removed " + target + " from the group.", true
	case types.MessageCall:
		return author + " started a call.", true
	case types.MessageChannelNameChange:
		return author + " changed the channel name: " + m.Content, true
	case types.MessageChannelIconChange:
		return author + " changed the channel icon.", true
	case types.MessageChannelPinnedMessage:
		return author + " pinned a message to this channel.", true
	case types.MessageMemberJoin:
		return strings.Replace(welcomePhrase(m), "%s", author, 1), true
	case types.MessageGuildBoost:
		if n, err := strconv.Atoi(strings.TrimSpace(m.Content)); err == nil && n > 1 {
			return author + " just boosted the server " + strconv.Itoa(n) + " times!", true
		}
		return author + " just boosted the server!", true
	case types.MessageGuildBoostTier1, types.MessageGuildBoostTier2, types.MessageGuildBoostTier3:
		level := int(m.Type-types.MessageGuildBoostTier1) + 1
		return author + " just boosted the server! The server has achieved Level " + strconv.Itoa(level) + "!", true
	case types.MessageChannelFollowAdd:
		return author + " has added " + m.Content + " to this channel. Its most important updates will show up here.", true
	case types.MessageThreadCreated:
		return author + " started a thread: " + m.Content, true
	case types.MessageAutoModerationAction:
		return "AutoMod has blocked a message from " + author + ".", true
	case types.MessagePollResult:
		return author + "'s poll has closed.", true
	}
	return "", false
}

// RenderSystemLine renders the short italic line for a system event.
func RenderSystemLine(m *types.Message) (string, bool) {
	text, ok := SystemText(m)
	if !ok {
		return "", false
	}
	return `<div class="system-message" id="m-` + html.EscapeString(m.ID) + `"><em>` +
		html.EscapeString(text) + `</em></div>`, true
}
