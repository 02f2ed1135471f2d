// Package types provides shared type definitions used across internal packages.
package types

import (
	"slices"
	"time"
)

// MessageType is the platform's message type tag.
type MessageType int

// Message types with a rendering of their own. Values match the platform's
// numeric codes so wire payloads map directly.
const (
	MessageDefault              MessageType = 0
	MessageRecipientAdd         MessageType = 1
	MessageRecipientRemove      MessageType = 2
	MessageCall                 MessageType = 3
	MessageChannelNameChange    MessageType = 4
	MessageChannelIconChange    MessageType = 5
	MessageChannelPinnedMessage MessageType = 6
	MessageMemberJoin           MessageType = 7
	MessageGuildBoost           MessageType = 8
	MessageGuildBoostTier1      MessageType = 9
	MessageGuildBoostTier2      MessageType = 10
	MessageGuildBoostTier3      MessageType = 11
	MessageChannelFollowAdd     MessageType = 12
	MessageThreadCreated        MessageType = 18
	MessageReply                MessageType = 19
	MessageChatInputCommand     MessageType = 20
	MessageContextMenuCommand   MessageType = 23
	MessageAutoModerationAction MessageType = 24
	MessagePollResult           MessageType = 46
)

// ReferenceKind distinguishes replies from forwards.
type ReferenceKind int

const (
	ReferenceReply ReferenceKind = iota
	ReferenceForward
)

// User is a platform account. Identity (ID) drives grouping; GlobalName and
// Username only feed display names.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	Bot        bool   `json:"bot,omitempty"`
}

// Member is the author's guild membership at the time the message was fetched.
type Member struct {
	Nick    string   `json:"nick,omitempty"`
	RoleIDs []string `json:"roles,omitempty"`
	// Color is the RGB colour of the member's highest coloured role, 0 when none.
	Color  int    `json:"color,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// AttachmentKind classifies an attachment for rendering.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentAudio AttachmentKind = "audio"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is an uploaded file.
type Attachment struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	URL  string         `json:"url"`
	Size int64          `json:"size"`
	Kind AttachmentKind `json:"kind"`
}

// Sticker is a platform sticker reference.
type Sticker struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Animated bool   `json:"animated,omitempty"`
}

// Emoji identifies either a unicode emoji (ID empty, Name holds the
// characters) or a custom emoji (ID set, Name is its short name).
type Emoji struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Animated bool   `json:"animated,omitempty"`
}

// IsCustom reports whether e refers to an uploaded custom emoji.
func (e Emoji) IsCustom() bool { return e.ID != "" }

// Reaction is an aggregated reaction on a message.
type Reaction struct {
	Emoji           Emoji `json:"emoji"`
	Count           int   `json:"count"`
	IsSuperReaction bool  `json:"burst,omitempty"`
	Me              bool  `json:"me,omitempty"`
}

// PollAnswer is one option of a poll.
type PollAnswer struct {
	Text      string `json:"text"`
	VoteCount int    `json:"vote_count"`
	Emoji     *Emoji `json:"emoji,omitempty"`
}

// Poll is an optional poll attached to a message.
type Poll struct {
	Question         string       `json:"question"`
	Answers          []PollAnswer `json:"answers"`
	AllowMultiselect bool         `json:"allow_multiselect,omitempty"`
	Expiry           *time.Time   `json:"expiry,omitempty"`
	Finalized        bool         `json:"finalized,omitempty"`
}

// TotalVotes sums the vote counts of all answers.
func (p Poll) TotalVotes() int {
	total := 0
	for _, a := range p.Answers {
		total += a.VoteCount
	}
	return total
}

// Reference points at another message, either replied to or forwarded.
type Reference struct {
	Kind      ReferenceKind `json:"kind"`
	MessageID string        `json:"message_id"`
	ChannelID string        `json:"channel_id,omitempty"`
	GuildID   string        `json:"guild_id,omitempty"`
}

// Snapshot is the platform-supplied copy of a forwarded message's content.
type Snapshot struct {
	Content     string       `json:"content"`
	CreatedAt   time.Time    `json:"created_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Embeds      []Embed      `json:"embeds,omitempty"`
}

// Message is one chat message. Optional parts are pointers or empty slices;
// nothing else is probed for presence.
type Message struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channel_id"`
	Type      MessageType `json:"type"`
	Author    User        `json:"author"`
	Member    *Member     `json:"member,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	EditedAt  *time.Time  `json:"edited_at,omitempty"`
	Content   string      `json:"content"`

	Attachments []Attachment `json:"attachments,omitempty"`
	Embeds      []Embed      `json:"embeds,omitempty"`
	Stickers    []Sticker    `json:"stickers,omitempty"`
	Reactions   []Reaction   `json:"reactions,omitempty"`
	Poll        *Poll        `json:"poll,omitempty"`

	Reference *Reference `json:"reference,omitempty"`
	// ReferencedMessage is the reply target when the platform inlines it.
	ReferencedMessage *Message `json:"referenced_message,omitempty"`
	// Snapshot is the forwarded content when the platform inlines it.
	Snapshot *Snapshot `json:"snapshot,omitempty"`

	MentionUserIDs  []string `json:"mention_user_ids,omitempty"`
	MentionRoleIDs  []string `json:"mention_role_ids,omitempty"`
	MentionEveryone bool     `json:"mention_everyone,omitempty"`
	// MentionRepliedUser is set when a reply pings the replied-to author.
	MentionRepliedUser bool `json:"mention_replied_user,omitempty"`
	// Mentions carries the user records for MentionUserIDs when known.
	Mentions []User `json:"mentions,omitempty"`
}

// DisplayName resolves the author's visible name: guild nickname, then
// global name, then username.
func (m *Message) DisplayName() string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// IsReply reports whether the message replies to another message.
func (m *Message) IsReply() bool {
	return m.Reference != nil && m.Reference.Kind == ReferenceReply
}

// IsForward reports whether the message re-shares another message.
func (m *Message) IsForward() bool {
	return m.Reference != nil && m.Reference.Kind == ReferenceForward
}

// MentionsUser reports whether userID is directly mentioned.
func (m *Message) MentionsUser(userID string) bool {
	return userID != "" && slices.Contains(m.MentionUserIDs, userID)
}

// MentionedUser returns the mention record for userID, if the platform sent one.
func (m *Message) MentionedUser(userID string) (User, bool) {
	for _, u := range m.Mentions {
		if u.ID == userID {
			return u, true
		}
	}
	return User{}, false
}

// IsSystem reports whether the type is a system event rather than user content.
func (t MessageType) IsSystem() bool {
	switch t {
	case MessageDefault, MessageReply, MessageChatInputCommand, MessageContextMenuCommand:
		return false
	}
	return true
}
