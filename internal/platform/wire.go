package platform

import (
	"encoding/json"
	"mime"
	"strings"
	"time"

	"chatview-server/internal/types"
)

// Wire shapes as the platform's REST API and gateway send them. Only the
// fields the renderer uses are declared.

type wireUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
	Bot        bool   `json:"bot"`
}

type wireMember struct {
	User   *wireUser `json:"user,omitempty"`
	Nick   string    `json:"nick"`
	Roles  []string  `json:"roles"`
	Avatar string    `json:"avatar"`
}

type wireAttachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

type wireSticker struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FormatType int    `json:"format_type"`
}

type wireEmoji struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Animated bool   `json:"animated"`
}

type wireReaction struct {
	Emoji        wireEmoji `json:"emoji"`
	Count        int       `json:"count"`
	Me           bool      `json:"me"`
	MeBurst      bool      `json:"me_burst"`
	CountDetails struct {
		Burst  int `json:"burst"`
		Normal int `json:"normal"`
	} `json:"count_details"`
}

type wirePollMedia struct {
	Text  string     `json:"text"`
	Emoji *wireEmoji `json:"emoji,omitempty"`
}

type wirePoll struct {
	Question wirePollMedia `json:"question"`
	Answers  []struct {
		AnswerID  int           `json:"answer_id"`
		PollMedia wirePollMedia `json:"poll_media"`
	} `json:"answers"`
	Expiry           *time.Time `json:"expiry"`
	AllowMultiselect bool       `json:"allow_multiselect"`
	Results          *struct {
		IsFinalized  bool `json:"is_finalized"`
		AnswerCounts []struct {
			ID    int `json:"id"`
			Count int `json:"count"`
		} `json:"answer_counts"`
	} `json:"results"`
}

type wireReference struct {
	Type      int    `json:"type"`
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
}

type wireSnapshot struct {
	Message struct {
		Content     string           `json:"content"`
		Timestamp   time.Time        `json:"timestamp"`
		Attachments []wireAttachment `json:"attachments"`
		Embeds      []types.Embed    `json:"embeds"`
	} `json:"message"`
}

type wireMessage struct {
	ID              string           `json:"id"`
	ChannelID       string           `json:"channel_id"`
	GuildID         string           `json:"guild_id"`
	Type            int              `json:"type"`
	Author          wireUser         `json:"author"`
	Member          *wireMember      `json:"member"`
	Timestamp       time.Time        `json:"timestamp"`
	EditedTimestamp *time.Time       `json:"edited_timestamp"`
	Content         string           `json:"content"`
	Attachments     []wireAttachment `json:"attachments"`
	Embeds          []types.Embed    `json:"embeds"`
	StickerItems    []wireSticker    `json:"sticker_items"`
	Reactions       []wireReaction   `json:"reactions"`
	Poll            *wirePoll        `json:"poll"`
	Reference       *wireReference   `json:"message_reference"`
	Referenced      *wireMessage     `json:"referenced_message"`
	Snapshots       []wireSnapshot   `json:"message_snapshots"`
	Mentions        []wireUser       `json:"mentions"`
	MentionRoles    []string         `json:"mention_roles"`
	MentionEveryone bool             `json:"mention_everyone"`
}

type wireChannel struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id"`
	Name    string `json:"name"`
	Topic   string `json:"topic"`
	Type    int    `json:"type"`
}

type wireRole struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    int    `json:"color"`
	Position int    `json:"position"`
}

// wireRefForward is the message_reference type of a forward; replies are 0.
const wireRefForward = 1

// Sticker formats that animate.
const (
	stickerFormatAPNG = 2
	stickerFormatGIF  = 4
)

// DecodeMessage converts one wire message into the domain model.
func DecodeMessage(data []byte) (types.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return types.Message{}, err
	}
	return w.toMessage(), nil
}

func (u wireUser) toUser() types.User {
	return types.User{ID: u.ID, Username: u.Username, GlobalName: u.GlobalName, Avatar: u.Avatar, Bot: u.Bot}
}

func (w *wireMessage) toMessage() types.Message {
	m := types.Message{
		ID:              w.ID,
		ChannelID:       w.ChannelID,
		Type:            types.MessageType(w.Type),
		Author:          w.Author.toUser(),
		CreatedAt:       w.Timestamp,
		EditedAt:        w.EditedTimestamp,
		Content:         w.Content,
		Attachments:     toAttachments(w.Attachments),
		Embeds:          w.Embeds,
		MentionRoleIDs:  w.MentionRoles,
		MentionEveryone: w.MentionEveryone,
	}
	if w.Member != nil {
		m.Member = &types.Member{Nick: w.Member.Nick, RoleIDs: w.Member.Roles, Avatar: w.Member.Avatar}
	}
	for _, s := range w.StickerItems {
		animated := s.FormatType == stickerFormatAPNG || s.FormatType == stickerFormatGIF
		m.Stickers = append(m.Stickers, types.Sticker{ID: s.ID, Name: s.Name, Animated: animated})
	}
	for _, r := range w.Reactions {
		m.Reactions = append(m.Reactions, types.Reaction{
			Emoji:           r.Emoji.toEmoji(),
			Count:           r.Count,
			IsSuperReaction: r.CountDetails.Burst > 0 && r.CountDetails.Normal == 0,
			Me:              r.Me || r.MeBurst,
		})
	}
	if w.Poll != nil {
		m.Poll = w.Poll.toPoll()
	}
	for _, u := range w.Mentions {
		m.Mentions = append(m.Mentions, u.toUser())
		m.MentionUserIDs = append(m.MentionUserIDs, u.ID)
	}

	if ref := w.Reference; ref != nil && ref.MessageID != "" {
		kind := types.ReferenceReply
		if ref.Type == wireRefForward {
			kind = types.ReferenceForward
		}
		m.Reference = &types.Reference{Kind: kind, MessageID: ref.MessageID, ChannelID: ref.ChannelID, GuildID: ref.GuildID}
	}
	if w.Referenced != nil && m.IsReply() {
		target := w.Referenced.toMessage()
		m.ReferencedMessage = &target
		// The replied-to author is only in mentions when the reply pinged them.
		m.MentionRepliedUser = m.MentionsUser(target.Author.ID)
	}
	if len(w.Snapshots) > 0 && m.IsForward() {
		s := w.Snapshots[0].Message
		m.Snapshot = &types.Snapshot{
			Content:     s.Content,
			CreatedAt:   s.Timestamp,
			Attachments: toAttachments(s.Attachments),
			Embeds:      s.Embeds,
		}
	}
	return m
}

func (e wireEmoji) toEmoji() types.Emoji {
	return types.Emoji{ID: e.ID, Name: e.Name, Animated: e.Animated}
}

func (p *wirePoll) toPoll() *types.Poll {
	counts := make(map[int]int)
	finalized := false
	if p.Results != nil {
		finalized = p.Results.IsFinalized
		for _, c := range p.Results.AnswerCounts {
			counts[c.ID] = c.Count
		}
	}
	poll := &types.Poll{
		Question:         p.Question.Text,
		AllowMultiselect: p.AllowMultiselect,
		Expiry:           p.Expiry,
		Finalized:        finalized,
	}
	for _, a := range p.Answers {
		ans := types.PollAnswer{Text: a.PollMedia.Text, VoteCount: counts[a.AnswerID]}
		if a.PollMedia.Emoji != nil {
			e := a.PollMedia.Emoji.toEmoji()
			ans.Emoji = &e
		}
		poll.Answers = append(poll.Answers, ans)
	}
	return poll
}

func toAttachments(in []wireAttachment) []types.Attachment {
	var out []types.Attachment
	for _, a := range in {
		out = append(out, types.Attachment{
			ID:   a.ID,
			Name: a.Filename,
			URL:  a.URL,
			Size: a.Size,
			Kind: attachmentKind(a.ContentType),
		})
	}
	return out
}

func attachmentKind(contentType string) types.AttachmentKind {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return types.AttachmentFile
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return types.AttachmentImage
	case strings.HasPrefix(mt, "video/"):
		return types.AttachmentVideo
	case strings.HasPrefix(mt, "audio/"):
		return types.AttachmentAudio
	}
	return types.AttachmentFile
}
