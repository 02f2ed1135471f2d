package types

import "time"

// EmbedAuthor is the author row of an embed.
type EmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedField is a name/value pair, optionally laid out inline.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedMedia is an image, thumbnail or video reference.
type EmbedMedia struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// EmbedFooter is the footer row of an embed.
type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedProvider names the site an embed was generated from.
type EmbedProvider struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Embed is a structured rich embed.
type Embed struct {
	Title       string         `json:"title,omitempty"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color,omitempty"`
	Author      *EmbedAuthor   `json:"author,omitempty"`
	Fields      []EmbedField   `json:"fields,omitempty"`
	Image       *EmbedMedia    `json:"image,omitempty"`
	Thumbnail   *EmbedMedia    `json:"thumbnail,omitempty"`
	Video       *EmbedMedia    `json:"video,omitempty"`
	Footer      *EmbedFooter   `json:"footer,omitempty"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`
	Provider    *EmbedProvider `json:"provider,omitempty"`
}

// IsEmpty reports whether the embed has nothing to render.
func (e Embed) IsEmpty() bool {
	return e.Title == "" && e.Description == "" && e.Author == nil && len(e.Fields) == 0 &&
		e.Image == nil && e.Thumbnail == nil && e.Video == nil && e.Footer == nil && e.Provider == nil
}
