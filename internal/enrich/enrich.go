// Package enrich turns message-derived data into HTML fragments: message
// content with mentions, emoji and timestamps, reply and forward context,
// embeds, polls, reactions, attachments, stickers and system-event lines.
//
// Every renderer here is total. Failures to resolve a referenced user,
// channel, role or message degrade to a fallback rendering.
package enrich

import (
	"errors"
	"log/slog"
	"time"

	"chatview-server/internal/emoji"
	"chatview-server/internal/markdown"
	"chatview-server/internal/types"
)

// ErrUnresolved is returned when a referenced message cannot be loaded.
var ErrUnresolved = errors.New("enrich: reference could not be resolved")

var defaultMarkdown = markdown.New()

// DefaultForwardPreview is the number of runes of forwarded text shown.
const DefaultForwardPreview = 100

// Directory resolves ids found in message text. Lookups are in-memory; the
// caller loads whatever it can before rendering.
type Directory interface {
	User(id string) (types.User, bool)
	Channel(id string) (types.Channel, bool)
	Role(id string) (types.Role, bool)
}

// StaticDirectory is a Directory over fixed maps.
type StaticDirectory struct {
	Users    map[string]types.User
	Channels map[string]types.Channel
	Roles    map[string]types.Role
}

// NewStaticDirectory returns an empty StaticDirectory ready for use.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		Users:    make(map[string]types.User),
		Channels: make(map[string]types.Channel),
		Roles:    make(map[string]types.Role),
	}
}

func (d *StaticDirectory) User(id string) (types.User, bool) {
	u, ok := d.Users[id]
	return u, ok
}

func (d *StaticDirectory) Channel(id string) (types.Channel, bool) {
	c, ok := d.Channels[id]
	return c, ok
}

func (d *StaticDirectory) Role(id string) (types.Role, bool) {
	r, ok := d.Roles[id]
	return r, ok
}

// AddUsers records users, typically a message's mention list.
func (d *StaticDirectory) AddUsers(users ...types.User) {
	for _, u := range users {
		d.Users[u.ID] = u
	}
}

// Env carries everything the renderers need for one viewer. An Env is
// read-only once built and may be shared by concurrent renders.
type Env struct {
	Viewer   types.Viewer
	Location *time.Location
	Dir      Directory
	Markdown *markdown.Renderer
	Log      *slog.Logger

	// ForwardPreview bounds forwarded text, in runes, before rendering.
	ForwardPreview int

	// Now is the clock used for relative timestamps and poll expiry.
	Now func() time.Time
}

// NewEnv returns an Env for viewer with defaults for everything else.
func NewEnv(viewer types.Viewer) *Env {
	return &Env{
		Viewer:         viewer,
		Location:       viewer.Preferences.Location(),
		Dir:            NewStaticDirectory(),
		Markdown:       defaultMarkdown,
		Log:            slog.Default(),
		ForwardPreview: DefaultForwardPreview,
		Now:            time.Now,
	}
}

func (e *Env) prefs() types.Preferences { return e.Viewer.Preferences }

func (e *Env) loc() *time.Location {
	if e.Location == nil {
		return time.Local
	}
	return e.Location
}

func (e *Env) logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

func (e *Env) md() *markdown.Renderer {
	if e.Markdown == nil {
		return defaultMarkdown
	}
	return e.Markdown
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// RenderContent renders message text with the platform's inline extensions.
// Jumbo emoji sizing is decided from raw.
func (e *Env) RenderContent(m *types.Message, raw string) string {
	exts := e.textExtensions(m)
	exts = append(exts, emoji.Extension(emoji.OptionsFor(raw, e.prefs())))
	return e.md().Render(raw, exts...)
}

// renderPreview renders a short excerpt of someone else's text, never jumbo.
func (e *Env) renderPreview(m *types.Message, raw string) string {
	o := emoji.Options{ShowImages: e.prefs().ShowImages, ShowAnimations: e.prefs().ShowAnimations}
	exts := append(e.textExtensions(m), emoji.Extension(o))
	return e.md().Render(raw, exts...)
}
