package types

import (
	"slices"
	"time"
)

// Preferences are the viewer settings that affect rendering.
type Preferences struct {
	ShowImages     bool   `json:"show_images"`
	ShowAnimations bool   `json:"show_animations"`
	Timezone       string `json:"timezone,omitempty"` // IANA name, empty for server local
}

// DefaultPreferences returns preferences for a viewer who has set nothing.
func DefaultPreferences() Preferences {
	return Preferences{ShowImages: true, ShowAnimations: true}
}

// Location resolves the viewer timezone, falling back to the renderer's
// local zone when the name is empty or unknown.
func (p Preferences) Location() *time.Location {
	if p.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Viewer is the person a transcript is rendered for.
type Viewer struct {
	ID          string      `json:"id"`
	RoleIDs     []string    `json:"role_ids,omitempty"`
	Preferences Preferences `json:"preferences"`
}

// HasRole reports whether the viewer holds roleID.
func (v Viewer) HasRole(roleID string) bool {
	return slices.Contains(v.RoleIDs, roleID)
}

// Channel is a text channel as seen by the viewer.
type Channel struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id,omitempty"`
	Name    string `json:"name"`
	Topic   string `json:"topic,omitempty"`
}

// Role is a guild role.
type Role struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color int    `json:"color,omitempty"`
}
