package enrich

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"chatview-server/internal/types"
)

// Media never loads from the platform's CDN directly; every URL emitted here
// points at the local proxy.

// MediaURL is the proxy path for an attachment or embed media URL.
func MediaURL(raw string) string {
	if raw == "" {
		return ""
	}
	return "/media?url=" + url.QueryEscape(raw)
}

// LinkURL returns raw when it is an absolute http or https URL, the only
// schemes an embed may link to.
func LinkURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String(), true
	}
	return "", false
}

// StickerURL is the proxy path for a sticker image.
func StickerURL(id string) string {
	return "/stickers/" + url.PathEscape(id) + ".png"
}

// AvatarURL is the proxy path for a user's avatar. A member avatar overrides
// the account avatar; animated avatars are only requested when allowed.
func AvatarURL(u types.User, member *types.Member, showAnimations bool) string {
	hash := u.Avatar
	if member != nil && member.Avatar != "" {
		hash = member.Avatar
	}
	if hash == "" || u.ID == "" {
		return fmt.Sprintf("/avatars/default/%d.png", defaultAvatarIndex(u.ID))
	}
	ext := ".png"
	if strings.HasPrefix(hash, "a_") && showAnimations {
		ext = ".gif"
	}
	return "/avatars/" + url.PathEscape(u.ID) + "/" + url.PathEscape(hash) + ext
}

// defaultAvatarIndex picks one of the six default avatars from the id's
// timestamp bits.
func defaultAvatarIndex(id string) uint64 {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0
	}
	return (n >> 22) % 6
}

// ColorHex formats an RGB role colour, or "" when the colour is unset.
func ColorHex(c int) string {
	if c <= 0 {
		return ""
	}
	return fmt.Sprintf("#%06x", c&0xffffff)
}
