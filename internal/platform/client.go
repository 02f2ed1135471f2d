// Package platform is the REST client for the chat platform. It loads
// channels, members, roles and messages, and converts the platform's wire
// format into the domain model.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"chatview-server/internal/cache"
	"chatview-server/internal/metrics"
	"chatview-server/internal/types"
)

var (
	// ErrNotFound is returned for objects the platform does not know.
	ErrNotFound = errors.New("platform: not found")
	// ErrForbidden is returned when the credentials may not read the object.
	ErrForbidden = errors.New("platform: forbidden")
)

// pageSize is the most messages one history request returns.
const pageSize = 100

// Config configures a Client.
type Config struct {
	APIBase           string
	Token             string
	RequestsPerSecond float64
	Burst             int
	TTLs              cache.TTLs
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the platform's REST API. Lookups of single objects are
// cached in the backend and deduplicated while in flight; every request
// passes through one rate limiter.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	cache   cache.Backend
	ttl     cache.TTLs
	group   singleflight.Group
	log     *slog.Logger
}

// NewClient returns a Client. backend may be nil to disable caching.
func NewClient(cfg Config, backend cache.Backend, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	ttl := cfg.TTLs
	if ttl == (cache.TTLs{}) {
		ttl = cache.DefaultTTLs()
	}
	return &Client{
		base:    strings.TrimRight(cfg.APIBase, "/"),
		token:   cfg.Token,
		http:    hc,
		limiter: rate.NewLimiter(limit, burst),
		cache:   backend,
		ttl:     ttl,
		log:     log,
	}
}

// StatusError is a non-success response the client has no sentinel for.
type StatusError struct {
	Status int
	Path   string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform: %s returned %d: %s", e.Path, e.Status, e.Body)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bot "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "chatview-server")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("platform request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, path)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Status: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(body))}
}

// notFoundMarker is cached in place of an object the platform reported missing.
var notFoundMarker = []byte("null")

// cached returns the object under key, loading it with fetch on a miss.
// Concurrent misses for one key share a single fetch.
func cached[T any](ctx context.Context, c *Client, key string, ttl time.Duration, fetch func(context.Context) (*T, error)) (*T, error) {
	if c.cache != nil {
		data, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.log.Warn("cache read failed", "key", key, "error", err)
		}
		if ok {
			metrics.IncrementCacheHit()
			if string(data) == string(notFoundMarker) {
				return nil, fmt.Errorf("%w: %s (cached)", ErrNotFound, key)
			}
			v := new(T)
			if err := json.Unmarshal(data, v); err == nil {
				return v, nil
			}
		}
		metrics.IncrementCacheMiss()
	}

	res, err, shared := c.group.Do(key, func() (any, error) {
		v, err := fetch(ctx)
		if c.cache == nil {
			return v, err
		}
		switch {
		case err == nil:
			if serr := cache.SetJSON(ctx, c.cache, key, v, ttl); serr != nil {
				c.log.Warn("cache write failed", "key", key, "error", serr)
			}
		case errors.Is(err, ErrNotFound):
			_ = c.cache.Set(ctx, key, notFoundMarker, c.ttl.NotFound)
		}
		return v, err
	})
	if shared {
		c.log.Debug("singleflight: shared platform fetch", "key", key)
	}
	if err != nil {
		return nil, err
	}
	return res.(*T), nil
}

// Channel loads a channel.
func (c *Client) Channel(ctx context.Context, channelID string) (*types.Channel, error) {
	return cached(ctx, c, "channel:"+channelID, c.ttl.Channel, func(ctx context.Context) (*types.Channel, error) {
		var w wireChannel
		if err := c.get(ctx, "/channels/"+url.PathEscape(channelID), &w); err != nil {
			return nil, err
		}
		return &types.Channel{ID: w.ID, GuildID: w.GuildID, Name: w.Name, Topic: w.Topic}, nil
	})
}

// Member loads a guild member. Its Color is the colour of the highest
// coloured role it holds.
func (c *Client) Member(ctx context.Context, guildID, userID string) (*types.Member, error) {
	key := "member:" + guildID + ":" + userID
	return cached(ctx, c, key, c.ttl.Member, func(ctx context.Context) (*types.Member, error) {
		var w wireMember
		path := "/guilds/" + url.PathEscape(guildID) + "/members/" + url.PathEscape(userID)
		if err := c.get(ctx, path, &w); err != nil {
			return nil, err
		}
		m := &types.Member{Nick: w.Nick, RoleIDs: w.Roles, Avatar: w.Avatar}
		roles, err := c.guildRoles(ctx, guildID)
		if err != nil {
			c.log.Debug("member colour unavailable", "guild_id", guildID, "error", err)
			return m, nil
		}
		m.Color = memberColor(*roles, w.Roles)
		return m, nil
	})
}

// memberColor picks the colour of the highest positioned coloured role.
func memberColor(roles []wireRole, held []string) int {
	best, color := -1, 0
	for _, r := range roles {
		if r.Color == 0 || r.Position <= best || !slices.Contains(held, r.ID) {
			continue
		}
		best, color = r.Position, r.Color
	}
	return color
}

func (c *Client) guildRoles(ctx context.Context, guildID string) (*[]wireRole, error) {
	return cached(ctx, c, "roles:"+guildID, c.ttl.Roles, func(ctx context.Context) (*[]wireRole, error) {
		var roles []wireRole
		if err := c.get(ctx, "/guilds/"+url.PathEscape(guildID)+"/roles", &roles); err != nil {
			return nil, err
		}
		return &roles, nil
	})
}

// GuildRoles lists a guild's roles.
func (c *Client) GuildRoles(ctx context.Context, guildID string) ([]types.Role, error) {
	roles, err := c.guildRoles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Role, 0, len(*roles))
	for _, r := range *roles {
		out = append(out, types.Role{ID: r.ID, Name: r.Name, Color: r.Color})
	}
	return out, nil
}

// GuildChannels lists a guild's channels.
func (c *Client) GuildChannels(ctx context.Context, guildID string) ([]types.Channel, error) {
	chs, err := cached(ctx, c, "channels:"+guildID, c.ttl.Channel, func(ctx context.Context) (*[]types.Channel, error) {
		var wire []wireChannel
		if err := c.get(ctx, "/guilds/"+url.PathEscape(guildID)+"/channels", &wire); err != nil {
			return nil, err
		}
		out := make([]types.Channel, 0, len(wire))
		for _, w := range wire {
			out = append(out, types.Channel{ID: w.ID, GuildID: w.GuildID, Name: w.Name, Topic: w.Topic})
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return *chs, nil
}

// Message loads one message. It satisfies enrich.MessageFetcher.
func (c *Client) Message(ctx context.Context, channelID, messageID string) (*types.Message, error) {
	key := "message:" + channelID + ":" + messageID
	return cached(ctx, c, key, c.ttl.Message, func(ctx context.Context) (*types.Message, error) {
		var w wireMessage
		path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
		if err := c.get(ctx, path, &w); err != nil {
			return nil, err
		}
		m := w.toMessage()
		return &m, nil
	})
}

// Messages returns up to limit of the channel's newest messages, oldest
// first. History is not cached here; the channel window holds it.
func (c *Client) Messages(ctx context.Context, channelID string, limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = pageSize
	}
	var out []types.Message
	before := ""
	for len(out) < limit {
		n := min(limit-len(out), pageSize)
		q := url.Values{"limit": {strconv.Itoa(n)}}
		if before != "" {
			q.Set("before", before)
		}
		var page []wireMessage
		if err := c.get(ctx, "/channels/"+url.PathEscape(channelID)+"/messages?"+q.Encode(), &page); err != nil {
			return nil, err
		}
		for i := range page {
			out = append(out, page[i].toMessage())
		}
		if len(page) < n {
			break
		}
		before = page[len(page)-1].ID
	}
	// The API pages newest first.
	slices.Reverse(out)
	return out, nil
}
