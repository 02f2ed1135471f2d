package transcript

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"chatview-server/internal/enrich"
	"chatview-server/internal/metrics"
	"chatview-server/internal/types"
)

// ErrChannelAccess is returned when the channel cannot be loaded or the
// viewer may not read it. The platform's cause stays in the chain.
var ErrChannelAccess = errors.New("transcript: channel not accessible")

// ErrNoViewer is wrapped in ErrChannelAccess when a guild channel is
// requested without a viewer identity.
var ErrNoViewer = errors.New("transcript: viewer not identified")

// Source is the chat platform as the render service sees it.
type Source interface {
	enrich.MessageFetcher
	Channel(ctx context.Context, channelID string) (*types.Channel, error)
	Member(ctx context.Context, guildID, userID string) (*types.Member, error)
	Messages(ctx context.Context, channelID string, limit int) ([]types.Message, error)
	GuildRoles(ctx context.Context, guildID string) ([]types.Role, error)
	GuildChannels(ctx context.Context, guildID string) ([]types.Channel, error)
}

// Windows is the shared per-channel message window. Snapshot returns a view
// that no writer mutates afterwards.
type Windows interface {
	Snapshot(channelID string) ([]types.Message, bool)
	Seed(channelID string, msgs []types.Message)
}

// Archive returns the most recent stored messages of a channel, oldest first.
type Archive interface {
	Recent(ctx context.Context, channelID string, limit int) ([]types.Message, error)
}

// ServiceConfig tunes RenderChannel.
type ServiceConfig struct {
	WindowSize       int
	ReferenceWorkers int
	ForwardPreview   int
	// DefaultTimezone applies to viewers who have not chosen one.
	DefaultTimezone string
}

// Rendered is a composed channel transcript.
type Rendered struct {
	Channel  types.Channel
	HTML     string
	ETag     string
	Messages int
}

// Service renders channels end to end: access check, window snapshot,
// reference prefetch, then Compose.
type Service struct {
	src     Source
	windows Windows
	archive Archive
	cfg     ServiceConfig
	log     *slog.Logger
}

// NewService returns a Service. archive may be nil.
func NewService(src Source, windows Windows, archive Archive, cfg ServiceConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 100
	}
	return &Service{src: src, windows: windows, archive: archive, cfg: cfg, log: log}
}

// RenderChannel renders channelID for viewer. Access failures wrap
// ErrChannelAccess; per-message problems never fail the call. ctx is checked
// between stages only.
func (s *Service) RenderChannel(ctx context.Context, channelID string, viewer types.Viewer) (*Rendered, error) {
	start := time.Now()
	log := s.log.With("channel_id", channelID)

	ch, err := s.src.Channel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelAccess, err)
	}
	if ch.GuildID != "" {
		if viewer.ID == "" {
			return nil, fmt.Errorf("%w: %w", ErrChannelAccess, ErrNoViewer)
		}
		member, err := s.src.Member(ctx, ch.GuildID, viewer.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrChannelAccess, err)
		}
		if len(viewer.RoleIDs) == 0 {
			viewer.RoleIDs = member.RoleIDs
		}
	}

	msgs, err := s.window(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelAccess, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	env := enrich.NewEnv(viewer)
	env.Log = log
	env.Dir = s.directory(ctx, ch, msgs, log)
	if s.cfg.ForwardPreview > 0 {
		env.ForwardPreview = s.cfg.ForwardPreview
	}
	if viewer.Preferences.Timezone == "" && s.cfg.DefaultTimezone != "" {
		if loc, err := time.LoadLocation(s.cfg.DefaultTimezone); err == nil {
			env.Location = loc
		}
	}

	refs := enrich.NewResolver(s.src, log).Prefetch(ctx, msgs, s.cfg.ReferenceWorkers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := NewComposer(env, refs).Compose(msgs)
	if err != nil {
		log.Error("compose failed", "error", err)
		return nil, err
	}

	metrics.RenderDuration.Observe(time.Since(start).Seconds())
	log.Debug("channel rendered", "messages", len(msgs), "duration", time.Since(start))
	return &Rendered{Channel: *ch, HTML: out, ETag: ETag(out), Messages: len(msgs)}, nil
}

// window returns the channel's message snapshot, warming the shared window
// from the archive or, failing that, the platform.
func (s *Service) window(ctx context.Context, channelID string) ([]types.Message, error) {
	if msgs, ok := s.windows.Snapshot(channelID); ok {
		metrics.IncrementCacheHit()
		return msgs, nil
	}
	metrics.IncrementCacheMiss()

	var msgs []types.Message
	if s.archive != nil {
		stored, err := s.archive.Recent(ctx, channelID, s.cfg.WindowSize)
		if err != nil {
			s.log.Warn("archive read failed", "channel_id", channelID, "error", err)
		}
		msgs = stored
	}
	if len(msgs) == 0 {
		fetched, err := s.src.Messages(ctx, channelID, s.cfg.WindowSize)
		if err != nil {
			return nil, fmt.Errorf("load messages: %w", err)
		}
		msgs = fetched
	}

	s.windows.Seed(channelID, msgs)
	if snap, ok := s.windows.Snapshot(channelID); ok {
		return snap, nil
	}
	return msgs, nil
}

// directory collects what mentions in msgs may refer to. Guild lookups are
// best effort; a missing role or channel renders with its fallback.
func (s *Service) directory(ctx context.Context, ch *types.Channel, msgs []types.Message, log *slog.Logger) *enrich.StaticDirectory {
	dir := enrich.NewStaticDirectory()
	dir.Channels[ch.ID] = *ch
	for i := range msgs {
		dir.AddUsers(msgs[i].Author)
		dir.AddUsers(msgs[i].Mentions...)
	}
	if ch.GuildID == "" {
		return dir
	}

	roles, err := s.src.GuildRoles(ctx, ch.GuildID)
	if err != nil {
		log.Debug("guild roles unavailable", "guild_id", ch.GuildID, "error", err)
	}
	for _, r := range roles {
		dir.Roles[r.ID] = r
	}
	channels, err := s.src.GuildChannels(ctx, ch.GuildID)
	if err != nil {
		log.Debug("guild channels unavailable", "guild_id", ch.GuildID, "error", err)
	}
	for _, c := range channels {
		dir.Channels[c.ID] = c
	}
	return dir
}

// ETag returns a strong validator for a rendered transcript.
func ETag(fragment string) string {
	sum := blake2b.Sum256([]byte(fragment))
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
