// Package feed consumes the platform's websocket gateway and applies message
// create, update and delete events to the channel windows and the archive.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chatview-server/internal/metrics"
	"chatview-server/internal/platform"
	"chatview-server/internal/types"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Intents requested by default: guilds, guild messages, direct messages and
// message content.
const DefaultIntents = 1<<0 | 1<<9 | 1<<12 | 1<<15

var (
	errReconnect      = errors.New("feed: gateway requested reconnect")
	errInvalidSession = errors.New("feed: session invalidated")
	errZombie         = errors.New("feed: heartbeat not acknowledged")
)

type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// Windows is where events land. Writes for a channel are applied one at a
// time by the feed's read loop.
type Windows interface {
	Append(channelID string, m types.Message) bool
	Update(channelID string, m types.Message) bool
	Delete(channelID, messageID string) bool
}

// Archive persists applied events. It may be nil.
type Archive interface {
	Save(ctx context.Context, m types.Message) error
	Delete(ctx context.Context, channelID, messageID string) error
}

// Config configures a Feed.
type Config struct {
	URL     string
	Token   string
	Intents int
	// MaxBackoff caps the delay between reconnect attempts.
	MaxBackoff time.Duration
}

// Feed is a gateway consumer. Run it in one goroutine; events are applied in
// the order the gateway delivers them.
type Feed struct {
	cfg     Config
	windows Windows
	archive Archive
	log     *slog.Logger
	dialer  *websocket.Dialer

	seq atomic.Int64
}

// New returns a Feed. archive may be nil.
func New(cfg Config, windows Windows, archive Archive, log *slog.Logger) *Feed {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Intents == 0 {
		cfg.Intents = DefaultIntents
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	return &Feed{
		cfg:     cfg,
		windows: windows,
		archive: archive,
		log:     log.With("component", "feed"),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run connects and keeps reconnecting with capped exponential backoff until
// ctx is done.
func (f *Feed) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		started := time.Now()
		err := f.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(started) > 30*time.Second {
			backoff = time.Second
		}
		f.log.Warn("gateway session ended", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, f.cfg.MaxBackoff)
	}
}

// conn serializes writes to one websocket connection.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) send(p payload) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(p)
}

func (f *Feed) session(ctx context.Context) error {
	ws, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	c := &conn{ws: ws}
	defer ws.Close()

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessCtx.Done()
		ws.Close()
	}()

	var hello payload
	if err := ws.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var h struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.D, &h); err != nil || h.HeartbeatInterval <= 0 {
		return fmt.Errorf("bad hello payload: %s", hello.D)
	}

	var acked atomic.Bool
	acked.Store(true)
	go f.heartbeat(sessCtx, cancel, c, time.Duration(h.HeartbeatInterval)*time.Millisecond, &acked)

	if err := c.send(f.identify()); err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	f.log.Info("gateway connected", "heartbeat_ms", h.HeartbeatInterval)

	for {
		var p payload
		if err := ws.ReadJSON(&p); err != nil {
			if sessCtx.Err() != nil && ctx.Err() == nil {
				return errZombie
			}
			return fmt.Errorf("read gateway: %w", err)
		}
		if p.S != nil {
			f.seq.Store(*p.S)
		}
		switch p.Op {
		case opDispatch:
			f.apply(ctx, p.T, p.D)
		case opHeartbeat:
			if err := c.send(f.heartbeatPayload()); err != nil {
				return err
			}
		case opHeartbeatAck:
			acked.Store(true)
		case opReconnect:
			return errReconnect
		case opInvalidSession:
			return errInvalidSession
		}
	}
}

// heartbeat beats every interval. A beat that finds the previous one still
// unacknowledged ends the session.
func (f *Feed) heartbeat(ctx context.Context, cancel context.CancelFunc, c *conn, interval time.Duration, acked *atomic.Bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !acked.Swap(false) {
				f.log.Warn("heartbeat not acknowledged, reconnecting")
				cancel()
				return
			}
			if err := c.send(f.heartbeatPayload()); err != nil {
				f.log.Debug("heartbeat send failed", "error", err)
				cancel()
				return
			}
		}
	}
}

func (f *Feed) heartbeatPayload() payload {
	d := json.RawMessage("null")
	if s := f.seq.Load(); s > 0 {
		d, _ = json.Marshal(s)
	}
	return payload{Op: opHeartbeat, D: d}
}

func (f *Feed) identify() payload {
	d, _ := json.Marshal(map[string]any{
		"token":   f.cfg.Token,
		"intents": f.cfg.Intents,
		"properties": map[string]string{
			"os":      "linux",
			"browser": "chatview-server",
			"device":  "chatview-server",
		},
	})
	return payload{Op: opIdentify, D: d}
}

// apply handles one dispatch event. Malformed events are logged and dropped.
func (f *Feed) apply(ctx context.Context, event string, data json.RawMessage) {
	switch event {
	case "MESSAGE_CREATE":
		m, err := platform.DecodeMessage(data)
		if err != nil {
			f.log.Warn("undecodable message event", "event", event, "error", err)
			return
		}
		f.windows.Append(m.ChannelID, m)
		f.persist(ctx, m)

	case "MESSAGE_UPDATE":
		m, err := platform.DecodeMessage(data)
		if err != nil {
			f.log.Warn("undecodable message event", "event", event, "error", err)
			return
		}
		// Partial updates (embed unfurls) carry no author; the next full
		// fetch picks them up.
		if m.Author.ID == "" {
			f.log.Debug("partial message update ignored", "message_id", m.ID)
			return
		}
		f.windows.Update(m.ChannelID, m)
		f.persist(ctx, m)

	case "MESSAGE_DELETE":
		var d struct {
			ID        string `json:"id"`
			ChannelID string `json:"channel_id"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			f.log.Warn("undecodable delete event", "error", err)
			return
		}
		f.remove(ctx, d.ChannelID, d.ID)

	case "MESSAGE_DELETE_BULK":
		var d struct {
			IDs       []string `json:"ids"`
			ChannelID string   `json:"channel_id"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			f.log.Warn("undecodable bulk delete event", "error", err)
			return
		}
		for _, id := range d.IDs {
			f.remove(ctx, d.ChannelID, id)
		}

	case "READY":
		f.log.Info("gateway ready")
		return

	default:
		return
	}
	metrics.IncrementFeedEvent(event)
}

func (f *Feed) persist(ctx context.Context, m types.Message) {
	if f.archive == nil {
		return
	}
	if err := f.archive.Save(ctx, m); err != nil {
		f.log.Warn("archive write failed", "message_id", m.ID, "error", err)
	}
}

func (f *Feed) remove(ctx context.Context, channelID, messageID string) {
	f.windows.Delete(channelID, messageID)
	if f.archive == nil {
		return
	}
	if err := f.archive.Delete(ctx, channelID, messageID); err != nil {
		f.log.Warn("archive delete failed", "message_id", messageID, "error", err)
	}
}
