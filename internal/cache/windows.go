package cache

import (
	"slices"
	"sync"
	"sync/atomic"

	"chatview-server/internal/metrics"
	"chatview-server/internal/types"
)

// Windows holds the newest messages of each channel, oldest first, bounded
// to size per channel.
//
// Every write builds a new slice and publishes it atomically, so a snapshot
// handed to a reader is never modified afterwards and readers take no lock.
// Writes to one channel are serialized by that channel's mutex.
type Windows struct {
	size int

	mu       sync.RWMutex
	channels map[string]*window
}

type window struct {
	mu   sync.Mutex
	msgs atomic.Pointer[[]types.Message]
}

// NewWindows returns an empty set of windows of at most size messages each.
func NewWindows(size int) *Windows {
	if size <= 0 {
		size = 100
	}
	return &Windows{size: size, channels: make(map[string]*window)}
}

func (w *Windows) get(channelID string) *window {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.channels[channelID]
}

// Snapshot returns the channel's messages. The slice must not be modified.
func (w *Windows) Snapshot(channelID string) ([]types.Message, bool) {
	win := w.get(channelID)
	if win == nil {
		return nil, false
	}
	p := win.msgs.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// Seed installs msgs as the channel's window unless one already exists, in
// which case the existing window wins since the feed may have extended it.
// msgs is copied, sorted by creation time and trimmed.
func (w *Windows) Seed(channelID string, msgs []types.Message) {
	w.mu.Lock()
	win, ok := w.channels[channelID]
	if !ok {
		win = &window{}
		w.channels[channelID] = win
		metrics.ChannelWindows.Set(float64(len(w.channels)))
	}
	w.mu.Unlock()

	win.mu.Lock()
	defer win.mu.Unlock()
	if win.msgs.Load() != nil {
		return
	}
	next := slices.Clone(msgs)
	sortByTime(next)
	win.publish(w.trim(next))
}

// Append adds m to an existing window, keeping time order. A message already
// present is replaced. It reports whether the channel had a window.
func (w *Windows) Append(channelID string, m types.Message) bool {
	return w.modify(channelID, func(cur []types.Message) []types.Message {
		if i := indexOf(cur, m.ID); i >= 0 {
			next := slices.Clone(cur)
			next[i] = m
			return next
		}
		next := make([]types.Message, 0, len(cur)+1)
		next = append(next, cur...)
		// Gateway delivery is nearly always in order; search from the end.
		pos := len(next)
		for pos > 0 && next[pos-1].CreatedAt.After(m.CreatedAt) {
			pos--
		}
		return w.trim(slices.Insert(next, pos, m))
	})
}

// Update replaces the stored copy of m. It reports whether the message was
// in the window.
func (w *Windows) Update(channelID string, m types.Message) bool {
	found := false
	w.modify(channelID, func(cur []types.Message) []types.Message {
		i := indexOf(cur, m.ID)
		if i < 0 {
			return nil
		}
		found = true
		next := slices.Clone(cur)
		next[i] = m
		return next
	})
	return found
}

// Delete removes a message. It reports whether it was in the window.
func (w *Windows) Delete(channelID, messageID string) bool {
	found := false
	w.modify(channelID, func(cur []types.Message) []types.Message {
		i := indexOf(cur, messageID)
		if i < 0 {
			return nil
		}
		found = true
		next := make([]types.Message, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		return append(next, cur[i+1:]...)
	})
	return found
}

// Drop forgets a channel's window.
func (w *Windows) Drop(channelID string) {
	w.mu.Lock()
	delete(w.channels, channelID)
	metrics.ChannelWindows.Set(float64(len(w.channels)))
	w.mu.Unlock()
}

// Len reports how many channels have a window.
func (w *Windows) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.channels)
}

// modify applies fn to the current window under the channel's write lock. A
// nil result leaves the window unchanged.
func (w *Windows) modify(channelID string, fn func([]types.Message) []types.Message) bool {
	win := w.get(channelID)
	if win == nil {
		return false
	}
	win.mu.Lock()
	defer win.mu.Unlock()
	p := win.msgs.Load()
	if p == nil {
		return false
	}
	if next := fn(*p); next != nil {
		win.publish(next)
	}
	return true
}

func (win *window) publish(msgs []types.Message) {
	win.msgs.Store(&msgs)
}

// trim drops the oldest messages beyond the size bound.
func (w *Windows) trim(msgs []types.Message) []types.Message {
	if len(msgs) <= w.size {
		return msgs
	}
	return msgs[len(msgs)-w.size:]
}

func sortByTime(msgs []types.Message) {
	slices.SortStableFunc(msgs, func(a, b types.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func indexOf(msgs []types.Message, id string) int {
	return slices.IndexFunc(msgs, func(m types.Message) bool { return m.ID == id })
}
