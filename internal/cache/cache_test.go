package cache

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatview-server/internal/types"
)

// testBackend exercises the contract every Backend must honour.
func testBackend(t *testing.T, b Backend) {
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, b.Delete(ctx, "k"))
	_, ok, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	type payload struct{ Name string }
	require.NoError(t, SetJSON(ctx, b, "json", payload{Name: "general"}, time.Minute))
	p, ok, err := GetJSON[payload](ctx, b, "json")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "general", p.Name)
}

func TestMemoryCache(t *testing.T) {
	mc := NewMemoryCache(100, time.Hour)
	defer mc.Close()
	testBackend(t, mc)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("CHATVIEW_TEST_REDIS")
	if url == "" {
		t.Skip("CHATVIEW_TEST_REDIS not set")
	}
	rc, err := NewRedisCache(url, fmt.Sprintf("chatview-test-%d:", time.Now().UnixNano()))
	require.NoError(t, err)
	defer rc.Close()
	testBackend(t, rc)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache(0, time.Hour)
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "short", []byte("x"), -time.Second))
	_, ok, _ := mc.Get(ctx, "short")
	assert.False(t, ok)

	mc.cleanup()
	assert.Zero(t, mc.Len())
}

func TestMemoryCacheEvictsSoonestExpiring(t *testing.T) {
	mc := NewMemoryCache(2, time.Hour)
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", []byte("a"), time.Minute))
	require.NoError(t, mc.Set(ctx, "b", []byte("b"), time.Hour))
	require.NoError(t, mc.Set(ctx, "c", []byte("c"), time.Hour))

	assert.Equal(t, 2, mc.Len())
	_, ok, _ := mc.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = mc.Get(ctx, "c")
	assert.True(t, ok)
}

func TestNewBackend(t *testing.T) {
	b, err := New(Options{Backend: "memory", MaxEntries: 10})
	require.NoError(t, err)
	b.Close()

	_, err = New(Options{Backend: "etcd"})
	assert.Error(t, err)
}

var t0 = time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)

func wmsg(id string, offset time.Duration) types.Message {
	return types.Message{ID: id, ChannelID: "1", CreatedAt: t0.Add(offset), Content: "m" + id}
}

func ids(msgs []types.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestWindowsSeedSortsAndTrims(t *testing.T) {
	w := NewWindows(3)
	_, ok := w.Snapshot("1")
	assert.False(t, ok)

	w.Seed("1", []types.Message{wmsg("4", 4), wmsg("1", 1), wmsg("3", 3), wmsg("2", 2)})
	snap, ok := w.Snapshot("1")
	require.True(t, ok)
	assert.Equal(t, []string{"2", "3", "4"}, ids(snap))

	// A second seed does not replace a live window.
	w.Seed("1", []types.Message{wmsg("9", 9)})
	snap, _ = w.Snapshot("1")
	assert.Equal(t, []string{"2", "3", "4"}, ids(snap))
}

func TestWindowsAppendKeepsOrderAndBound(t *testing.T) {
	w := NewWindows(3)
	assert.False(t, w.Append("1", wmsg("1", 1)), "no window yet")

	w.Seed("1", []types.Message{wmsg("1", time.Second), wmsg("3", 3*time.Second)})
	require.True(t, w.Append("1", wmsg("2", 2*time.Second)))
	snap, _ := w.Snapshot("1")
	assert.Equal(t, []string{"1", "2", "3"}, ids(snap))

	require.True(t, w.Append("1", wmsg("4", 4*time.Second)))
	snap, _ = w.Snapshot("1")
	assert.Equal(t, []string{"2", "3", "4"}, ids(snap))

	dup := wmsg("4", 4*time.Second)
	dup.Content = "again"
	require.True(t, w.Append("1", dup))
	snap, _ = w.Snapshot("1")
	assert.Len(t, snap, 3)
	assert.Equal(t, "again", snap[2].Content)
}

func TestWindowsSnapshotIsImmutable(t *testing.T) {
	w := NewWindows(10)
	w.Seed("1", []types.Message{wmsg("1", 1), wmsg("2", 2)})
	before, _ := w.Snapshot("1")

	edited := wmsg("1", 1)
	edited.Content = "edited"
	require.True(t, w.Update("1", edited))
	require.True(t, w.Delete("1", "2"))
	w.Append("1", wmsg("3", 3))

	assert.Equal(t, "m1", before[0].Content)
	assert.Equal(t, []string{"1", "2"}, ids(before))

	after, _ := w.Snapshot("1")
	assert.Equal(t, []string{"1", "3"}, ids(after))
	assert.Equal(t, "edited", after[0].Content)
}

func TestWindowsUpdateDeleteMissing(t *testing.T) {
	w := NewWindows(10)
	assert.False(t, w.Update("1", wmsg("1", 1)))
	assert.False(t, w.Delete("1", "1"))

	w.Seed("1", nil)
	assert.False(t, w.Update("1", wmsg("1", 1)))
	assert.False(t, w.Delete("1", "1"))

	w.Drop("1")
	assert.Zero(t, w.Len())
}

func TestWindowsConcurrentReadersAndWriter(t *testing.T) {
	w := NewWindows(50)
	w.Seed("1", nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 200 {
			w.Append("1", wmsg(fmt.Sprint(i), time.Duration(i)*time.Second))
		}
	}()
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				snap, _ := w.Snapshot("1")
				for i := 1; i < len(snap); i++ {
					if snap[i].CreatedAt.Before(snap[i-1].CreatedAt) {
						t.Errorf("snapshot out of order at %d", i)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	snap, _ := w.Snapshot("1")
	assert.Len(t, snap, 50)
	assert.Equal(t, "199", snap[49].ID)
}
