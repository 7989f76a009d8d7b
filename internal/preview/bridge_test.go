package preview

import (
	"context"
	"errors"
	"html/template"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inlinecms/internal/clock"
	"inlinecms/internal/editor"
	"inlinecms/internal/models"
	"inlinecms/internal/store"
)

type fakeSignaler struct {
	mu        sync.Mutex
	surfaces  int
	delivered []Message
}

func (f *fakeSignaler) Broadcast(channel string, msg Message) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.surfaces == 0 {
		return 0
	}
	f.delivered = append(f.delivered, msg)
	return f.surfaces
}

func (f *fakeSignaler) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.delivered...)
}

type failingOverrides struct{ *MemoryOverrides }

func (failingOverrides) Put(context.Context, string, Override) error {
	return errors.New("valkey down")
}

// gatedOverrides blocks the first Put until release is closed.
type gatedOverrides struct {
	*MemoryOverrides
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedOverrides) Put(ctx context.Context, channel string, o Override) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.MemoryOverrides.Put(ctx, channel, o)
}

func textRenderer(typ models.ElementType, p models.Payload) (template.HTML, error) {
	return template.HTML("<span>" + template.HTMLEscapeString(p.Text) + "</span>"), nil
}

type bridgeHarness struct {
	editor    *editor.Store
	overrides *MemoryOverrides
	signal    *fakeSignaler
	clock     *clock.Fake
	bridge    *Bridge
}

func newBridgeHarness(t *testing.T) *bridgeHarness {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	repo := store.NewMemory(store.WithPages(
		&models.ContentPage{PageKey: "services"},
		&models.ContentPage{PageKey: "midwifery"},
	))
	es := editor.NewStore(repo, clk)
	h := &bridgeHarness{
		editor:    es,
		overrides: NewMemoryOverrides(),
		signal:    &fakeSignaler{surfaces: 1},
		clock:     clk,
	}
	h.bridge = NewBridge("services", es, h.overrides, h.signal, textRenderer, clk, Config{})
	return h
}

func (h *bridgeHarness) edit(t *testing.T, page, text string) {
	t.Helper()
	key := editor.Key{Page: page, Element: "hero_title", Lang: models.LangArabic}
	_, _, err := h.editor.SetLocal(key, models.ElementTypeText, models.Payload{Text: text})
	require.NoError(t, err)
}

func (h *bridgeHarness) snapshot(t *testing.T) map[string]Override {
	t.Helper()
	snap, err := h.overrides.Snapshot(context.Background(), h.bridge.Channel())
	require.NoError(t, err)
	return snap
}

func TestBridgeCoalescesRefreshes(t *testing.T) {
	h := newBridgeHarness(t)

	h.edit(t, "services", "a")
	h.clock.Advance(40 * time.Millisecond)
	h.edit(t, "services", "ab")
	h.edit(t, "services", "abc")
	assert.Empty(t, h.signal.Messages(), "nothing sent inside the window")

	h.clock.Advance(60 * time.Millisecond)
	msgs := h.signal.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, MessageRefresh, msgs[0].Type)
	assert.Equal(t, uint64(1), msgs[0].Token)
	assert.Equal(t, "services", msgs[0].Page)

	snap := h.snapshot(t)
	require.Len(t, snap, 1)
	o := snap[FieldKey("hero_title", models.LangArabic)]
	assert.Equal(t, "abc", o.Payload.Text)
	assert.Equal(t, uint64(1), o.Token)

	// Preview is immediate while the edit is still unsaved.
	assert.True(t, h.editor.HasUnsavedChanges())
}

func TestBridgeTokensIncrease(t *testing.T) {
	h := newBridgeHarness(t)
	for _, text := range []string{"a", "b", "c"} {
		h.edit(t, "services", text)
		h.clock.Advance(100 * time.Millisecond)
	}
	msgs := h.signal.Messages()
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, uint64(i+1), m.Token)
	}
}

func TestBridgeIgnoresOtherPages(t *testing.T) {
	h := newBridgeHarness(t)
	h.edit(t, "midwifery", "x")
	h.clock.Advance(time.Second)
	assert.Empty(t, h.signal.Messages())
	assert.Empty(t, h.snapshot(t))
}

func TestBridgeAckTimeoutRecordsSyncError(t *testing.T) {
	h := newBridgeHarness(t)
	h.edit(t, "services", "x")
	h.clock.Advance(100 * time.Millisecond)
	require.NoError(t, h.bridge.Err())

	h.clock.Advance(2 * time.Second)
	var syncErr *SyncError
	require.ErrorAs(t, h.bridge.Err(), &syncErr)
	assert.Equal(t, uint64(1), syncErr.Token)
	assert.False(t, h.bridge.Status().Fresh)
	// Editing carries on.
	assert.True(t, h.editor.HasUnsavedChanges())

	// A late ack for the latest token restores freshness.
	require.NoError(t, h.bridge.HandleControl(Message{Type: MessageRefreshAck, Token: 1}))
	assert.NoError(t, h.bridge.Err())
	assert.True(t, h.bridge.Status().Fresh)
}

func TestBridgeAckInTimeKeepsFresh(t *testing.T) {
	h := newBridgeHarness(t)
	h.edit(t, "services", "x")
	h.clock.Advance(100 * time.Millisecond)
	require.NoError(t, h.bridge.HandleControl(Message{Type: MessageRefreshAck, Token: 1}))
	h.clock.Advance(time.Minute)
	assert.NoError(t, h.bridge.Err())
	st := h.bridge.Status()
	assert.Equal(t, uint64(1), st.Token)
	assert.Equal(t, uint64(1), st.Acked)
}

func TestBridgeIgnoresStaleAndDuplicateAcks(t *testing.T) {
	h := newBridgeHarness(t)
	h.edit(t, "services", "a")
	h.clock.Advance(100 * time.Millisecond)
	h.edit(t, "services", "b")
	h.clock.Advance(100 * time.Millisecond)

	// Ack for token 1 arrives after token 2 was sent.
	require.NoError(t, h.bridge.HandleControl(Message{Type: MessageRefreshAck, Token: 1}))
	assert.Equal(t, uint64(0), h.bridge.Status().Acked)

	require.NoError(t, h.bridge.HandleControl(Message{Type: MessageRefreshAck, Token: 2}))
	require.NoError(t, h.bridge.HandleControl(Message{Type: MessageRefreshAck, Token: 2}))
	// Tokens never issued are ignored too.
	require.NoError(t, h.bridge.HandleControl(Message{Type: MessageRefreshAck, Token: 9}))
	assert.Equal(t, uint64(2), h.bridge.Status().Acked)

	h.clock.Advance(time.Minute)
	assert.NoError(t, h.bridge.Err())
}

func TestBridgeReadyTriggersRefresh(t *testing.T) {
	h := newBridgeHarness(t)
	require.NoError(t, h.bridge.HandleControl(Message{Type: MessageReady}))
	msgs := h.signal.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, uint64(1), msgs[0].Token)
}

func TestBridgeRejectsContentFromSurface(t *testing.T) {
	h := newBridgeHarness(t)
	err := h.bridge.HandleControl(Message{Type: MessageRefresh, Token: 1})
	assert.ErrorIs(t, err, ErrUnsupportedMessage)
	assert.False(t, h.editor.HasUnsavedChanges())
	assert.Empty(t, h.editor.Elements("services"))
}

func TestBridgeWithoutSurfacesExpectsNoAck(t *testing.T) {
	h := newBridgeHarness(t)
	h.signal.surfaces = 0
	h.edit(t, "services", "x")
	h.clock.Advance(5 * time.Second)
	assert.NoError(t, h.bridge.Err())
	assert.Len(t, h.snapshot(t), 1, "overrides are written for surfaces that connect later")
}

func TestBridgeOverrideWriteFailure(t *testing.T) {
	h := newBridgeHarness(t)
	require.NoError(t, h.bridge.Close(context.Background(), false))
	h.bridge = NewBridge("services", h.editor, failingOverrides{NewMemoryOverrides()}, h.signal, textRenderer, h.clock, Config{})

	h.edit(t, "services", "x")
	h.clock.Advance(100 * time.Millisecond)
	assert.Error(t, h.bridge.Err())
	assert.True(t, h.editor.HasUnsavedChanges())
}

func TestBridgeOverlappingFlushesLandInTokenOrder(t *testing.T) {
	h := newBridgeHarness(t)
	require.NoError(t, h.bridge.Close(context.Background(), false))
	gated := &gatedOverrides{
		MemoryOverrides: h.overrides,
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	h.bridge = NewBridge("services", h.editor, gated, h.signal, textRenderer, h.clock, Config{})

	h.edit(t, "services", "v1")
	timerDone := make(chan struct{})
	go func() {
		h.clock.Advance(100 * time.Millisecond)
		close(timerDone)
	}()
	<-gated.entered

	// A newer edit and a surface reconnect arrive while token 1 is being written.
	h.edit(t, "services", "v2")
	readyDone := make(chan struct{})
	go func() {
		assert.NoError(t, h.bridge.HandleControl(Message{Type: MessageReady}))
		close(readyDone)
	}()
	assert.Never(t, func() bool {
		select {
		case <-readyDone:
			return true
		default:
			return false
		}
	}, 20*time.Millisecond, time.Millisecond, "second flush waits for the first")

	close(gated.release)
	<-timerDone
	<-readyDone

	o := h.snapshot(t)[FieldKey("hero_title", models.LangArabic)]
	assert.Equal(t, "v2", o.Payload.Text)
	assert.Equal(t, uint64(2), o.Token)

	msgs := h.signal.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(1), msgs[0].Token)
	assert.Equal(t, uint64(2), msgs[1].Token)
}

func TestBridgeFragment(t *testing.T) {
	h := newBridgeHarness(t)
	key := editor.Key{Page: "services", Element: "hero_title", Lang: models.LangArabic}

	got, err := h.bridge.Fragment(key, models.ElementTypeText, models.Payload{Text: "Default"})
	require.NoError(t, err)
	assert.Equal(t, template.HTML("<span>Default</span>"), got)

	h.edit(t, "services", "<b>x</b>")
	got, err = h.bridge.Fragment(key, models.ElementTypeText, models.Payload{Text: "Default"})
	require.NoError(t, err)
	assert.Equal(t, template.HTML("<span>&lt;b&gt;x&lt;/b&gt;</span>"), got)
}

func TestBridgeClose(t *testing.T) {
	h := newBridgeHarness(t)
	h.edit(t, "services", "x")
	h.clock.Advance(100 * time.Millisecond)
	require.Len(t, h.snapshot(t), 1)

	h.edit(t, "services", "pending")
	require.NoError(t, h.bridge.Close(context.Background(), true))
	assert.Empty(t, h.snapshot(t))

	h.clock.Advance(time.Minute)
	h.edit(t, "services", "after")
	h.clock.Advance(time.Minute)
	assert.Len(t, h.signal.Messages(), 1)
	assert.Empty(t, h.snapshot(t))
	assert.NoError(t, h.bridge.Err(), "no ack timeout after close")
	assert.NoError(t, h.bridge.Close(context.Background(), true))
}

func TestConfigDelayBounded(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, Config{Delay: 500 * time.Millisecond}.withDefaults().Delay)
	assert.Equal(t, 50*time.Millisecond, Config{Delay: 50 * time.Millisecond}.withDefaults().Delay)
}
