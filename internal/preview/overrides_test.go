package preview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inlinecms/internal/models"
)

func TestMemoryOverrides(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryOverrides()
	a, b := ChannelKey("services"), ChannelKey("midwifery")

	require.NoError(t, m.Put(ctx, a, Override{Element: "hero_title", Lang: "ar", Type: models.ElementTypeText, Payload: models.Payload{Text: "1"}}))
	require.NoError(t, m.Put(ctx, a, Override{Element: "hero_title", Lang: "ar", Type: models.ElementTypeText, Payload: models.Payload{Text: "2"}}))
	require.NoError(t, m.Put(ctx, b, Override{Element: "hero_title", Lang: "ar", Type: models.ElementTypeText, Payload: models.Payload{Text: "other"}}))

	snap, err := m.Snapshot(ctx, a)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "2", snap[FieldKey("hero_title", "ar")].Payload.Text)

	// Mutating a snapshot does not touch the channel.
	delete(snap, FieldKey("hero_title", "ar"))
	snap, _ = m.Snapshot(ctx, a)
	assert.Len(t, snap, 1)

	require.NoError(t, m.Clear(ctx, a))
	snap, _ = m.Snapshot(ctx, a)
	assert.Empty(t, snap)
	snap, _ = m.Snapshot(ctx, b)
	assert.Len(t, snap, 1, "other channels untouched")

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, m.Put(cctx, a, Override{}))
}
