package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inlinecms/internal/models"
)

func TestEditableContentFallback(t *testing.T) {
	s, _ := newTestStore(t)
	fallback := models.Payload{Text: "Default"}
	for _, lang := range []string{models.LangArabic, models.LangEnglish} {
		got := EditableContent(s, "services", "hero_title", models.ElementTypeText, fallback, lang)
		assert.Equal(t, fallback, got)
	}
	// Without an editing store the binding still renders the fallback.
	assert.Equal(t, fallback, EditableContent(nil, "services", "x", models.ElementTypeText, fallback, "ar"))
}

func TestBindingSetForwardsToStore(t *testing.T) {
	s, _ := newTestStore(t)
	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })

	b := NewBinding(s, heroAr, models.ElementTypeText, models.Payload{Text: "Default"})
	assert.False(t, b.Overridden())
	assert.Equal(t, "Default", b.Value().Text)

	_, changed, err := b.Set(models.Payload{Text: "جديد"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, b.Overridden())
	assert.True(t, b.Dirty())
	assert.Equal(t, "جديد", b.Value().Text)
	require.Len(t, changes, 1)
	assert.Equal(t, heroAr, changes[0].Key)
	assert.Equal(t, models.ElementTypeText, b.Type())
	assert.Equal(t, heroAr, b.Key())
}
