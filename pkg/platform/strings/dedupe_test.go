package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupe(t *testing.T) {
	t.Run("preserves first-occurrence order", func(t *testing.T) {
		got := Dedupe([]string{"primary@x.com", "second@x.com", "primary@x.com", "third@x.com"})
		assert.Equal(t, []string{"primary@x.com", "second@x.com", "third@x.com"}, got)
	})

	t.Run("drops empties", func(t *testing.T) {
		got := Dedupe([]string{"", "123456", "", "123456"})
		assert.Equal(t, []string{"123456"}, got)
	})

	t.Run("empty input returns empty non-nil slice", func(t *testing.T) {
		got := Dedupe(nil)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestDedupeAndTrim(t *testing.T) {
	got := DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
	assert.Equal(t, []string{"foo", "bar"}, got)
}
