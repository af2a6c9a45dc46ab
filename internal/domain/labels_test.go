package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeLabelForSource(t *testing.T) {
	assert.Equal(t, "AG",
		TypeLabelForSource("https://discord.com/channels/958046672473194556/1241009019494072370/123"))
	assert.Equal(t, "Fresh",
		TypeLabelForSource("https://discord.com/channels/1372291116853887077/1382098297891717252/456"))
	assert.Equal(t, "", TypeLabelForSource("https://example.com/whatever"))
	assert.Equal(t, "", TypeLabelForSource(""))
}

func TestSanitizeTimestamp(t *testing.T) {
	assert.Equal(t, int64(1700000000), SanitizeTimestamp(1700000000))
	assert.Equal(t, int64(1700000000), SanitizeTimestamp(1700000000123))
	assert.Equal(t, int64(0), SanitizeTimestamp(0))
}
