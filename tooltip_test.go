package main

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateTooltipShortStringsPassThrough(t *testing.T) {
	assert.Equal(t, "", truncateTooltip(""))
	assert.Equal(t, "Desk Lamp is on", truncateTooltip("Desk Lamp is on"))

	exact := strings.Repeat("a", tooltipLimit)
	assert.Equal(t, exact, truncateTooltip(exact))
}

func TestTruncateTooltipLongStringsGetEllipsis(t *testing.T) {
	long := strings.Repeat("a", tooltipLimit+20)
	got := truncateTooltip(long)

	assert.Equal(t, tooltipLimit, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, strings.Repeat("a", tooltipLimit-1), strings.TrimSuffix(got, "…"))
}

func TestTruncateTooltipCountsRunesNotBytes(t *testing.T) {
	// 64 multi-byte runes must be truncated to 63, never split mid-rune.
	long := strings.Repeat("ü", tooltipLimit+1)
	got := truncateTooltip(long)

	assert.Equal(t, tooltipLimit, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestDegradedTooltipFitsLimit(t *testing.T) {
	assert.LessOrEqual(t, utf8.RuneCountInString(degradedTooltip), tooltipLimit)
}
