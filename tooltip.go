package main

// tooltipLimit is the longest tooltip the shell will display.
const tooltipLimit = 63

const degradedTooltip = "Connection lost. Will retry automatically."

// truncateTooltip caps s at the display limit. A truncated tooltip ends with
// an ellipsis and is exactly tooltipLimit runes long.
func truncateTooltip(s string) string {
	r := []rune(s)
	if len(r) <= tooltipLimit {
		return s
	}
	return string(r[:tooltipLimit-1]) + "…"
}
