package web

import (
	"fmt"
	"html"
)

var badgeColors = map[string]string{
	"ok":       "#4c1",
	"info":     "#007ec6",
	"warning":  "#dfb317",
	"critical": "#e05d44",
}

const badgeGray = "#9f9f9f"

// badgeSVG renders a flat two-segment badge: database name on the
// left, health status on the right. Widths are estimated at seven
// pixels per character, which is close enough for badge text.
func badgeSVG(database, status string) string {
	color, ok := badgeColors[status]
	if !ok {
		status = "unknown"
		color = badgeGray
	}

	label := html.EscapeString(database)
	value := html.EscapeString(status)
	labelWidth := 7*len(label) + 10
	valueWidth := 7*len(value) + 10
	total := labelWidth + valueWidth

	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="20" role="img" aria-label="%s: %s">
<rect width="%d" height="20" fill="#555"/>
<rect x="%d" width="%d" height="20" fill="%s"/>
<g fill="#fff" text-anchor="middle" font-family="Verdana,Geneva,DejaVu Sans,sans-serif" font-size="11">
<text x="%d" y="14">%s</text>
<text x="%d" y="14">%s</text>
</g>
</svg>`,
		total, label, value,
		labelWidth,
		labelWidth, valueWidth, color,
		labelWidth/2, label,
		labelWidth+valueWidth/2, value)
}
