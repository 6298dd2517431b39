package model

import "strings"

// colorMap maps logical list color keys to hex values. Only hex values
// belong here; consumers rely on them for accent rendering.
var colorMap = map[string]string{
	"default":    "#d3d3d3",
	"green":      "#7bd148",
	"bold-blue":  "#5484ed",
	"blue":       "#a4bdfc",
	"turquoise":  "#46d6db",
	"teal":       "#00aba9",
	"bold-green": "#51b749",
	"yellow":     "#ffcc00",
	"orange":     "#fa6800",
	"red":        "#ff3300",
	"magenta":    "#d80073",
	"purple":     "#dbadff",
}

// HexColor resolves a logical color key to its hex value. Raw hex values
// pass through for backward compatibility; "default" and unknown keys
// resolve to "".
func HexColor(key string) string {
	if strings.HasPrefix(key, "#") {
		return key
	}
	if key == "" || key == "default" {
		return ""
	}
	return colorMap[key]
}
