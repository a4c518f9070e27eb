package colorkey

import (
	"fmt"
	"unicode/utf16"

	"github.com/lucasb-eyer/go-colorful"
)

// Specialty colors are derived, not stored: the same label always maps to the
// same hue, so every view of the calendar agrees without coordination.
const (
	saturation = 0.90
	lightness  = 0.50
)

type Color struct {
	Hue int
}

// ColorFor maps a display label to a stable color. The hash folds the label's
// UTF-16 code units with the classic multiply-by-31 scheme into a signed
// 32-bit value; the absolute value mod 360 picks the hue.
func ColorFor(label string) Color {
	return Color{Hue: hashLabel(label)}
}

func hashLabel(label string) int {
	var h int32
	for _, u := range utf16.Encode([]rune(label)) {
		h = (h << 5) - h + int32(u)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return int(abs % 360)
}

// CSS renders the color as an hsl() value, the form the calendar markers use.
func (c Color) CSS() string {
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", c.Hue, int(saturation*100), int(lightness*100))
}

// Hex renders the color as #rrggbb for terminals and non-CSS consumers.
func (c Color) Hex() string {
	return colorful.Hsl(float64(c.Hue), saturation, lightness).Hex()
}
