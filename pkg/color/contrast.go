// Package color maps note background colors to legible foreground colors.
package color

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Black is returned for light backgrounds.
	Black = "#000000"
	// White is returned for dark backgrounds.
	White = "#FFFFFF"

	// brightnessThreshold is 155 on the 0-255 scale, scaled by 1000 so the
	// comparison stays in integer arithmetic.
	brightnessThreshold = 155_000
)

// ErrMalformed is returned by Parse for anything that is not a 6-digit hex color.
var ErrMalformed = errors.New("malformed hex color")

// RGB is a parsed 24-bit color.
type RGB struct {
	R, G, B uint8
}

// Brightness returns the perceived brightness (0.299R + 0.587G + 0.114B) scaled by 1000.
func (c RGB) Brightness() int {
	return int(c.R)*299 + int(c.G)*587 + int(c.B)*114
}

// Hex formats the color as a lowercase "#rrggbb" string.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Parse reads a 6-digit hex color. The leading '#' is optional.
func Parse(hex string) (RGB, error) {
	s := strings.TrimPrefix(hex, "#")
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("%w: %q", ErrMalformed, hex)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("%w: %q", ErrMalformed, hex)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Valid reports whether hex is a well-formed 6-digit hex color.
func Valid(hex string) bool {
	_, err := Parse(hex)
	return err == nil
}

// Contrast returns Black for backgrounds brighter than 155 and White otherwise.
//
// The input must be well formed; callers guard with Valid. Malformed input
// yields White without an error.
func Contrast(hex string) string {
	c, _ := Parse(hex)
	if c.Brightness() > brightnessThreshold {
		return Black
	}
	return White
}
