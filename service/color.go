package service

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Color 目标染色颜色
type Color struct {
	R, G, B uint8
}

// ParseHexColor 解析 "#RRGGBB" 或 "RRGGBB"，大小写不敏感
func ParseHexColor(s string) (Color, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 || !isHexDigits(hex) {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	c, err := colorful.Hex("#" + strings.ToLower(hex))
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	r, g, b := c.RGB255()
	return Color{R: r, G: g, B: b}, nil
}

// Hex 返回 "#rrggbb"
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func isHexDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'f':
		case ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}
