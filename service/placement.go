package service

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// PlaceMask 将掩码图缩放到 box 所在位置，生成 width x height 的掩码缓冲区。
// box 之外的像素完全透明；超出画布的部分被裁剪。
func PlaceMask(mask image.Image, box BoundingBox, width, height int) (PixelBuffer, error) {
	if mask == nil || mask.Bounds().Empty() {
		return PixelBuffer{}, fmt.Errorf("%w: empty mask image", ErrInvalidDimensions)
	}
	if width <= 0 || height <= 0 {
		return PixelBuffer{}, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if box.Width <= 0 || box.Height <= 0 {
		return PixelBuffer{}, fmt.Errorf("%w: empty bounding box", ErrInvalidDimensions)
	}

	frame := image.Rect(0, 0, width, height)
	if !box.Rect().Overlaps(frame) {
		return PixelBuffer{}, fmt.Errorf("%w: box %v outside %v", ErrInvalidDimensions, box.Rect(), frame)
	}

	out := NewPixelBuffer(width, height)
	xdraw.BiLinear.Scale(out.Image(), box.Rect(), mask, mask.Bounds(), xdraw.Src, nil)

	return out, nil
}
