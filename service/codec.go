package service

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DecodeImage 解码 JPEG/PNG 并按 EXIF 方向校正
func DecodeImage(data []byte) (PixelBuffer, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return PixelBuffer{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return PixelBuffer{}, fmt.Errorf("%w: image has zero dimensions", ErrInvalidDimensions)
	}
	return PixelBufferFromImage(img), nil
}

// DecodeMaskImage 解码掩码图，保留 alpha 通道
func DecodeMaskImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: mask has zero dimensions", ErrInvalidDimensions)
	}
	return img, nil
}

// EncodePNG 将缓冲区编码为 PNG
func EncodePNG(p PixelBuffer) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, p.Image(), imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
