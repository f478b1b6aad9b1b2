package service

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"runtime"
	"sync"
)

// DefaultStrength 掩码完全不透明时的最大染色比例
const DefaultStrength = 0.7

// PixelBuffer 行优先的 RGBA 像素，每像素 4 字节
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewPixelBuffer 创建全透明的缓冲区
func NewPixelBuffer(width, height int) PixelBuffer {
	return PixelBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}
}

// PixelBufferFromImage 将任意 image.Image 转为非预乘的 RGBA 缓冲区
func PixelBufferFromImage(img image.Image) PixelBuffer {
	b := img.Bounds()
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Stride == b.Dx()*4 && b.Min == (image.Point{}) {
		pix := make([]uint8, len(nrgba.Pix))
		copy(pix, nrgba.Pix)
		return PixelBuffer{Width: b.Dx(), Height: b.Dy(), Pix: pix}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return PixelBuffer{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

// Image 以 *image.NRGBA 视图返回，共享底层数组
func (p PixelBuffer) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    p.Pix,
		Stride: p.Width * 4,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}
}

func (p PixelBuffer) validate() error {
	return checkDimensions(p.Width, p.Height, len(p.Pix), 4)
}

// CompositeRecolor 按掩码 alpha 将底图向目标颜色混合，返回新缓冲区。
// alpha 为 0 的像素保持不变；输出 alpha 沿用底图。
func CompositeRecolor(base, mask PixelBuffer, c Color, strength float64) (PixelBuffer, error) {
	return Compositor{Strength: strength, Workers: 1}.Recolor(base, mask, c)
}

// Compositor 可并行的染色合成器，按行分段处理
type Compositor struct {
	Strength float64
	Workers  int
}

// NewCompositor 创建合成器，workers<=0 时使用 CPU 数
func NewCompositor(strength float64, workers int) Compositor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return Compositor{Strength: strength, Workers: workers}
}

// Recolor 见 CompositeRecolor
func (c Compositor) Recolor(base, mask PixelBuffer, col Color) (PixelBuffer, error) {
	if err := base.validate(); err != nil {
		return PixelBuffer{}, fmt.Errorf("base: %w", err)
	}
	if err := mask.validate(); err != nil {
		return PixelBuffer{}, fmt.Errorf("mask: %w", err)
	}
	if base.Width != mask.Width || base.Height != mask.Height {
		return PixelBuffer{}, &IncompatibleBufferError{
			BaseWidth: base.Width, BaseHeight: base.Height,
			MaskWidth: mask.Width, MaskHeight: mask.Height,
		}
	}
	if math.IsNaN(c.Strength) || c.Strength < 0 || c.Strength > 1 {
		return PixelBuffer{}, fmt.Errorf("%w: %v", ErrInvalidStrength, c.Strength)
	}

	out := PixelBuffer{Width: base.Width, Height: base.Height, Pix: make([]uint8, len(base.Pix))}

	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > base.Height {
		workers = base.Height
	}
	if workers == 1 {
		blendRows(out.Pix, base.Pix, mask.Pix, col, c.Strength, base.Width, 0, base.Height)
		return out, nil
	}

	band := (base.Height + workers - 1) / workers
	var wg sync.WaitGroup
	for y0 := 0; y0 < base.Height; y0 += band {
		y1 := min(y0+band, base.Height)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			blendRows(out.Pix, base.Pix, mask.Pix, col, c.Strength, base.Width, y0, y1)
		}(y0, y1)
	}
	wg.Wait()

	return out, nil
}

// blendRows 处理 [y0,y1) 行
func blendRows(dst, base, mask []uint8, col Color, strength float64, width, y0, y1 int) {
	target := [3]float64{float64(col.R), float64(col.G), float64(col.B)}

	for i := y0 * width * 4; i < y1*width*4; i += 4 {
		a := mask[i+3]
		if a == 0 {
			copy(dst[i:i+4], base[i:i+4])
			continue
		}

		blend := float64(a) / 255 * strength
		for ch := 0; ch < 3; ch++ {
			v := float64(base[i+ch])*(1-blend) + target[ch]*blend
			dst[i+ch] = clampUint8(v)
		}
		dst[i+3] = base[i+3]
	}
}

func clampUint8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
