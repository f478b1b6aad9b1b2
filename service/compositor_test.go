package service

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func pixels(w, h int, px ...[4]uint8) PixelBuffer {
	p := NewPixelBuffer(w, h)
	for i, v := range px {
		copy(p.Pix[i*4:], v[:])
	}
	return p
}

func randomBuffer(rng *rand.Rand, w, h int) PixelBuffer {
	p := NewPixelBuffer(w, h)
	rng.Read(p.Pix)
	return p
}

func TestCompositeRecolor_TwoPixels(t *testing.T) {
	base := pixels(2, 1, [4]uint8{10, 10, 10, 255}, [4]uint8{200, 200, 200, 255})
	mask := pixels(2, 1, [4]uint8{0, 0, 0, 0}, [4]uint8{0, 0, 0, 255})

	out, err := CompositeRecolor(base, mask, Color{R: 255}, DefaultStrength)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := out.Pix[0:4]; !bytes.Equal(got, []uint8{10, 10, 10, 255}) {
		t.Errorf("pixel 0 should be unchanged, got %v", got)
	}
	if r := out.Pix[4]; r != 238 && r != 239 {
		t.Errorf("pixel 1 R: got %d, want 238 or 239", r)
	}
	if g, b := out.Pix[5], out.Pix[6]; g != 60 || b != 60 {
		t.Errorf("pixel 1 G,B: got %d,%d, want 60,60", g, b)
	}
	if a := out.Pix[7]; a != 255 {
		t.Errorf("pixel 1 alpha: got %d, want 255", a)
	}
}

func TestCompositeRecolor_ZeroStrengthIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := randomBuffer(rng, 13, 9)
	mask := randomBuffer(rng, 13, 9)

	out, err := CompositeRecolor(base, mask, Color{R: 12, G: 200, B: 99}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out.Pix, base.Pix) {
		t.Fatalf("strength 0 must leave the base untouched")
	}
}

func TestCompositeRecolor_FullMaskFullStrength(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	base := randomBuffer(rng, 8, 8)
	mask := NewPixelBuffer(8, 8)
	for i := 3; i < len(mask.Pix); i += 4 {
		mask.Pix[i] = 255
	}
	col := Color{R: 17, G: 130, B: 250}

	out, err := CompositeRecolor(base, mask, col, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < len(out.Pix); i += 4 {
		for ch, want := range []uint8{col.R, col.G, col.B} {
			got := int(out.Pix[i+ch])
			if got < int(want)-1 || got > int(want)+1 {
				t.Fatalf("pixel %d channel %d: got %d, want %d", i/4, ch, got, want)
			}
		}
		if out.Pix[i+3] != base.Pix[i+3] {
			t.Fatalf("pixel %d alpha changed: %d -> %d", i/4, base.Pix[i+3], out.Pix[i+3])
		}
	}
}

func TestCompositeRecolor_DoesNotMutateBase(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	base := randomBuffer(rng, 5, 5)
	orig := append([]uint8(nil), base.Pix...)
	mask := randomBuffer(rng, 5, 5)

	if _, err := CompositeRecolor(base, mask, Color{B: 255}, 0.7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(base.Pix, orig) {
		t.Fatalf("base buffer was modified")
	}
}

func TestCompositeRecolor_Errors(t *testing.T) {
	tests := []struct {
		name     string
		base     PixelBuffer
		mask     PixelBuffer
		strength float64
		want     error
	}{
		{
			name:     "width mismatch",
			base:     NewPixelBuffer(4, 4),
			mask:     NewPixelBuffer(3, 4),
			strength: 0.7,
			want:     ErrIncompatibleBuffer,
		},
		{
			name:     "height mismatch",
			base:     NewPixelBuffer(4, 4),
			mask:     NewPixelBuffer(4, 5),
			strength: 0.7,
			want:     ErrIncompatibleBuffer,
		},
		{
			name:     "short base buffer",
			base:     PixelBuffer{Width: 2, Height: 2, Pix: make([]uint8, 15)},
			mask:     NewPixelBuffer(2, 2),
			strength: 0.7,
			want:     ErrInvalidDimensions,
		},
		{
			name:     "empty mask",
			base:     NewPixelBuffer(2, 2),
			mask:     PixelBuffer{},
			strength: 0.7,
			want:     ErrInvalidDimensions,
		},
		{
			name:     "strength above one",
			base:     NewPixelBuffer(2, 2),
			mask:     NewPixelBuffer(2, 2),
			strength: 1.5,
			want:     ErrInvalidStrength,
		},
		{
			name:     "negative strength",
			base:     NewPixelBuffer(2, 2),
			mask:     NewPixelBuffer(2, 2),
			strength: -0.1,
			want:     ErrInvalidStrength,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := CompositeRecolor(tc.base, tc.mask, Color{}, tc.strength)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if out.Pix != nil {
				t.Fatalf("expected no output on error")
			}
		})
	}
}

func TestCompositeRecolor_IncompatibleBufferDetails(t *testing.T) {
	_, err := CompositeRecolor(NewPixelBuffer(4, 3), NewPixelBuffer(2, 1), Color{}, 0.5)

	var ibe *IncompatibleBufferError
	if !errors.As(err, &ibe) {
		t.Fatalf("expected *IncompatibleBufferError, got %T", err)
	}
	if ibe.BaseWidth != 4 || ibe.BaseHeight != 3 || ibe.MaskWidth != 2 || ibe.MaskHeight != 1 {
		t.Fatalf("unexpected dimensions in %+v", ibe)
	}
}

func TestCompositor_ParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	base := randomBuffer(rng, 37, 53)
	mask := randomBuffer(rng, 37, 53)
	col := Color{R: 200, G: 40, B: 90}

	want, err := CompositeRecolor(base, mask, col, 0.7)
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}

	for _, workers := range []int{2, 3, 8, 100} {
		got, err := Compositor{Strength: 0.7, Workers: workers}.Recolor(base, mask, col)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if !bytes.Equal(got.Pix, want.Pix) {
			t.Fatalf("workers=%d: output differs from sequential", workers)
		}
	}
}

func TestPixelBufferFromImage_RoundTrip(t *testing.T) {
	p := pixels(2, 1, [4]uint8{1, 2, 3, 4}, [4]uint8{5, 6, 7, 255})
	q := PixelBufferFromImage(p.Image())
	if q.Width != 2 || q.Height != 1 || !bytes.Equal(q.Pix, p.Pix) {
		t.Fatalf("got %+v, want %+v", q, p)
	}
	q.Pix[0] = 99
	if p.Pix[0] != 1 {
		t.Fatalf("conversion must copy pixels")
	}
}
