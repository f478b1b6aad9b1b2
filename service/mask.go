package service

import "fmt"

// BuildRegionMask 生成目标区域掩码：目标像素保留原图颜色且不透明，其余全透明
func BuildRegionMask(img PixelBuffer, labels LabelBuffer, target Category) (PixelBuffer, error) {
	if err := img.validate(); err != nil {
		return PixelBuffer{}, err
	}
	if err := checkDimensions(img.Width, img.Height, len(labels), 1); err != nil {
		return PixelBuffer{}, err
	}

	out := NewPixelBuffer(img.Width, img.Height)
	t := uint8(target)
	for i, v := range labels {
		if v != t {
			continue
		}
		p := i * 4
		out.Pix[p] = img.Pix[p]
		out.Pix[p+1] = img.Pix[p+1]
		out.Pix[p+2] = img.Pix[p+2]
		out.Pix[p+3] = 255
	}

	return out, nil
}

// MaskCoverage 目标像素占比，用于日志
func MaskCoverage(labels LabelBuffer, target Category) float64 {
	if len(labels) == 0 {
		return 0
	}
	n := 0
	t := uint8(target)
	for _, v := range labels {
		if v == t {
			n++
		}
	}
	return float64(n) / float64(len(labels))
}

// BinaryMask 目标类别为 255，其余为 0
func BinaryMask(labels LabelBuffer, target Category) []byte {
	binary := make([]byte, len(labels))
	t := uint8(target)
	for i, v := range labels {
		if v == t {
			binary[i] = 255
		}
	}
	return binary
}

// ApplyBinaryMask 按形态学处理后的二值掩码修正类别图。
// 被移除的目标像素归为背景，新增的像素归为目标类别，其余类别不变。
func ApplyBinaryMask(labels LabelBuffer, binary []byte, target Category) (LabelBuffer, error) {
	if len(binary) != len(labels) {
		return nil, fmt.Errorf("%w: %d labels with %d mask bytes", ErrInvalidDimensions, len(labels), len(binary))
	}

	refined := make(LabelBuffer, len(labels))
	copy(refined, labels)
	t := uint8(target)
	for i, v := range binary {
		switch {
		case v > 127 && refined[i] != t:
			refined[i] = t
		case v <= 127 && refined[i] == t:
			refined[i] = uint8(CategoryBackground)
		}
	}
	return refined, nil
}
