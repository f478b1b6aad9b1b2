package service

import (
	"fmt"
	"image"
)

// Category 分割模型输出的像素类别
type Category uint8

// selfie_multiclass 模型的类别约定
const (
	CategoryBackground Category = iota
	CategoryHair
	CategoryBodySkin
	CategoryFaceSkin
	CategoryClothes
	CategoryOther
)

var categoryNames = []string{"background", "hair", "body-skin", "face-skin", "clothes", "others"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// LabelBuffer 行优先的逐像素类别，长度为 width*height
type LabelBuffer []uint8

// BoundingBox 目标类别的最小外接矩形，坐标为闭区间
type BoundingBox struct {
	MinX   int `json:"min_x"`
	MinY   int `json:"min_y"`
	MaxX   int `json:"max_x"`
	MaxY   int `json:"max_y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect 返回半开区间的 image.Rectangle
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.MinX, b.MinY, b.MaxX+1, b.MaxY+1)
}

func (b BoundingBox) Contains(x, y int) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// ExtractBoundingBox 扫描标签图，计算 target 类别的外接矩形。
// 没有匹配像素时 found 为 false，返回的矩形不可使用。
func ExtractBoundingBox(width, height int, labels LabelBuffer, target Category) (box BoundingBox, found bool, err error) {
	if err := checkDimensions(width, height, len(labels), 1); err != nil {
		return BoundingBox{}, false, err
	}

	minX, minY := width, height
	maxX, maxY := -1, -1
	t := uint8(target)

	for y := 0; y < height; y++ {
		row := labels[y*width : (y+1)*width]
		for x, v := range row {
			if v != t {
				continue
			}
			found = true
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if !found {
		return BoundingBox{}, false, nil
	}

	return BoundingBox{
		MinX:   minX,
		MinY:   minY,
		MaxX:   maxX,
		MaxY:   maxY,
		Width:  maxX - minX + 1,
		Height: maxY - minY + 1,
	}, true, nil
}

// checkDimensions 校验宽高为正且缓冲区长度为 width*height*channels
func checkDimensions(width, height, length, channels int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if length != width*height*channels {
		return fmt.Errorf("%w: %dx%d needs %d values, got %d",
			ErrInvalidDimensions, width, height, width*height*channels, length)
	}
	return nil
}
