package vision

import (
	"fmt"
	"image"

	"github.com/TIANLI0/HairTint/service"
	"gocv.io/x/gocv"
)

// MaskProcessor 负责处理类别掩码
type MaskProcessor struct {
	kernelSize int
}

func NewMaskProcessor(kernelSize int) *MaskProcessor {
	return &MaskProcessor{kernelSize: kernelSize}
}

// Refine 对目标类别做开运算+闭运算，去除噪点并填补小孔。
// 被移除的像素归为背景，新增的像素归为目标类别。
func (mp *MaskProcessor) Refine(labels service.LabelBuffer, width, height int, target service.Category) (service.LabelBuffer, error) {
	if width <= 0 || height <= 0 || len(labels) != width*height {
		return nil, fmt.Errorf("%w: %dx%d with %d labels", service.ErrInvalidDimensions, width, height, len(labels))
	}
	if mp.kernelSize < 2 {
		return labels, nil
	}

	binary := service.BinaryMask(labels, target)
	mask, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8U, binary)
	if err != nil {
		return nil, fmt.Errorf("failed to build mask mat: %w", err)
	}
	defer mask.Close()

	optimized := mp.MorphologyOptimize(&mask, mp.kernelSize)
	defer optimized.Close()

	cleaned, err := optimized.DataPtrUint8()
	if err != nil {
		return nil, fmt.Errorf("failed to read refined mask: %w", err)
	}

	return service.ApplyBinaryMask(labels, cleaned, target)
}

// MorphologyOptimize 优化掩码的形态学结构
func (mp *MaskProcessor) MorphologyOptimize(mask *gocv.Mat, kernelSize int) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: kernelSize, Y: kernelSize})
	defer kernel.Close()

	opened := gocv.NewMat()
	gocv.MorphologyEx(*mask, &opened, gocv.MorphOpen, kernel)

	closed := gocv.NewMat()
	gocv.MorphologyEx(opened, &closed, gocv.MorphClose, kernel)
	opened.Close()

	return closed
}
