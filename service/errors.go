package service

import (
	"errors"
	"fmt"
)

var (
	// ErrRegionNotFound 标签图中没有目标类别的像素
	ErrRegionNotFound = errors.New("no target region found")
	// ErrIncompatibleBuffer 底图与掩码尺寸不一致
	ErrIncompatibleBuffer = errors.New("incompatible buffer dimensions")
	// ErrInvalidColor 颜色字符串不是 6 位十六进制
	ErrInvalidColor = errors.New("invalid hex color")
	// ErrInvalidDimensions 宽高与缓冲区长度不匹配
	ErrInvalidDimensions = errors.New("invalid dimensions")
	// ErrInvalidStrength 混合强度不在 [0,1] 内
	ErrInvalidStrength = errors.New("strength must be within [0,1]")
	// ErrQueueTimeout 处理队列已满
	ErrQueueTimeout = errors.New("processing queue is full, retry later")
	// ErrArtifactNotFound 存储中不存在该对象
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrMaskNotFound 不存在该掩码记录
	ErrMaskNotFound = errors.New("mask record not found")
	// ErrMissingMask 染色请求既没有上传掩码也没有指定 mask_md5
	ErrMissingMask = errors.New("mask image or mask_md5 is required")
)

// IncompatibleBufferError 记录不匹配的两组尺寸
type IncompatibleBufferError struct {
	BaseWidth, BaseHeight int
	MaskWidth, MaskHeight int
}

func (e *IncompatibleBufferError) Error() string {
	return fmt.Sprintf("%s: base %dx%d, mask %dx%d", ErrIncompatibleBuffer,
		e.BaseWidth, e.BaseHeight, e.MaskWidth, e.MaskHeight)
}

func (e *IncompatibleBufferError) Is(target error) bool {
	return target == ErrIncompatibleBuffer
}
