// Package vision 基于 gocv 的分割与掩码后处理
package vision

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/TIANLI0/HairTint/service"
	"github.com/TIANLI0/HairTint/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// SelfieMulticlassLabels selfie_multiclass_256x256 的类别名
var SelfieMulticlassLabels = []string{"background", "hair", "body-skin", "face-skin", "clothes", "others"}

// Config 分割模型配置
type Config struct {
	ModelPath    string
	InputWidth   int
	InputHeight  int
	ChannelsLast bool // 模型输入输出为 NHWC
	Labels       []string
}

// DefaultConfig 返回 selfie_multiclass 的默认配置
func DefaultConfig() Config {
	return Config{
		ModelPath:    "models/selfie_multiclass_256x256.onnx",
		InputWidth:   256,
		InputHeight:  256,
		ChannelsLast: true,
		Labels:       SelfieMulticlassLabels,
	}
}

// DNNSegmenter 使用 OpenCV DNN 运行语义分割模型
type DNNSegmenter struct {
	net    gocv.Net
	config Config
	mu     sync.Mutex
}

// NewDNNSegmenter 加载 ONNX 模型
func NewDNNSegmenter(cfg Config) (*DNNSegmenter, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load segmentation model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	if len(cfg.Labels) == 0 {
		cfg.Labels = SelfieMulticlassLabels
	}

	return &DNNSegmenter{net: net, config: cfg}, nil
}

// Labels 返回模型类别名，下标即类别值
func (s *DNNSegmenter) Labels() []string {
	return s.config.Labels
}

// Segment 返回与输入图同尺寸的类别图
func (s *DNNSegmenter) Segment(ctx context.Context, img service.PixelBuffer) (service.LabelBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rgba, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC4, img.Pix)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap pixels: %w", err)
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)

	blob, err := s.blob(bgr)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	s.mu.Lock()
	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	s.mu.Unlock()
	defer output.Close()

	classes, err := s.argmax(output)
	if err != nil {
		return nil, err
	}
	defer classes.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(classes, &resized, image.Pt(img.Width, img.Height), 0, 0, gocv.InterpolationNearestNeighbor)

	labels := make(service.LabelBuffer, img.Width*img.Height)
	copy(labels, resized.ToBytes())

	utils.Logger.Debug("segmentation finished",
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
		zap.Float64("hair_coverage", service.MaskCoverage(labels, service.CategoryHair)))

	return labels, nil
}

// blob 构造模型输入，像素归一化到 [0,1]，RGB 顺序
func (s *DNNSegmenter) blob(bgr gocv.Mat) (gocv.Mat, error) {
	size := image.Pt(s.config.InputWidth, s.config.InputHeight)
	if !s.config.ChannelsLast {
		return gocv.BlobFromImage(bgr, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false), nil
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(bgr, &resized, size, 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	f32 := gocv.NewMat()
	defer f32.Close()
	rgb.ConvertToWithParams(&f32, gocv.MatTypeCV32FC3, 1.0/255.0, 0)

	blob, err := gocv.NewMatWithSizesFromBytes([]int{1, size.Y, size.X, 3}, gocv.MatTypeCV32F, f32.ToBytes())
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to build input blob: %w", err)
	}
	return blob, nil
}

// argmax 将 [1,H,W,C] 或 [1,C,H,W] 的输出转为 H x W 的类别 Mat
func (s *DNNSegmenter) argmax(output gocv.Mat) (gocv.Mat, error) {
	dims := output.Size()
	if len(dims) != 4 {
		return gocv.Mat{}, fmt.Errorf("unexpected output shape %v", dims)
	}

	var h, w, c int
	if s.config.ChannelsLast {
		h, w, c = dims[1], dims[2], dims[3]
	} else {
		c, h, w = dims[1], dims[2], dims[3]
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to read output: %w", err)
	}

	classes := make([]byte, h*w)
	for i := 0; i < h*w; i++ {
		best := 0
		bestScore := float32(0)
		for k := 0; k < c; k++ {
			var score float32
			if s.config.ChannelsLast {
				score = data[i*c+k]
			} else {
				score = data[k*h*w+i]
			}
			if k == 0 || score > bestScore {
				best = k
				bestScore = score
			}
		}
		classes[i] = byte(best)
	}

	return gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, classes)
}

// Close 释放模型
func (s *DNNSegmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}
