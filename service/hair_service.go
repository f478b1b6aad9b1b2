package service

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/TIANLI0/HairTint/config"
	"github.com/TIANLI0/HairTint/model"
	"github.com/TIANLI0/HairTint/utils"
	"go.uber.org/zap"
)

// Segmenter 外部分割模型，返回与输入同尺寸的类别图
type Segmenter interface {
	Segment(ctx context.Context, img PixelBuffer) (LabelBuffer, error)
	Labels() []string
}

// LabelRefiner 类别图后处理
type LabelRefiner interface {
	Refine(labels LabelBuffer, width, height int, target Category) (LabelBuffer, error)
}

// RecolorRequest 染色请求；Mask 与 MaskMD5 二选一
type RecolorRequest struct {
	Base     []byte
	BaseName string
	Mask     []byte
	MaskMD5  string
	Color    string
	Strength *float64
	Save     bool
}

// HairService 负责生成发型掩码以及在新图片上染色
type HairService struct {
	segmenter    Segmenter
	refiner      LabelRefiner
	repo         MaskRepository
	store        ArtifactStore
	compositor   Compositor
	target       Category
	semaphore    chan struct{}
	queueTimeout time.Duration
}

func NewHairService(cfg *config.Config, segmenter Segmenter, refiner LabelRefiner, repo MaskRepository, store ArtifactStore) *HairService {
	return &HairService{
		segmenter:    segmenter,
		refiner:      refiner,
		repo:         repo,
		store:        store,
		compositor:   NewCompositor(cfg.Recolor.Strength, cfg.Recolor.Workers),
		target:       Category(cfg.Segmenter.TargetCategory),
		semaphore:    make(chan struct{}, max(1, cfg.Processing.MaxConcurrent)),
		queueTimeout: time.Duration(cfg.Processing.QueueTimeout) * time.Second,
	}
}

// acquire 并发控制，排队超时返回 ErrQueueTimeout
func (s *HairService) acquire(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, s.queueTimeout)
	defer cancel()

	select {
	case s.semaphore <- struct{}{}:
		return func() { <-s.semaphore }, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrQueueTimeout
		}
		return nil, ctx.Err()
	}
}

// ProcessUpload 生成并保存图片的目标区域掩码。
// 同一图片内容只计算一次，命中缓存时 cached 为 true；force 强制重新计算。
func (s *HairService) ProcessUpload(ctx context.Context, name string, data []byte, force bool) (record *model.MaskRecord, cached bool, err error) {
	md5 := utils.BytesMD5(data)

	if !force {
		existing, err := s.repo.Get(ctx, md5)
		if err != nil {
			utils.Logger.Warn("failed to get cache", zap.Error(err))
		}
		if existing != nil && existing.MaskKey != "" {
			utils.Logger.Info("cache hit", zap.String("md5", md5))
			return existing, true, nil
		}
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	defer release()

	startTime := time.Now()

	img, err := DecodeImage(data)
	if err != nil {
		return nil, false, err
	}

	utils.Logger.Info("processing image",
		zap.String("md5", md5),
		zap.String("name", name),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height))

	labels, box, err := s.locate(ctx, img)
	if err != nil {
		return nil, false, err
	}

	mask, err := BuildRegionMask(img, labels, s.target)
	if err != nil {
		return nil, false, err
	}
	maskPNG, err := EncodePNG(mask)
	if err != nil {
		return nil, false, err
	}

	imageKey := "images/" + md5 + imageExt(name, data)
	imageURL, err := s.store.Put(ctx, imageKey, data, http.DetectContentType(data))
	if err != nil {
		return nil, false, fmt.Errorf("failed to store image: %w", err)
	}

	maskKey := "masks/mask-" + md5 + ".png"
	maskURL, err := s.store.Put(ctx, maskKey, maskPNG, "image/png")
	if err != nil {
		return nil, false, fmt.Errorf("failed to store mask: %w", err)
	}

	record = &model.MaskRecord{
		MD5:         md5,
		ImageName:   name,
		ImageURL:    imageURL,
		MaskURL:     maskURL,
		MaskKey:     maskKey,
		Width:       img.Width,
		Height:      img.Height,
		Category:    s.target.String(),
		BoundingBox: toBBox(box),
		Coverage:    MaskCoverage(labels, s.target),
		Labels:      s.segmenter.Labels(),
		Kind:        model.KindMask,
		Timestamp:   time.Now().Unix(),
	}

	if err := s.repo.Save(ctx, record); err != nil {
		utils.Logger.Warn("failed to set cache", zap.Error(err))
	}

	utils.Logger.Info("mask generated",
		zap.String("md5", md5),
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("box_width", box.Width),
		zap.Int("box_height", box.Height),
		zap.Float64("coverage", record.Coverage))

	return record, false, nil
}

// Recolor 将已有掩码贴合到底图的目标区域并染色
func (s *HairService) Recolor(ctx context.Context, req RecolorRequest) (*model.RecolorResult, error) {
	col, err := ParseHexColor(req.Color)
	if err != nil {
		return nil, err
	}

	compositor := s.compositor
	if req.Strength != nil {
		strength := *req.Strength
		if math.IsNaN(strength) || strength < 0 || strength > 1 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStrength, strength)
		}
		compositor.Strength = strength
	}

	maskData, err := s.loadMask(ctx, req)
	if err != nil {
		return nil, err
	}
	maskImg, err := DecodeMaskImage(maskData)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	startTime := time.Now()

	base, err := DecodeImage(req.Base)
	if err != nil {
		return nil, err
	}

	_, box, err := s.locate(ctx, base)
	if err != nil {
		return nil, err
	}

	placed, err := PlaceMask(maskImg, box, base.Width, base.Height)
	if err != nil {
		return nil, err
	}

	out, err := compositor.Recolor(base, placed, col)
	if err != nil {
		return nil, err
	}

	png, err := EncodePNG(out)
	if err != nil {
		return nil, err
	}

	result := &model.RecolorResult{
		PNG:      png,
		Width:    out.Width,
		Height:   out.Height,
		Color:    col.Hex(),
		Strength: compositor.Strength,
		MaskMD5:  req.MaskMD5,
		BaseBox:  toBBox(box),
	}

	if req.Save {
		if err := s.saveResult(ctx, req, result); err != nil {
			return nil, err
		}
	}

	utils.Logger.Info("recolor finished",
		zap.String("mask_md5", req.MaskMD5),
		zap.String("color", result.Color),
		zap.Float64("strength", result.Strength),
		zap.Bool("saved", req.Save),
		zap.Duration("duration", time.Since(startTime)))

	return result, nil
}

// Get 查询掩码记录
func (s *HairService) Get(ctx context.Context, md5 string) (*model.MaskRecord, error) {
	record, err := s.repo.Get(ctx, md5)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrMaskNotFound, md5)
	}
	return record, nil
}

// List 按时间倒序列出已保存的记录
func (s *HairService) List(ctx context.Context, limit int) ([]*model.MaskRecord, error) {
	return s.repo.List(ctx, limit)
}

// MaskPNG 返回记录对应的掩码 PNG
func (s *HairService) MaskPNG(ctx context.Context, md5 string) ([]byte, error) {
	record, err := s.Get(ctx, md5)
	if err != nil {
		return nil, err
	}
	if record.MaskKey == "" {
		return nil, fmt.Errorf("%w: %s has no mask artifact", ErrMaskNotFound, md5)
	}
	return s.store.Get(ctx, record.MaskKey)
}

// locate 分割图片并计算目标区域外接矩形
func (s *HairService) locate(ctx context.Context, img PixelBuffer) (LabelBuffer, BoundingBox, error) {
	labels, err := s.segmenter.Segment(ctx, img)
	if err != nil {
		return nil, BoundingBox{}, fmt.Errorf("segmentation failed: %w", err)
	}

	if s.refiner != nil {
		labels, err = s.refiner.Refine(labels, img.Width, img.Height, s.target)
		if err != nil {
			return nil, BoundingBox{}, fmt.Errorf("failed to refine labels: %w", err)
		}
	}

	box, found, err := ExtractBoundingBox(img.Width, img.Height, labels, s.target)
	if err != nil {
		return nil, BoundingBox{}, err
	}
	if !found {
		return nil, BoundingBox{}, fmt.Errorf("%w: %s", ErrRegionNotFound, s.target)
	}

	return labels, box, nil
}

func (s *HairService) loadMask(ctx context.Context, req RecolorRequest) ([]byte, error) {
	if len(req.Mask) > 0 {
		return req.Mask, nil
	}
	if req.MaskMD5 == "" {
		return nil, ErrMissingMask
	}
	return s.MaskPNG(ctx, req.MaskMD5)
}

func (s *HairService) saveResult(ctx context.Context, req RecolorRequest, result *model.RecolorResult) error {
	md5 := utils.BytesMD5(result.PNG)
	name := sanitizeName(req.BaseName)
	if name == "" {
		name = md5
	}

	key := "results/result-" + name + ".png"
	url, err := s.store.Put(ctx, key, result.PNG, "image/png")
	if err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	result.ResultURL = url

	maskURL := ""
	if req.MaskMD5 != "" {
		if record, err := s.repo.Get(ctx, req.MaskMD5); err == nil && record != nil {
			maskURL = record.MaskURL
		}
	}

	record := &model.MaskRecord{
		MD5:         md5,
		ImageName:   "result-" + name + ".png",
		ImageURL:    url,
		MaskURL:     maskURL,
		Width:       result.Width,
		Height:      result.Height,
		Category:    s.target.String(),
		BoundingBox: result.BaseBox,
		Kind:        model.KindResult,
		Timestamp:   time.Now().Unix(),
	}
	if err := s.repo.Save(ctx, record); err != nil {
		utils.Logger.Warn("failed to record result", zap.Error(err))
	}
	return nil
}

func toBBox(b BoundingBox) model.BBox {
	return model.BBox{
		MinX:   b.MinX,
		MinY:   b.MinY,
		MaxX:   b.MaxX,
		MaxY:   b.MaxY,
		Width:  b.Width,
		Height: b.Height,
	}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeName 去掉扩展名和不安全字符
func sanitizeName(name string) string {
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = unsafeName.ReplaceAllString(name, "_")
	return strings.Trim(name, "._")
}

func imageExt(name string, data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
		return ext
	}
	return ".bin"
}
