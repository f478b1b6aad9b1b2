package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/TIANLI0/HairTint/config"
	"github.com/TIANLI0/HairTint/model"
	"github.com/TIANLI0/HairTint/service"
	"github.com/TIANLI0/HairTint/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HairProcessor 由 service.HairService 实现
type HairProcessor interface {
	ProcessUpload(ctx context.Context, name string, data []byte, force bool) (*model.MaskRecord, bool, error)
	Recolor(ctx context.Context, req service.RecolorRequest) (*model.RecolorResult, error)
	Get(ctx context.Context, md5 string) (*model.MaskRecord, error)
	List(ctx context.Context, limit int) ([]*model.MaskRecord, error)
	MaskPNG(ctx context.Context, md5 string) ([]byte, error)
}

type MaskHandler struct {
	cfg       *config.Config
	processor HairProcessor
}

func NewMaskHandler(cfg *config.Config, processor HairProcessor) *MaskHandler {
	return &MaskHandler{
		cfg:       cfg,
		processor: processor,
	}
}

// Upload 上传图片并生成头发掩码
func (h *MaskHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		utils.Logger.Error("failed to get uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请上传图片文件",
			Error:   err.Error(),
		})
		return
	}

	data, ok := h.readImage(c, file)
	if !ok {
		return
	}

	force := c.DefaultPostForm("force", "false") == "true"

	utils.Logger.Info("file uploaded",
		zap.String("filename", file.Filename),
		zap.Int64("size", file.Size),
		zap.Bool("force", force))

	record, cached, err := h.processor.ProcessUpload(c.Request.Context(), file.Filename, data, force)
	if err != nil {
		utils.Logger.Error("failed to process image", zap.Error(err))
		writeError(c, err, "图片处理失败")
		return
	}

	message := "处理成功"
	if cached {
		message = "图片已处理，使用已有掩码"
	}
	c.JSON(http.StatusOK, model.MaskResponse{
		Success: true,
		Message: message,
		Data:    record,
	})
}

// GetByMD5 根据MD5获取掩码信息
func (h *MaskHandler) GetByMD5(c *gin.Context) {
	md5 := strings.ToLower(c.Param("md5"))
	if !utils.IsMD5(md5) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "MD5参数无效",
		})
		return
	}

	record, err := h.processor.Get(c.Request.Context(), md5)
	if err != nil {
		writeError(c, err, "查询失败")
		return
	}

	c.JSON(http.StatusOK, model.MaskResponse{
		Success: true,
		Message: "查询成功",
		Data:    record,
	})
}

// GetMaskImage 返回掩码PNG
func (h *MaskHandler) GetMaskImage(c *gin.Context) {
	md5 := strings.ToLower(c.Param("md5"))
	if !utils.IsMD5(md5) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "MD5参数无效",
		})
		return
	}

	data, err := h.processor.MaskPNG(c.Request.Context(), md5)
	if err != nil {
		writeError(c, err, "读取掩码失败")
		return
	}

	c.Data(http.StatusOK, "image/png", data)
}

// List 列出已保存的图片
func (h *MaskHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "limit参数无效 (1-500)",
		})
		return
	}

	records, err := h.processor.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err, "查询失败")
		return
	}

	c.JSON(http.StatusOK, model.MaskListResponse{
		Success: true,
		Message: "查询成功",
		Data:    records,
	})
}

// Recolor 使用已有掩码为底图染色
func (h *MaskHandler) Recolor(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请上传底图",
			Error:   err.Error(),
		})
		return
	}

	base, ok := h.readImage(c, file)
	if !ok {
		return
	}

	req := service.RecolorRequest{
		Base:     base,
		BaseName: file.Filename,
		MaskMD5:  strings.ToLower(c.PostForm("mask_md5")),
		Color:    c.DefaultPostForm("color", h.cfg.Recolor.DefaultColor),
		Save:     c.DefaultPostForm("save", "false") == "true",
	}

	if maskFile, err := c.FormFile("mask"); err == nil {
		mask, ok := h.readImage(c, maskFile)
		if !ok {
			return
		}
		req.Mask = mask
	} else if req.MaskMD5 != "" && !utils.IsMD5(req.MaskMD5) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "mask_md5参数无效",
		})
		return
	}

	if raw := c.PostForm("strength"); raw != "" {
		strength, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{
				Success: false,
				Message: "strength参数无效",
				Error:   err.Error(),
			})
			return
		}
		req.Strength = &strength
	}

	result, err := h.processor.Recolor(c.Request.Context(), req)
	if err != nil {
		utils.Logger.Error("failed to recolor image", zap.Error(err))
		writeError(c, err, "染色失败")
		return
	}

	if req.Save {
		c.JSON(http.StatusOK, model.RecolorResponse{
			Success: true,
			Message: "保存成功",
			Data:    result,
		})
		return
	}

	c.Data(http.StatusOK, "image/png", result.PNG)
}

// readImage 校验大小和类型并读取上传内容，失败时已写入响应
func (h *MaskHandler) readImage(c *gin.Context, file *multipart.FileHeader) ([]byte, bool) {
	if file.Size > h.cfg.Upload.MaxSize {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024)),
		})
		return nil, false
	}

	contentType := file.Header.Get("Content-Type")
	if !h.isAllowedType(contentType) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "不支持的文件类型，仅支持 JPEG/PNG",
		})
		return nil, false
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "读取文件失败",
			Error:   err.Error(),
		})
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.cfg.Upload.MaxSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "读取文件失败",
			Error:   err.Error(),
		})
		return nil, false
	}

	return data, true
}

func (h *MaskHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

// writeError 将业务错误映射为HTTP状态码
func writeError(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidColor),
		errors.Is(err, service.ErrInvalidStrength),
		errors.Is(err, service.ErrIncompatibleBuffer),
		errors.Is(err, service.ErrInvalidDimensions),
		errors.Is(err, service.ErrMissingMask):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrMaskNotFound),
		errors.Is(err, service.ErrArtifactNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrRegionNotFound):
		status = http.StatusUnprocessableEntity
		message = "未检测到头发区域"
	case errors.Is(err, service.ErrQueueTimeout):
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, model.ErrorResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}
