package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/TIANLI0/HairTint/config"
	"github.com/TIANLI0/HairTint/handler"
	"github.com/TIANLI0/HairTint/middleware"
	"github.com/TIANLI0/HairTint/service"
	"github.com/TIANLI0/HairTint/service/vision"
	"github.com/TIANLI0/HairTint/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	BuildID   = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	// 加载配置
	cfg := config.New()

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode, cfg.Server.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting HairTint server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	// 初始化Redis
	redisService := service.NewRedisService(&cfg.Redis)
	ctx := context.Background()
	if err := redisService.Ping(ctx); err != nil {
		utils.Logger.Warn("redis connection failed, mask cache disabled", zap.Error(err))
	} else {
		utils.Logger.Info("redis connected successfully")
	}
	defer redisService.Close()

	// 初始化对象存储
	var store service.ArtifactStore
	var localStore *service.LocalStore
	switch cfg.Storage.Backend {
	case "s3":
		s3Store, err := service.NewS3Store(&cfg.Storage.S3)
		if err != nil {
			utils.Logger.Fatal("failed to init s3 storage", zap.Error(err))
		}
		store = s3Store
	default:
		var err error
		localStore, err = service.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
		if err != nil {
			utils.Logger.Fatal("failed to init local storage", zap.Error(err))
		}
		store = localStore
	}

	// 加载分割模型
	segmenter, err := vision.NewDNNSegmenter(vision.Config{
		ModelPath:    cfg.Segmenter.ModelPath,
		InputWidth:   cfg.Segmenter.InputWidth,
		InputHeight:  cfg.Segmenter.InputHeight,
		ChannelsLast: cfg.Segmenter.ChannelsLast,
		Labels:       cfg.Segmenter.Labels,
	})
	if err != nil {
		utils.Logger.Fatal("failed to load segmentation model", zap.Error(err))
	}
	defer segmenter.Close()

	var refiner service.LabelRefiner
	if cfg.Segmenter.RefineKernel >= 2 {
		refiner = vision.NewMaskProcessor(cfg.Segmenter.RefineKernel)
	}

	hairService := service.NewHairService(cfg, segmenter, refiner, redisService, store)

	// 初始化Handler
	maskHandler := handler.NewMaskHandler(cfg, hairService)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 创建路由
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.MaxMultipartMemory = cfg.Upload.MaxSize * 3

	// 本地存储的静态文件服务
	if localStore != nil {
		r.Static(cfg.Storage.PublicBaseURL, localStore.Dir())
	}

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"version": Version,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"build_id":   BuildID,
			"git_commit": GitCommit,
			"git_branch": GitBranch,
		})
	})

	// API路由
	api := r.Group("/api/v1")
	{
		api.POST("/masks", maskHandler.Upload)
		api.GET("/masks", maskHandler.List)
		api.GET("/masks/:md5", maskHandler.GetByMD5)
		api.GET("/masks/:md5/image", maskHandler.GetMaskImage)
		api.POST("/recolor", maskHandler.Recolor)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		utils.Logger.Fatal("failed to start server", zap.Error(err))
	}
}
