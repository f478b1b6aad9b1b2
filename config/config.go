package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Segmenter  SegmenterConfig  `mapstructure:"segmenter"`
	Recolor    RecolorConfig    `mapstructure:"recolor"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	LogLevel     string        `mapstructure:"log_level"` // 为空时按 mode 决定
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

type SegmenterConfig struct {
	ModelPath      string   `mapstructure:"model_path"`
	InputWidth     int      `mapstructure:"input_width"`
	InputHeight    int      `mapstructure:"input_height"`
	ChannelsLast   bool     `mapstructure:"channels_last"`
	TargetCategory int      `mapstructure:"target_category"`
	RefineKernel   int      `mapstructure:"refine_kernel"`
	Labels         []string `mapstructure:"labels"`
}

type RecolorConfig struct {
	Strength     float64 `mapstructure:"strength"`
	DefaultColor string  `mapstructure:"default_color"`
	Workers      int     `mapstructure:"workers"`
}

type ProcessingConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	QueueTimeout  int `mapstructure:"queue_timeout"`
}

type StorageConfig struct {
	Backend       string   `mapstructure:"backend"` // local, s3
	LocalDir      string   `mapstructure:"local_dir"`
	PublicBaseURL string   `mapstructure:"public_base_url"`
	S3            S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HAIRTINT")
	v.AutomaticEnv()

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		// 如果加载失败，返回默认配置
		return getDefaultConfig()
	}
	return cfg
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if c.Server.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.Server.LogLevel); err != nil {
			return fmt.Errorf("server.log_level: %w", err)
		}
	}
	if c.Recolor.Strength < 0 || c.Recolor.Strength > 1 {
		return fmt.Errorf("recolor.strength must be within [0,1], got %v", c.Recolor.Strength)
	}
	if c.Segmenter.TargetCategory < 0 || c.Segmenter.TargetCategory > 255 {
		return fmt.Errorf("segmenter.target_category must be within [0,255], got %d", c.Segmenter.TargetCategory)
	}
	if c.Processing.MaxConcurrent < 1 {
		return fmt.Errorf("processing.max_concurrent must be positive, got %d", c.Processing.MaxConcurrent)
	}
	if c.Processing.QueueTimeout < 1 {
		return fmt.Errorf("processing.queue_timeout must be at least 1 second, got %d", c.Processing.QueueTimeout)
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.log_level", "")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 7*24*time.Hour)
	v.SetDefault("redis.key_prefix", "hairtint:")

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "image/jpg"})

	v.SetDefault("segmenter.model_path", "models/selfie_multiclass_256x256.onnx")
	v.SetDefault("segmenter.input_width", 256)
	v.SetDefault("segmenter.input_height", 256)
	v.SetDefault("segmenter.channels_last", true)
	v.SetDefault("segmenter.target_category", 1)
	v.SetDefault("segmenter.refine_kernel", 0)

	v.SetDefault("recolor.strength", 0.7)
	v.SetDefault("recolor.default_color", "#FF0000")
	v.SetDefault("recolor.workers", 0)

	v.SetDefault("processing.max_concurrent", 3)
	v.SetDefault("processing.queue_timeout", 30)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./data")
	v.SetDefault("storage.public_base_url", "/files")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.force_path_style", true)
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Password:  "",
			DB:        0,
			TTL:       7 * 24 * time.Hour,
			KeyPrefix: "hairtint:",
		},
		Upload: UploadConfig{
			MaxSize:      10 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/jpg"},
		},
		Segmenter: SegmenterConfig{
			ModelPath:      "models/selfie_multiclass_256x256.onnx",
			InputWidth:     256,
			InputHeight:    256,
			ChannelsLast:   true,
			TargetCategory: 1,
		},
		Recolor: RecolorConfig{
			Strength:     0.7,
			DefaultColor: "#FF0000",
		},
		Processing: ProcessingConfig{
			MaxConcurrent: 3,
			QueueTimeout:  30,
		},
		Storage: StorageConfig{
			Backend:       "local",
			LocalDir:      "./data",
			PublicBaseURL: "/files",
			S3: S3Config{
				Region:         "us-east-1",
				ForcePathStyle: true,
			},
		},
	}
}
