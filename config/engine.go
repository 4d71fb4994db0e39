package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	engineOnce   sync.Once
	engineConfig *EngineConfig
)

// EngineConfig 脱敏引擎运行参数
type EngineConfig struct {
	RasterDPI           int     `yaml:"raster_dpi"`
	OcrConfidenceCutoff float64 `yaml:"ocr_confidence_cutoff"`
	MergeIoUThreshold   float64 `yaml:"merge_iou_threshold"`
	MaxFileSize         int64   `yaml:"max_file_size"`
	MaxConcurrentDocs   int     `yaml:"max_concurrent_docs"`
	PageWorkers         int     `yaml:"page_workers"`
	OcrPageTimeoutSec   int     `yaml:"ocr_page_timeout_sec"`
	RenderTimeoutSec    int     `yaml:"render_timeout_sec"`
	RetentionHours      int     `yaml:"retention_hours"`
	StorageBackend      string  `yaml:"storage_backend"`
	StoragePath         string  `yaml:"storage_path"`
	CacheBackend        string  `yaml:"cache_backend"`
}

// OcrPageTimeout 单页 OCR 超时
func (c *EngineConfig) OcrPageTimeout() time.Duration {
	return time.Duration(c.OcrPageTimeoutSec) * time.Second
}

// RenderTimeout 整体渲染超时
func (c *EngineConfig) RenderTimeout() time.Duration {
	return time.Duration(c.RenderTimeoutSec) * time.Second
}

// RetentionPeriod 产物保留时长
func (c *EngineConfig) RetentionPeriod() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

func GetEngineConfig() *EngineConfig {
	engineOnce.Do(func() {
		// 获取当前文件的目录
		_, filename, _, _ := runtime.Caller(0)
		configDir := filepath.Dir(filename)

		// 构建到项目根目录的路径
		rootDir := filepath.Dir(configDir)
		envPath := filepath.Join(rootDir, ".env")

		// 加载 .env 文件
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: .env file not found at %s, falling back to environment variables", envPath)
		}

		engineConfig = &EngineConfig{
			RasterDPI:           150,
			OcrConfidenceCutoff: 60,
			MergeIoUThreshold:   0.5,
			MaxFileSize:         50 * 1024 * 1024,
			MaxConcurrentDocs:   5,
			PageWorkers:         4,
			OcrPageTimeoutSec:   60,
			RenderTimeoutSec:    120,
			RetentionHours:      24,
			StorageBackend:      "local",
			StoragePath:         "data",
			CacheBackend:        "redis",
		}

		// 可选的 YAML 调优文件,环境变量优先级更高
		if file := os.Getenv("REDACTOR_CONFIG_FILE"); file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				log.Printf("Warning: can't read config file %s: %v", file, err)
			} else if err := yaml.Unmarshal(data, engineConfig); err != nil {
				log.Printf("Warning: can't parse config file %s: %v", file, err)
			}
		}

		overrideInt("REDACTOR_RASTER_DPI", &engineConfig.RasterDPI)
		overrideFloat("REDACTOR_OCR_CONFIDENCE_CUTOFF", &engineConfig.OcrConfidenceCutoff)
		overrideFloat("REDACTOR_IOU_THRESHOLD", &engineConfig.MergeIoUThreshold)
		overrideInt64("REDACTOR_MAX_FILE_SIZE", &engineConfig.MaxFileSize)
		overrideInt("REDACTOR_MAX_CONCURRENT", &engineConfig.MaxConcurrentDocs)
		overrideInt("REDACTOR_PAGE_WORKERS", &engineConfig.PageWorkers)
		overrideInt("REDACTOR_OCR_PAGE_TIMEOUT", &engineConfig.OcrPageTimeoutSec)
		overrideInt("REDACTOR_RENDER_TIMEOUT", &engineConfig.RenderTimeoutSec)
		overrideInt("REDACTOR_RETENTION_HOURS", &engineConfig.RetentionHours)
		overrideString("STORAGE_BACKEND", &engineConfig.StorageBackend)
		overrideString("STORAGE_PATH", &engineConfig.StoragePath)
		overrideString("CACHE_BACKEND", &engineConfig.CacheBackend)
	})
	return engineConfig
}

func overrideString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func overrideFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
