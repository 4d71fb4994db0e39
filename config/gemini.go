package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

var (
	geminiOnce   sync.Once
	geminiConfig *GeminiConfig
)

// GeminiConfig AI 分类器配置
type GeminiConfig struct {
	APIKey     string
	Model      string
	Endpoint   string
	TimeoutSec int
	Backend    string
}

func GetGeminiConfig() *GeminiConfig {
	geminiOnce.Do(func() {
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

		geminiConfig = &GeminiConfig{
			APIKey:     os.Getenv("GEMINI_API_KEY"),
			Model:      "gemini-2.0-flash",
			Endpoint:   "https://generativelanguage.googleapis.com/v1beta",
			TimeoutSec: 30,
			Backend:    "gemini",
		}
		if v := os.Getenv("GEMINI_MODEL"); v != "" {
			geminiConfig.Model = v
		}
		if v := os.Getenv("GEMINI_ENDPOINT"); v != "" {
			geminiConfig.Endpoint = v
		}
		if v := os.Getenv("GEMINI_TIMEOUT"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				geminiConfig.TimeoutSec = n
			}
		}
		if v := os.Getenv("CLASSIFIER_BACKEND"); v != "" {
			geminiConfig.Backend = v
		}
	})
	return geminiConfig
}
