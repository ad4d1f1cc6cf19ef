// Package config 服务配置，.env + 环境变量，带默认值
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP 监听地址
	Addr string

	// 生成后端：script（本地 python 脚本）或 remote（HTTP 推理服务）
	BackendMode string
	PythonBin   string
	ScriptDir   string
	RemoteURL   string

	// 产物输出目录与临时工作目录
	OutputDir string
	WorkDir   string
	// 临时工作区保留时长，到期由 janitor 清理
	TempTTL time.Duration

	// 流水线默认分辨率
	PipelineSize int

	// 日志
	LogLevel string
	LogFile  string
}

// Load 读取 .env（可选）再读环境变量
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:         getEnv("TOPOGRAPH_ADDR", ":8080"),
		BackendMode:  getEnv("TOPOGRAPH_BACKEND", "script"),
		PythonBin:    getEnv("TOPOGRAPH_PYTHON", "python3"),
		ScriptDir:    getEnv("TOPOGRAPH_SCRIPT_DIR", "./ml"),
		RemoteURL:    getEnv("TOPOGRAPH_REMOTE_URL", "http://127.0.0.1:8188"),
		OutputDir:    getEnv("TOPOGRAPH_OUTPUT_DIR", "./output"),
		WorkDir:      getEnv("TOPOGRAPH_WORK_DIR", os.TempDir()+"/topograph"),
		TempTTL:      getDuration("TOPOGRAPH_TEMP_TTL", time.Hour),
		PipelineSize: getInt("TOPOGRAPH_PIPELINE_SIZE", 512),
		LogLevel:     getEnv("TOPOGRAPH_LOG_LEVEL", "info"),
		LogFile:      getEnv("TOPOGRAPH_LOG_FILE", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
