// Package config 负责加载和校验 feedwatch 的 YAML 配置。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 feedwatch 的顶层配置结构。
type Config struct {
	DataDir string        `yaml:"data_dir"`
	Log     LogConfig     `yaml:"log"`
	Poll    PollConfig    `yaml:"poll"`
	Archive ArchiveConfig `yaml:"archive"`
	Feeds   []FeedConfig  `yaml:"feeds"`
}

// PollConfig 轮询默认参数，未设置的订阅源继承这里的值。
type PollConfig struct {
	// IntervalSeconds 默认轮询间隔（秒）。
	IntervalSeconds int `yaml:"interval_seconds"`
	// MaxEntries 每个订阅源已知指纹集的上限。
	MaxEntries int `yaml:"max_entries"`
	// TimeoutSeconds 单次抓取的超时时间（秒）。
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// FeedConfig 单个订阅源配置。
type FeedConfig struct {
	Name            string `yaml:"name"`
	URL             string `yaml:"url"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	MaxEntries      int    `yaml:"max_entries"`
}

// ArchiveConfig 条目归档配置。
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${FEEDWATCH_DATA_DIR}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Poll.IntervalSeconds <= 0 {
		cfg.Poll.IntervalSeconds = 3600 // 默认 1 小时
	}
	if cfg.Poll.MaxEntries <= 0 {
		cfg.Poll.MaxEntries = 20
	}
	if cfg.Poll.TimeoutSeconds <= 0 {
		cfg.Poll.TimeoutSeconds = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.DataDir == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.DataDir = filepath.Join(home, ".feedwatch")
		} else {
			cfg.DataDir = "./.feedwatch-data"
		}
	} else if strings.HasPrefix(cfg.DataDir, "~/") {
		// Go 不会自动展开 ~，需要手动替换为用户主目录
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.DataDir = filepath.Join(home, cfg.DataDir[2:])
		}
	}

	if cfg.Archive.Enabled && cfg.Archive.Path == "" {
		cfg.Archive.Path = filepath.Join(cfg.DataDir, "archive.db")
	}

	// 未设置的订阅源参数继承轮询默认值
	for i := range cfg.Feeds {
		if cfg.Feeds[i].IntervalSeconds <= 0 {
			cfg.Feeds[i].IntervalSeconds = cfg.Poll.IntervalSeconds
		}
		if cfg.Feeds[i].MaxEntries <= 0 {
			cfg.Feeds[i].MaxEntries = cfg.Poll.MaxEntries
		}
		if cfg.Feeds[i].Name == "" {
			cfg.Feeds[i].Name = cfg.Feeds[i].URL
		}
	}
}
