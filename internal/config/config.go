package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 环境变量前缀
const envPrefix = "REWARDWATCH_"

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	Target     TargetConfig     `yaml:"target"`
	DevTools   DevToolsConfig   `yaml:"devtools"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	CaptureLog CaptureLogConfig `yaml:"captureLog"`
	Sqlite     SqliteConfig     `yaml:"sqlite"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// Timezone 计算"今天"所用的时区，空表示本地时区
	Timezone string `yaml:"timezone"`
}

// TargetConfig 目标接口匹配条件
type TargetConfig struct {
	URL     string `yaml:"url"`
	Service string `yaml:"service"`
}

// DevToolsConfig 浏览器调试端点
type DevToolsConfig struct {
	URL string `yaml:"url"`
	// Target 默认附加的目标ID或URL片段，空表示第一个页面
	Target string `yaml:"target"`
	// BodyTimeout 拉取响应体的超时
	BodyTimeout time.Duration `yaml:"bodyTimeout"`
}

type BridgeConfig struct {
	Capacity int `yaml:"capacity"`
}

// CaptureLogConfig 捕获日志保留窗口
type CaptureLogConfig struct {
	Retain  int `yaml:"retain"`
	Display int `yaml:"display"`
}

type SqliteConfig struct {
	Dsn    string `yaml:"dsn"`
	Prefix string `yaml:"prefix"`
}

type LogConfig struct {
	Level  string   `yaml:"level"`
	Writer []string `yaml:"writer"`
	File   string   `yaml:"file"`
}

type MetricsConfig struct {
	Address string `yaml:"address"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Target: TargetConfig{
			URL:     "svc-drcn.developer.huawei.com/codeserver/Common/v1/delegate",
			Service: "partnerActivityService/v1/developer/queryDeveloperRewardInfo",
		},
		DevTools: DevToolsConfig{
			URL:         "http://127.0.0.1:9222",
			BodyTimeout: 5 * time.Second,
		},
		Bridge:     BridgeConfig{Capacity: 64},
		CaptureLog: CaptureLogConfig{Retain: 50, Display: 10},
		Sqlite: SqliteConfig{
			Dsn:    ":memory:",
			Prefix: "rewardwatch_",
		},
		Log: LogConfig{
			Level:  "info",
			Writer: []string{"console"},
			File:   "rewardwatch.log",
		},
	}
}

// Load 读取配置：默认值 <- YAML 文件（可选） <- .env / 环境变量
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("解析配置文件 %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("配置文件不存在: %s", path)
		default:
			return nil, fmt.Errorf("读取配置文件 %s: %w", path, err)
		}
	}

	// .env 不存在时忽略
	_ = godotenv.Load()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := env("TARGET_URL"); v != "" {
		c.Target.URL = v
	}
	if v := env("TARGET_SERVICE"); v != "" {
		c.Target.Service = v
	}
	if v := env("DEVTOOLS_URL"); v != "" {
		c.DevTools.URL = v
	}
	if v := env("DEVTOOLS_TARGET"); v != "" {
		c.DevTools.Target = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := env("LOG_WRITER"); v != "" {
		c.Log.Writer = strings.Split(v, ",")
	}
	if v := env("SQLITE_DSN"); v != "" {
		c.Sqlite.Dsn = v
	}
	if v := env("METRICS_ADDRESS"); v != "" {
		c.Metrics.Address = v
	}
	if v := env("TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if n, err := strconv.Atoi(env("BRIDGE_CAPACITY")); err == nil {
		c.Bridge.Capacity = n
	}
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c.Target.URL == "" {
		return errors.New("target.url 不能为空")
	}
	if c.Bridge.Capacity <= 0 {
		return fmt.Errorf("bridge.capacity 必须大于 0，当前 %d", c.Bridge.Capacity)
	}
	if c.CaptureLog.Retain <= 0 {
		return fmt.Errorf("captureLog.retain 必须大于 0，当前 %d", c.CaptureLog.Retain)
	}
	if c.CaptureLog.Display <= 0 || c.CaptureLog.Display > c.CaptureLog.Retain {
		c.CaptureLog.Display = min(10, c.CaptureLog.Retain)
	}
	if c.DevTools.BodyTimeout <= 0 {
		c.DevTools.BodyTimeout = 5 * time.Second
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location 解析配置的时区
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("无效的时区 %q: %w", c.Timezone, err)
	}
	return loc, nil
}
