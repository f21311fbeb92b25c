package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wheelstub/wheelstub/internal/resolver"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有替换包共享同一份参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	UpstreamURL     string   `mapstructure:"UpstreamURL"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	MetadataTimeout Duration `mapstructure:"MetadataTimeout"`
	FallbackVersion string   `mapstructure:"FallbackVersion"`
}

// PackageConfig 声明一个需要被替换为空壳 wheel 的包。Version 为具体版本号，
// 或哨兵值 "auto" 表示首次请求时向上游解析最新稳定版。
type PackageConfig struct {
	Name    string `mapstructure:"Name"`
	Version string `mapstructure:"Version"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig    `mapstructure:",squash"`
	Packages []PackageConfig `mapstructure:"Package"`
}

// Policy 返回解析后的版本策略；Validate 通过后一定成功。
func (p PackageConfig) Policy() (resolver.Policy, error) {
	return resolver.ParsePolicy(p.Version)
}

// PolicySummaries 返回所有替换包的策略摘要，例如 torch:auto，供启动日志使用。
func PolicySummaries(packages []PackageConfig) []string {
	if len(packages) == 0 {
		return nil
	}
	result := make([]string, len(packages))
	for i, pkg := range packages {
		result[i] = fmt.Sprintf("%s:%s", pkg.Name, pkg.Version)
	}
	return result
}
