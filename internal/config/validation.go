package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/wheelstub/wheelstub/internal/pypi"
	"github.com/wheelstub/wheelstub/internal/resolver"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。替换包名会被
// 原地规范化为注册表的标准形式，供运行时查表直接使用。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if err := validateUpstream(g.UpstreamURL); err != nil {
		return fmt.Errorf("Global.UpstreamURL: %w", err)
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.MetadataTimeout.DurationValue() <= 0 {
		return newFieldError("Global.MetadataTimeout", "必须大于 0")
	}
	if g.FallbackVersion != "" {
		policy, err := resolver.ParsePolicy(g.FallbackVersion)
		if err != nil {
			return newFieldError("Global.FallbackVersion", fmt.Sprintf("无效版本号: %v", err))
		}
		if policy.IsAuto() {
			return newFieldError("Global.FallbackVersion", "必须是具体版本号，不能为 auto")
		}
	}

	if len(c.Packages) == 0 {
		return errors.New("至少需要配置一个 Package")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Packages {
		pkg := &c.Packages[i]
		rawName := strings.TrimSpace(pkg.Name)
		if rawName == "" {
			return newFieldError("Package[].Name", "不能为空")
		}
		if strings.ContainsAny(rawName, "/ ") {
			return newFieldError(packageField(rawName, "Name"), "不允许包含路径或空格")
		}

		normalized := pypi.Normalize(rawName)
		if _, exists := seenNames[normalized]; exists {
			return newFieldError(packageField(rawName, "Name"), fmt.Sprintf("规范化后与其它条目重复: %s", normalized))
		}
		seenNames[normalized] = struct{}{}
		pkg.Name = normalized

		if _, err := resolver.ParsePolicy(pkg.Version); err != nil {
			return newFieldError(packageField(normalized, "Version"), fmt.Sprintf("无效版本策略: %v", err))
		}
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
