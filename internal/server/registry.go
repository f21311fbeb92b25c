package server

import (
	"errors"
	"fmt"

	"github.com/wheelstub/wheelstub/internal/config"
	"github.com/wheelstub/wheelstub/internal/pypi"
	"github.com/wheelstub/wheelstub/internal/resolver"
)

// StubEntry 将 Package 配置与解析后的版本策略聚合在一起，
// 供路由/合成层直接复用，避免重复解析配置。
type StubEntry struct {
	// Name 是 PEP 503 规范化后的包名，作为全局唯一键。
	Name string
	// Policy 是该包生效的版本策略（固定版本或 auto）。
	Policy resolver.Policy
}

// StubRegistry 提供包名到 StubEntry 的查询能力，查询前自动规范化名称。
type StubRegistry struct {
	entries map[string]*StubEntry
	ordered []*StubEntry
}

// NewStubRegistry 根据配置构建替换表。调用方应在启动阶段创建一次并复用。
func NewStubRegistry(cfg *config.Config) (*StubRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &StubRegistry{
		entries: make(map[string]*StubEntry, len(cfg.Packages)),
	}

	for _, pkg := range cfg.Packages {
		name := pypi.Normalize(pkg.Name)
		if name == "" {
			return nil, fmt.Errorf("invalid package name %q", pkg.Name)
		}
		if _, exists := registry.entries[name]; exists {
			return nil, fmt.Errorf("duplicate package mapping detected for %s", name)
		}

		policy, err := pkg.Policy()
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", name, err)
		}

		entry := &StubEntry{Name: name, Policy: policy}
		registry.entries[name] = entry
		registry.ordered = append(registry.ordered, entry)
	}

	return registry, nil
}

// Lookup 根据原始包名查找 StubEntry，匹配前按 PEP 503 规则规范化。
func (r *StubRegistry) Lookup(name string) (*StubEntry, bool) {
	if r == nil {
		return nil, false
	}

	normalized := pypi.Normalize(name)
	if normalized == "" {
		return nil, false
	}

	entry, ok := r.entries[normalized]
	return entry, ok
}

// List 返回当前注册的 StubEntry 列表（按配置定义的顺序），用于调试或 /-/status 输出。
func (r *StubRegistry) List() []StubEntry {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]StubEntry, len(r.ordered))
	for i, entry := range r.ordered {
		result[i] = *entry
	}
	return result
}
