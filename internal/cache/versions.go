package cache

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ResolvedVersion 记录一次版本解析的结果；ResolvedAt 仅用于诊断输出。
type ResolvedVersion struct {
	Package    string    `json:"package"`
	Version    string    `json:"version"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// VersionCache 按规范化包名缓存解析结果。键级别的并发控制由 singleflight
// 提供：同名包的并发首次解析只会触发一次上游调用，不同包之间互不阻塞。
type VersionCache struct {
	mu      sync.RWMutex
	entries map[string]ResolvedVersion
	group   singleflight.Group
}

// NewVersionCache 构造空缓存。
func NewVersionCache() *VersionCache {
	return &VersionCache{entries: make(map[string]ResolvedVersion)}
}

// Lookup 返回已缓存的解析结果。
func (c *VersionCache) Lookup(name string) (ResolvedVersion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[name]
	return entry, ok
}

// Resolve 返回缓存结果；缺失时在键级临界区内执行 resolve 并写入缓存。
// resolve 失败不会缓存，后续请求可以重试。
func (c *VersionCache) Resolve(name string, resolve func() (string, error)) (ResolvedVersion, error) {
	if entry, ok := c.Lookup(name); ok {
		return entry, nil
	}
	value, err, _ := c.group.Do(name, func() (any, error) {
		// 赢得 singleflight 的调用也可能晚于一次已完成的写入。
		if entry, ok := c.Lookup(name); ok {
			return entry, nil
		}
		version, err := resolve()
		if err != nil {
			return nil, err
		}
		entry := ResolvedVersion{Package: name, Version: version, ResolvedAt: time.Now()}
		c.mu.Lock()
		c.entries[name] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return ResolvedVersion{}, err
	}
	return value.(ResolvedVersion), nil
}

// Snapshot 返回按包名排序的缓存副本，用于 /-/status 诊断。
func (c *VersionCache) Snapshot() []ResolvedVersion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ResolvedVersion, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Package < out[j].Package })
	return out
}
