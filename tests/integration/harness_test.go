package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/wheelstub/wheelstub/internal/cache"
	"github.com/wheelstub/wheelstub/internal/config"
	"github.com/wheelstub/wheelstub/internal/proxy"
	"github.com/wheelstub/wheelstub/internal/pypi"
	"github.com/wheelstub/wheelstub/internal/resolver"
	"github.com/wheelstub/wheelstub/internal/server"
	"github.com/wheelstub/wheelstub/internal/server/routes"
)

// fakeRegistry 模拟上游源：/pypi/{name}/json 返回预置的项目元数据，
// 其余路径按 addPage 预置的响应返回，并记录全部请求供断言复用。
type fakeRegistry struct {
	server   *http.Server
	listener net.Listener
	URL      string

	mu           sync.Mutex
	requests     []recordedRequest
	metadataHits map[string]int
	projects     map[string]projectDoc
	pages        map[string]pageDoc
}

// recordedRequest 捕获每次上游请求的方法/路径/Host/Headers，便于断言转发行为。
type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Host   string
	Header http.Header
}

type projectDoc struct {
	version  string
	releases map[string]string // version → upload_time
}

type pageDoc struct {
	status      int
	contentType string
	body        []byte
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()
	stub := &fakeRegistry{
		metadataHits: map[string]int{},
		projects:     map[string]projectDoc{},
		pages:        map[string]pageDoc{},
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("unable to start upstream stub: %v", err)
	}
	stub.listener = listener
	stub.URL = "http://" + listener.Addr().String()
	stub.server = &http.Server{Handler: stub}

	go func() {
		_ = stub.server.Serve(listener)
	}()

	return stub
}

func (f *fakeRegistry) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if f.server != nil {
		_ = f.server.Shutdown(ctx)
	}
	if f.listener != nil {
		_ = f.listener.Close()
	}
}

func (f *fakeRegistry) addProject(name, latest string, releases map[string]string) {
	f.mu.Lock()
	f.projects[pypi.Normalize(name)] = projectDoc{version: latest, releases: releases}
	f.mu.Unlock()
}

func (f *fakeRegistry) addPage(path string, status int, contentType string, body []byte) {
	f.mu.Lock()
	f.pages[path] = pageDoc{status: status, contentType: contentType, body: append([]byte(nil), body...)}
	f.mu.Unlock()
}

func (f *fakeRegistry) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeRegistry) metadataHitCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadataHits[pypi.Normalize(name)]
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Host:   r.Host,
		Header: r.Header.Clone(),
	})

	if name, ok := metadataProject(r.URL.Path); ok {
		f.metadataHits[name]++
		doc, found := f.projects[name]
		f.mu.Unlock()
		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeProjectJSON(w, name, doc)
		return
	}

	page, found := f.pages[r.URL.Path]
	f.mu.Unlock()
	if !found {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("upstream has no such page"))
		return
	}
	if page.contentType != "" {
		w.Header().Set("Content-Type", page.contentType)
	}
	w.WriteHeader(page.status)
	_, _ = w.Write(page.body)
}

func metadataProject(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/pypi/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, "/json")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

func writeProjectJSON(w http.ResponseWriter, name string, doc projectDoc) {
	releases := make(map[string][]map[string]any, len(doc.releases))
	for version, uploaded := range doc.releases {
		releases[version] = []map[string]any{{
			"filename":    fmt.Sprintf("%s-%s.tar.gz", name, version),
			"packagetype": "sdist",
			"upload_time": uploaded,
		}}
	}
	payload := map[string]any{
		"info": map[string]any{
			"name":    name,
			"version": doc.version,
		},
		"releases": releases,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// proxyEnv 按 main.go 的装配顺序组装完整代理栈：
// 配置 → 替换表 → 版本缓存 → 元数据客户端 → 解析器 → 合成器/转发器 → Fiber。
type proxyEnv struct {
	app      *fiber.App
	versions *cache.VersionCache
	upstream *fakeRegistry
}

func newProxyEnv(t *testing.T, upstream *fakeRegistry, packages []config.PackageConfig) *proxyEnv {
	t.Helper()
	return newProxyEnvWithFallback(t, upstream, packages, "")
}

func newProxyEnvWithFallback(t *testing.T, upstream *fakeRegistry, packages []config.PackageConfig, fallback string) *proxyEnv {
	t.Helper()

	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      5000,
			UpstreamURL:     upstream.URL,
			LogLevel:        "info",
			UpstreamTimeout: config.Duration(5 * time.Second),
			MetadataTimeout: config.Duration(5 * time.Second),
			FallbackVersion: fallback,
		},
		Packages: packages,
	}

	registry, err := server.NewStubRegistry(cfg)
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	versions := cache.NewVersionCache()
	metadata := pypi.NewClient(cfg.Global.UpstreamURL, server.NewMetadataClient(cfg))
	res := resolver.New(metadata, versions, cfg.Global.FallbackVersion, logger)

	upstreamURL, err := url.Parse(cfg.Global.UpstreamURL)
	if err != nil {
		t.Fatalf("upstream url parse: %v", err)
	}
	forwarder := proxy.NewForwarder(server.NewUpstreamClient(cfg), logger, upstreamURL, cfg.Global.ListenPort)

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Stubs:      proxy.NewSynthesizer(res, logger),
		Forward:    forwarder,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}
	routes.RegisterStatusRoutes(app, registry, versions, cfg.Global.UpstreamURL)

	return &proxyEnv{app: app, versions: versions, upstream: upstream}
}

func doRequest(t *testing.T, app *fiber.App, method, target string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, target, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return body
}
