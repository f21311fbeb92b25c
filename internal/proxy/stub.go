package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/wheelstub/wheelstub/internal/logging"
	"github.com/wheelstub/wheelstub/internal/pypi"
	"github.com/wheelstub/wheelstub/internal/resolver"
	"github.com/wheelstub/wheelstub/internal/server"
	"github.com/wheelstub/wheelstub/internal/wheel"
)

const wheelContentType = "application/octet-stream"

// Synthesizer 为命中替换表的请求生成响应：索引页只列出一个合成 wheel，
// 下载请求则直接返回构造好的 zip 字节。
type Synthesizer struct {
	resolver *resolver.Resolver
	logger   *logrus.Logger
}

// NewSynthesizer constructs the stub-side handler.
func NewSynthesizer(res *resolver.Resolver, logger *logrus.Logger) *Synthesizer {
	return &Synthesizer{resolver: res, logger: logger}
}

// Index 渲染包的 simple 索引页。客户端通过 Accept 协商 JSON 或 HTML 形式，
// 默认 HTML。页面只包含一条指向合成 wheel 的链接，带真实 sha256 片段。
func (s *Synthesizer) Index(c fiber.Ctx, entry *server.StubEntry) error {
	started := time.Now()
	requestID := server.RequestID(c)

	version, err := s.resolve(c, entry)
	if err != nil {
		return s.renderResolutionFailure(c, entry, server.RouteStubIndex, requestID, started, err)
	}

	artifact, err := wheel.Build(entry.Name, version)
	if err != nil {
		s.logResult(c, entry.Name, server.RouteStubIndex, requestID, fiber.StatusInternalServerError, started, err)
		return writeError(c, fiber.StatusInternalServerError, "synthesis_failed")
	}

	entries := []wheel.IndexEntry{wheel.ArtifactEntry(artifact)}
	contentType := wheel.IndexContentTypeHTML
	var body []byte
	if s.prefersJSON(c) {
		contentType = wheel.IndexContentTypeJSON
		body, err = wheel.IndexJSON(entry.Name, entries)
	} else {
		body, err = wheel.IndexHTML(entry.Name, entries)
	}
	if err != nil {
		s.logResult(c, entry.Name, server.RouteStubIndex, requestID, fiber.StatusInternalServerError, started, err)
		return writeError(c, fiber.StatusInternalServerError, "synthesis_failed")
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Status(fiber.StatusOK)
	s.logResult(c, entry.Name, server.RouteStubIndex, requestID, fiber.StatusOK, started, nil)

	if c.Method() == http.MethodHead {
		c.Response().Header.SetContentLength(len(body))
		return nil
	}
	return c.Send(body)
}

// Artifact 返回合成 wheel 的完整字节。文件名里能解析出版本时以文件名为准，
// 保证与索引页列出的链接字节一致；解析不出来则按策略解析版本。
func (s *Synthesizer) Artifact(c fiber.Ctx, entry *server.StubEntry, filename string) error {
	started := time.Now()
	requestID := server.RequestID(c)

	version, ok := wheel.VersionFromFilename(filename)
	if !ok {
		resolved, err := s.resolve(c, entry)
		if err != nil {
			return s.renderResolutionFailure(c, entry, server.RouteStubArtifact, requestID, started, err)
		}
		version = resolved
	}

	artifact, err := wheel.Build(entry.Name, version)
	if err != nil {
		s.logResult(c, entry.Name, server.RouteStubArtifact, requestID, fiber.StatusInternalServerError, started, err)
		return writeError(c, fiber.StatusInternalServerError, "synthesis_failed")
	}

	c.Set(fiber.HeaderContentType, wheelContentType)
	c.Status(fiber.StatusOK)
	s.logResult(c, entry.Name, server.RouteStubArtifact, requestID, fiber.StatusOK, started, nil)

	if c.Method() == http.MethodHead {
		c.Response().Header.SetContentLength(len(artifact.Content))
		return nil
	}
	return c.Send(artifact.Content)
}

func (s *Synthesizer) resolve(c fiber.Ctx, entry *server.StubEntry) (string, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return s.resolver.Resolve(ctx, entry.Name, entry.Policy)
}

// prefersJSON 判断客户端是否明确偏好 simple-API v1 JSON；未表态时返回 HTML。
func (s *Synthesizer) prefersJSON(c fiber.Ctx) bool {
	accepted := c.Accepts("text/html", wheel.IndexContentTypeJSON)
	return accepted == wheel.IndexContentTypeJSON
}

// renderResolutionFailure 把解析失败映射为对外状态码：包在上游不存在返回
// 404，其余（网络、元数据异常）一律 502，绝不让请求悬着。
func (s *Synthesizer) renderResolutionFailure(
	c fiber.Ctx,
	entry *server.StubEntry,
	kind server.RouteKind,
	requestID string,
	started time.Time,
	err error,
) error {
	status := fiber.StatusBadGateway
	code := "resolution_failed"
	if errors.Is(err, pypi.ErrNotFound) {
		status = fiber.StatusNotFound
		code = "package_not_found"
	}
	s.logResult(c, entry.Name, kind, requestID, status, started, err)
	return writeError(c, status, code)
}

func (s *Synthesizer) logResult(
	c fiber.Ctx,
	pkg string,
	kind server.RouteKind,
	requestID string,
	status int,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(pkg, string(kind), requestPath(c), true)
	fields["action"] = "proxy"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		s.logger.WithFields(fields).Error("stub_failed")
		return
	}
	s.logger.WithFields(fields).Info("stub_served")
}
