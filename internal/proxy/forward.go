package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/wheelstub/wheelstub/internal/logging"
	"github.com/wheelstub/wheelstub/internal/server"
)

// Forwarder 将未命中替换表的请求原样透传到上游索引。响应头按 hop-by-hop
// 规则过滤后回写，响应体流式透传，不在内存里缓冲完整文件。
type Forwarder struct {
	client     *http.Client
	logger     *logrus.Logger
	upstream   *url.URL
	listenPort int
}

// NewForwarder constructs a pass-through handler bound to one upstream base URL.
func NewForwarder(client *http.Client, logger *logrus.Logger, upstream *url.URL, listenPort int) *Forwarder {
	return &Forwarder{
		client:     client,
		logger:     logger,
		upstream:   upstream,
		listenPort: listenPort,
	}
}

// Forward 执行一次透传：构造上游请求、过滤头部、流式回写响应。
// 上游不可达时返回 502，上游返回的任何状态码则原样传给客户端。
func (f *Forwarder) Forward(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	target := f.resolveTarget(c)

	req, err := f.buildUpstreamRequest(c, target)
	if err != nil {
		f.logResult(c, target.String(), requestID, 0, started, err)
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logResult(c, target.String(), requestID, 0, started, err)
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	copyResponseHeaders(c, resp.Header)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		resp.Body.Close()
		f.logResult(c, target.String(), requestID, resp.StatusCode, started, nil)
		return nil
	}

	f.logResult(c, target.String(), requestID, resp.StatusCode, started, nil)
	// SendStream 将 body 交给 fasthttp 分块写出并在写完后关闭，
	// 下游消费得慢时上游读取同样被反压。
	if resp.ContentLength >= 0 {
		return c.SendStream(resp.Body, int(resp.ContentLength))
	}
	return c.SendStream(resp.Body)
}

// resolveTarget 把客户端请求的路径与查询参数拼接到上游 base URL 上。
func (f *Forwarder) resolveTarget(c fiber.Ctx) *url.URL {
	uri := c.Request().URI()
	clean := normalizeRequestPath(string(uri.Path()))
	relative := &url.URL{Path: clean}
	if query := uri.QueryString(); len(query) > 0 {
		relative.RawQuery = string(query)
	}
	return f.upstream.ResolveReference(relative)
}

func (f *Forwarder) buildUpstreamRequest(c fiber.Ctx, target *url.URL) (*http.Request, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), target.String(), bytesReader(c.Body()))
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Host = target.Host
	req.Header.Set("Host", target.Host)
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Protocol())
	req.Header.Set("X-Forwarded-Port", fmt.Sprintf("%d", f.listenPort))

	return req, nil
}

func (f *Forwarder) logResult(c fiber.Ctx, upstream, requestID string, status int, started time.Time, err error) {
	fields := logging.RequestFields("", string(server.RouteForward), requestPath(c), false)
	fields["action"] = "proxy"
	fields["upstream"] = upstream
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		f.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	f.logger.WithFields(fields).Info("proxy_complete")
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func requestPath(c fiber.Ctx) string {
	if c == nil {
		return "/"
	}
	uri := c.Request().URI()
	if uri == nil {
		return "/"
	}
	pathVal := string(uri.Path())
	if pathVal == "" {
		return "/"
	}
	return pathVal
}

func normalizeRequestPath(raw string) string {
	if raw == "" {
		raw = "/"
	}
	clean := path.Clean("/" + raw)
	// path.Clean 会吃掉尾部斜杠，而 /simple/{pkg}/ 的尾斜杠对上游有意义。
	if clean != "/" && len(raw) > 1 && raw[len(raw)-1] == '/' {
		clean += "/"
	}
	return clean
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
