package server

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wheelstub/wheelstub/internal/wheel"
)

// StubHandler describes the component that renders synthetic index and
// artifact responses for intercepted packages. It allows injecting fake
// handlers during tests.
type StubHandler interface {
	Index(fiber.Ctx, *StubEntry) error
	Artifact(fiber.Ctx, *StubEntry, string) error
}

// ForwardHandler describes the component that relays a request to the
// upstream registry.
type ForwardHandler interface {
	Forward(fiber.Ctx) error
}

// ForwardHandlerFunc adapts a function to the ForwardHandler interface.
type ForwardHandlerFunc func(fiber.Ctx) error

// Forward makes ForwardHandlerFunc satisfy ForwardHandler.
func (f ForwardHandlerFunc) Forward(c fiber.Ctx) error {
	return f(c)
}

// RouteKind 标识一次请求命中的处理分支。
type RouteKind string

const (
	RouteForward      RouteKind = "forward"
	RouteStubIndex    RouteKind = "stub_index"
	RouteStubArtifact RouteKind = "stub_artifact"
)

// RouteDecision 记录路径分类结果，供 handler 与请求日志复用。
type RouteDecision struct {
	Kind     RouteKind
	Entry    *StubEntry
	Filename string
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *StubRegistry
	Stubs      StubHandler
	Forward    ForwardHandler
	ListenPort int
}

const (
	contextKeyDecision  = "_wheelstub_decision"
	contextKeyRequestID = "_wheelstub_request_id"
)

// NewApp builds a Fiber application with path classification middleware and
// structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("stub registry is required")
	}
	if opts.Stubs == nil {
		return nil, errors.New("stub handler is required")
	}
	if opts.Forward == nil {
		return nil, errors.New("forward handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		decision := DecisionFromContext(c)
		switch decision.Kind {
		case RouteStubIndex:
			return opts.Stubs.Index(c, decision.Entry)
		case RouteStubArtifact:
			return opts.Stubs.Artifact(c, decision.Entry, decision.Filename)
		default:
			return opts.Forward.Forward(c)
		}
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并基于路径分类写入 RouteDecision。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}

		decision := Classify(opts.Registry, c.Method(), string(c.Request().URI().Path()))
		c.Locals(contextKeyDecision, decision)
		return c.Next()
	}
}

// Classify 判定请求应走替换分支还是透传分支。
// 只有 GET/HEAD 可能命中替换分支，其余方法一律透传；
// 包名匹配前按 PEP 503 规则规范化。
func Classify(registry *StubRegistry, method, rawPath string) RouteDecision {
	forward := RouteDecision{Kind: RouteForward}
	if method != http.MethodGet && method != http.MethodHead {
		return forward
	}

	clean := path.Clean("/" + rawPath)
	switch {
	case clean == "/simple":
		// 根索引列出全量包名，直接透传。
		return forward
	case strings.HasPrefix(clean, "/simple/"):
		rest := strings.Trim(strings.TrimPrefix(clean, "/simple/"), "/")
		if rest == "" {
			return forward
		}
		segments := strings.Split(rest, "/")
		entry, ok := registry.Lookup(segments[0])
		if !ok {
			return forward
		}
		switch len(segments) {
		case 1:
			return RouteDecision{Kind: RouteStubIndex, Entry: entry}
		case 2:
			return RouteDecision{Kind: RouteStubArtifact, Entry: entry, Filename: segments[1]}
		}
		return forward
	case strings.HasPrefix(clean, "/packages/"):
		filename := path.Base(clean)
		dist, ok := wheel.DistFromFilename(filename)
		if !ok {
			return forward
		}
		if entry, found := registry.Lookup(dist); found {
			return RouteDecision{Kind: RouteStubArtifact, Entry: entry, Filename: filename}
		}
	}
	return forward
}

// DecisionFromContext 返回中间件写入的分类结果，缺省为透传。
func DecisionFromContext(c fiber.Ctx) RouteDecision {
	if value := c.Locals(contextKeyDecision); value != nil {
		if decision, ok := value.(RouteDecision); ok {
			return decision
		}
	}
	return RouteDecision{Kind: RouteForward}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
