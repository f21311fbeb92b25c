package server

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/wheelstub/wheelstub/internal/config"
)

func TestRouterServesStubIndexForConfiguredPackage(t *testing.T) {
	app := newTestApp(t, 8080)

	resp, err := app.Test(httptest.NewRequest("GET", "/simple/torch/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected stub branch status 204, got %d", resp.StatusCode)
	}
	if app.stubs.indexEntry == nil || app.stubs.indexEntry.Name != "torch" {
		t.Fatalf("expected index entry torch, got %+v", app.stubs.indexEntry)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRouterNormalizesPackageNamesInPath(t *testing.T) {
	app := newTestApp(t, 8080)

	resp, err := app.Test(httptest.NewRequest("GET", "/simple/Torch/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected stub branch for Torch, got %d", resp.StatusCode)
	}
	if app.stubs.indexEntry == nil || app.stubs.indexEntry.Name != "torch" {
		t.Fatalf("expected normalized entry torch, got %+v", app.stubs.indexEntry)
	}
}

func TestRouterForwardsUnknownPackage(t *testing.T) {
	app := newTestApp(t, 8080)

	resp, err := app.Test(httptest.NewRequest("GET", "/simple/requests/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("expected forward branch status 202, got %d", resp.StatusCode)
	}
	if app.forward.path != "/simple/requests/" {
		t.Fatalf("expected forward path preserved, got %s", app.forward.path)
	}
}

func TestRouterForwardsRootIndex(t *testing.T) {
	app := newTestApp(t, 8080)

	resp, err := app.Test(httptest.NewRequest("GET", "/simple/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("expected root index to forward, got %d", resp.StatusCode)
	}
}

func TestRouterRoutesArtifactToStub(t *testing.T) {
	app := newTestApp(t, 8080)

	resp, err := app.Test(httptest.NewRequest("GET", "/simple/torch/torch-2.1.2-py3-none-any.whl", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected stub artifact branch, got %d", resp.StatusCode)
	}
	if app.stubs.filename != "torch-2.1.2-py3-none-any.whl" {
		t.Fatalf("expected artifact filename, got %s", app.stubs.filename)
	}
}

func TestRouterRoutesPackagesPathByFilename(t *testing.T) {
	app := newTestApp(t, 8080)

	resp, err := app.Test(httptest.NewRequest("GET", "/packages/ab/cd/my_package-1.0.0-py3-none-any.whl", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected stub artifact branch for /packages path, got %d", resp.StatusCode)
	}
	if app.stubs.artifactEntry == nil || app.stubs.artifactEntry.Name != "my-package" {
		t.Fatalf("expected my-package entry, got %+v", app.stubs.artifactEntry)
	}
}

func TestRouterForwardsNonReadMethods(t *testing.T) {
	app := newTestApp(t, 8080)

	resp, err := app.Test(httptest.NewRequest("POST", "/simple/torch/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("expected POST to forward, got %d", resp.StatusCode)
	}
}

func TestClassifyPaths(t *testing.T) {
	registry := newTestRegistry(t)

	cases := []struct {
		name     string
		method   string
		path     string
		kind     RouteKind
		entry    string
		filename string
	}{
		{"root index", "GET", "/simple/", RouteForward, "", ""},
		{"configured index", "GET", "/simple/torch/", RouteStubIndex, "torch", ""},
		{"configured index no slash", "GET", "/simple/torch", RouteStubIndex, "torch", ""},
		{"underscore alias", "GET", "/simple/My_Package/", RouteStubIndex, "my-package", ""},
		{"unknown index", "GET", "/simple/requests/", RouteForward, "", ""},
		{"artifact", "HEAD", "/simple/torch/torch-2.1.2-py3-none-any.whl", RouteStubArtifact, "torch", "torch-2.1.2-py3-none-any.whl"},
		{"deep simple path", "GET", "/simple/torch/a/b", RouteForward, "", ""},
		{"packages wheel", "GET", "/packages/12/34/torch-2.1.2-py3-none-any.whl", RouteStubArtifact, "torch", "torch-2.1.2-py3-none-any.whl"},
		{"packages sdist", "GET", "/packages/12/34/torch-2.1.2.tar.gz", RouteForward, "", ""},
		{"packages unknown wheel", "GET", "/packages/12/34/numpy-1.26.0-py3-none-any.whl", RouteForward, "", ""},
		{"write method", "POST", "/simple/torch/", RouteForward, "", ""},
		{"other path", "GET", "/robots.txt", RouteForward, "", ""},
	}

	for _, tc := range cases {
		decision := Classify(registry, tc.method, tc.path)
		if decision.Kind != tc.kind {
			t.Fatalf("%s: expected kind %s, got %s", tc.name, tc.kind, decision.Kind)
		}
		if tc.entry == "" && decision.Entry != nil {
			t.Fatalf("%s: expected no entry, got %s", tc.name, decision.Entry.Name)
		}
		if tc.entry != "" && (decision.Entry == nil || decision.Entry.Name != tc.entry) {
			t.Fatalf("%s: expected entry %s, got %+v", tc.name, tc.entry, decision.Entry)
		}
		if decision.Filename != tc.filename {
			t.Fatalf("%s: expected filename %q, got %q", tc.name, tc.filename, decision.Filename)
		}
	}
}

type testApp struct {
	*fiber.App
	stubs   *stubRecorder
	forward *forwardRecorder
}

func newTestRegistry(t *testing.T) *StubRegistry {
	t.Helper()

	cfg := &config.Config{
		Global: config.GlobalConfig{ListenPort: 8080},
		Packages: []config.PackageConfig{
			{Name: "torch", Version: "auto"},
			{Name: "My_Package", Version: "1.0.0"},
		},
	}
	registry, err := NewStubRegistry(cfg)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	return registry
}

func newTestApp(t *testing.T, port int) *testApp {
	t.Helper()

	registry := newTestRegistry(t)
	if _, ok := registry.Lookup("torch"); !ok {
		t.Fatalf("registry lookup failed for torch")
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	stubs := &stubRecorder{}
	forward := &forwardRecorder{}
	app, err := NewApp(AppOptions{
		Logger:     logger,
		Registry:   registry,
		Stubs:      stubs,
		Forward:    forward,
		ListenPort: port,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &testApp{App: app, stubs: stubs, forward: forward}
}

type stubRecorder struct {
	indexEntry    *StubEntry
	artifactEntry *StubEntry
	filename      string
}

func (s *stubRecorder) Index(c fiber.Ctx, entry *StubEntry) error {
	s.indexEntry = entry
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *stubRecorder) Artifact(c fiber.Ctx, entry *StubEntry, filename string) error {
	s.artifactEntry = entry
	s.filename = filename
	return c.SendStatus(fiber.StatusNoContent)
}

type forwardRecorder struct {
	calls int
	path  string
}

func (f *forwardRecorder) Forward(c fiber.Ctx) error {
	f.calls++
	f.path = string(c.Request().URI().Path())
	return c.SendStatus(fiber.StatusAccepted)
}
