package routes

import (
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/wheelstub/wheelstub/internal/cache"
	"github.com/wheelstub/wheelstub/internal/server"
)

// RegisterStatusRoutes 暴露 /-/status 诊断接口，供运维查询替换表与已固定的版本。
func RegisterStatusRoutes(app *fiber.App, registry *server.StubRegistry, versions *cache.VersionCache, upstream string) {
	if app == nil || registry == nil || versions == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"upstream": upstream,
			"packages": encodePackages(registry.List(), versions),
			"resolved": versions.Snapshot(),
		}
		return c.JSON(payload)
	})

	app.Get("/-/status/:package", func(c fiber.Ctx) error {
		name := strings.TrimSpace(c.Params("package"))
		if name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "package_name_required"})
		}
		entry, ok := registry.Lookup(name)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "package_not_found"})
		}
		return c.JSON(encodePackage(*entry, versions))
	})
}

type packagePayload struct {
	Name       string `json:"name"`
	Policy     string `json:"policy"`
	Resolved   string `json:"resolved_version,omitempty"`
	ResolvedAt string `json:"resolved_at,omitempty"`
}

func encodePackages(entries []server.StubEntry, versions *cache.VersionCache) []packagePayload {
	if len(entries) == 0 {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	result := make([]packagePayload, 0, len(entries))
	for _, entry := range entries {
		result = append(result, encodePackage(entry, versions))
	}
	return result
}

func encodePackage(entry server.StubEntry, versions *cache.VersionCache) packagePayload {
	payload := packagePayload{
		Name:   entry.Name,
		Policy: entry.Policy.String(),
	}
	if resolved, ok := versions.Lookup(entry.Name); ok {
		payload.Resolved = resolved.Version
		payload.ResolvedAt = resolved.ResolvedAt.UTC().Format(time.RFC3339)
	}
	return payload
}
