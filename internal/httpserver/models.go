package httpserver

import (
	"sort"

	"github.com/gofiber/fiber/v2"
)

type modelEntry struct {
	ID      string `json:"id"`
	Backend string `json:"backend"`
	Object  string `json:"object"`
}

// listModels implements GET /v1/models: the union of client-visible model
// ids across every backend, default models and aliases alike.
func (h *handlers) listModels(c *fiber.Ctx) error {
	seen := make(map[string]modelEntry)
	for _, bc := range h.container.Registry.Iter() {
		if bc.DefaultModel != "" {
			seen[bc.DefaultModel] = modelEntry{ID: bc.DefaultModel, Backend: bc.Name, Object: "model"}
		}
		for alias := range bc.ModelAliases {
			if _, exists := seen[alias]; !exists {
				seen[alias] = modelEntry{ID: alias, Backend: bc.Name, Object: "model"}
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data := make([]modelEntry, 0, len(ids))
	for _, id := range ids {
		data = append(data, seen[id])
	}

	return c.JSON(fiber.Map{"object": "list", "data": data})
}
