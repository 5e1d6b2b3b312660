// Package mcp exposes store administration as MCP tools over stdio.
package mcp

import (
	"database/sql"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/storebot/internal/config"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"product", "schedule", "seller"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

var toolRegistry = map[string]toolEntry{
	"seller_register": {
		def:     sellerRegisterToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSellerRegister },
	},
	"seller_get": {
		def:     sellerGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSellerGet },
	},
	"seller_set_premium": {
		def:     sellerPremiumToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSellerPremium },
	},
	"product_list": {
		def:     productListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProductList },
	},
	"product_get": {
		def:     productGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProductGet },
	},
	"product_stats": {
		def:     productStatsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProductStats },
	},
	"product_toggle_button": {
		def:     productButtonToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProductToggleButton },
	},
	"product_set_link": {
		def:     productLinkToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProductSetLink },
	},
	"product_edit": {
		def:     productEditToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProductEdit },
	},
	"product_delete": {
		def:     productDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProductDelete },
	},
	"product_search": {
		def:     productSearchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProductSearch },
	},
	"schedule_create": {
		def:     scheduleCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleScheduleCreate },
	},
	"schedule_list": {
		def:     scheduleListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleScheduleList },
	},
	"schedule_pause": {
		def:     schedulePauseToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSchedulePause },
	},
	"schedule_resume": {
		def:     scheduleResumeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleScheduleResume },
	},
	"schedule_delete": {
		def:     scheduleDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleScheduleDelete },
	},
	"schedule_next": {
		def:     scheduleNextToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleScheduleNext },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns the names that are not registered tools.
func ValidateDisabledTools(names []string) []string {
	var unknown []string
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns the names that are not known types.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}
	var unknown []string
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type from a "type_action" tool name
// ("schedule_pause" → "schedule").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	var tools []string
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	sort.Strings(tools)
	return tools
}

// NewServer creates the MCP server. Tools listed in cfg.DisabledTools or
// belonging to cfg.DisabledTypes are not registered.
func NewServer(db *sql.DB, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer("storebot", version, server.WithToolCapabilities(true))
	h := NewHandlers(db, cfg)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run serves the tools over stdio until stdin closes.
func Run(db *sql.DB, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(db, cfg, version))
}
