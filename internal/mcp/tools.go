package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/snapfood/internal/nutrition"
)

func conditionNames() []string {
	names := make([]string, len(nutrition.Conditions))
	for i, c := range nutrition.Conditions {
		names[i] = string(c)
	}
	return names
}

var evaluateToolDef = mcp.NewTool("scan_evaluate",
	mcp.WithDescription("Evaluate a nutrient profile against a health condition. Returns ordered health flags (good/caution/critical), recommendations and a 0-100 score. Nothing is stored."),
	mcp.WithObject("nutrients", mcp.Required(),
		mcp.Description("Nutrient amounts keyed by name, e.g. {\"carbs\": 52, \"sugar\": 4}. Missing nutrients count as zero; values must be non-negative numbers.")),
	mcp.WithString("condition", mcp.Required(), mcp.Enum(conditionNames()...),
		mcp.Description("Active health condition")),
)

var recordToolDef = mcp.NewTool("scan_record",
	mcp.WithDescription("Evaluate a nutrient profile and record the scan. The scan is queued durably and synced to the remote store in order, in the background when online."),
	mcp.WithObject("nutrients", mcp.Required(),
		mcp.Description("Nutrient amounts keyed by name")),
	mcp.WithString("condition", mcp.Required(), mcp.Enum(conditionNames()...),
		mcp.Description("Active health condition")),
	mcp.WithString("dish_name", mcp.Description("Optional dish label")),
	mcp.WithString("source", mcp.Description("Scan origin (default: mcp)")),
)

var statusToolDef = mcp.NewTool("queue_status",
	mcp.WithDescription("Return the pending scan count and the result of the last sync cycle."),
)

var listToolDef = mcp.NewTool("queue_list",
	mcp.WithDescription("List queued scans awaiting delivery, oldest first."),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var syncToolDef = mcp.NewTool("queue_sync",
	mcp.WithDescription("Request a sync of queued scans. Returns immediately unless wait is true."),
	mcp.WithBoolean("wait", mcp.Description("Wait for the sync cycle to finish before returning")),
)

var reportToolDef = mcp.NewTool("queue_report",
	mcp.WithDescription("Render a queued scan as a Markdown or HTML report."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Scan id")),
	mcp.WithString("format", mcp.Enum("markdown", "html"), mcp.Description("Output format (default markdown)")),
)

var exportToolDef = mcp.NewTool("queue_export",
	mcp.WithDescription("Write queued scans to a JSONL file for backup or transfer. The queue is not modified."),
	mcp.WithString("path", mcp.Description("Output .jsonl path; must be directly in the exports directory or an allowed path (default: exports/pending-<timestamp>.jsonl)")),
)

var importToolDef = mcp.NewTool("queue_import",
	mcp.WithDescription("Queue the scans of a JSONL export. Already-queued ids are skipped; already-synced records are rejected."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path of the .jsonl export file")),
)

var offlineModeToolDef = mcp.NewTool("offline_mode_set",
	mcp.WithDescription("Turn offline mode on or off. In offline mode scans are always queued locally."),
	mcp.WithBoolean("enabled", mcp.Required(), mcp.Description("Offline mode on (true) or off (false)")),
)

var connectivityToolDef = mcp.NewTool("connectivity_set",
	mcp.WithDescription("Report a host connectivity change. Going online starts a sync; going offline cancels one in flight."),
	mcp.WithBoolean("online", mcp.Required(), mcp.Description("Whether the host is online")),
)
