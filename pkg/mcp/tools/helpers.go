package tools

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a string.
// This is a common helper used across MCP tool parameter validation.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return val
}

// getOptionalFloat extracts an optional float argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return 0, false
	}
	val, ok := args[key].(float64)
	return val, ok
}

// getOptionalBool extracts an optional bool argument from the request.
func getOptionalBool(req mcp.CallToolRequest, key string) bool {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return false
	}
	val, ok := args[key].(bool)
	return ok && val
}
