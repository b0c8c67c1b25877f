package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	return res.Content[0].(mcp.TextContent).Text
}

func TestNewErrorResult(t *testing.T) {
	res := NewErrorResult("not_found", "cluster C9 does not exist")
	assert.True(t, res.IsError)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	assert.True(t, resp.Error)
	assert.Equal(t, "not_found", resp.Code)
	assert.Equal(t, "cluster C9 does not exist", resp.Message)
	assert.Nil(t, resp.Details)
}

func TestNewErrorResultWithDetails(t *testing.T) {
	res := NewErrorResultWithDetails("unrecognized_command", "no matching operation",
		map[string]any{"confidence": 0.3})
	assert.True(t, res.IsError)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	assert.Equal(t, "unrecognized_command", resp.Code)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.3, details["confidence"])
}
