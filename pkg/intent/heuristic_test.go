package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHeuristic(t *testing.T) {
	tests := []struct {
		name    string
		prompt  string
		op      string
		minConf float64
		args    map[string]any
	}{
		{
			name:    "rename cluster with both names",
			prompt:  "rename cluster C3 to 'Order Processing'",
			op:      "rename_cluster",
			minConf: 0.95,
			args:    map[string]any{"cluster_id": "C3", "new_name": "Order Processing"},
		},
		{
			name:    "rename group",
			prompt:  "rename group G7 to Billing",
			op:      "rename_group",
			minConf: 0.95,
			args:    map[string]any{"group_id": "G7", "new_name": "Billing"},
		},
		{
			name:    "move group",
			prompt:  "move group G2 to cluster C1",
			op:      "move_group",
			minConf: 0.95,
			args:    map[string]any{"group_id": "G2", "target_cluster_id": "C1"},
		},
		{
			name:    "move procedure",
			prompt:  "move procedure usp_GetOrders to cluster C4",
			op:      "move_procedure",
			minConf: 0.95,
			args:    map[string]any{"procedure_name": "usp_GetOrders", "target_cluster_id": "C4"},
		},
		{
			name:    "delete procedure",
			prompt:  "delete procedure dbo.usp_OldReport",
			op:      "delete_procedure",
			minConf: 0.95,
			args:    map[string]any{"procedure_name": "dbo.usp_OldReport"},
		},
		{
			name:    "delete table with brackets stripped",
			prompt:  "delete table [dbo].[Orders_Archive]",
			op:      "delete_table",
			minConf: 0.95,
			args:    map[string]any{"table_name": "dbo.Orders_Archive"},
		},
		{
			name:    "add cluster",
			prompt:  "create cluster C9 named Reporting",
			op:      "add_cluster",
			minConf: 0.95,
		},
		{
			name:    "delete cluster",
			prompt:  "delete cluster C2",
			op:      "delete_cluster",
			minConf: 0.95,
			args:    map[string]any{"cluster_id": "C2"},
		},
		{
			name:    "restore procedure",
			prompt:  "restore procedure usp_GetOrders",
			op:      "restore_procedure",
			minConf: 0.65,
			args:    map[string]any{"procedure_name": "usp_GetOrders"},
		},
		{
			name:    "restore procedure into its own group",
			prompt:  "restore procedure usp_GetOrders to cluster C1 in its own group",
			op:      "restore_procedure",
			minConf: 0.95,
			args: map[string]any{
				"procedure_name":    "usp_GetOrders",
				"target_cluster_id": "C1",
				"force_new_group":   true,
			},
		},
		{
			name:    "restore table with index",
			prompt:  "restore table 3 from trash",
			op:      "restore_table",
			minConf: 0.95,
			args:    map[string]any{"trash_index": 3},
		},
		{
			name:    "restore table without index",
			prompt:  "restore table from trash",
			op:      "restore_table",
			minConf: 0.60,
			args:    map[string]any{},
		},
		{
			name:    "list trash",
			prompt:  "show trash",
			op:      "list_trash",
			minConf: 0.95,
		},
		{
			name:    "empty trash",
			prompt:  "empty trash",
			op:      "empty_trash",
			minConf: 0.95,
		},
		{
			name:    "cluster summary",
			prompt:  "show clusters",
			op:      "get_cluster_summary",
			minConf: 0.85,
		},
		{
			name:    "cluster detail",
			prompt:  "show cluster C5",
			op:      "get_cluster_detail",
			minConf: 0.95,
			args:    map[string]any{"cluster_id": "C5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyHeuristic(tt.prompt)
			require.NotNil(t, got)
			assert.Equal(t, tt.op, got.Operation)
			assert.Equal(t, SourceHeuristic, got.Source)
			assert.GreaterOrEqual(t, got.Confidence, tt.minConf)
			for k, v := range tt.args {
				assert.Equal(t, v, got.Arguments[k], "argument %s", k)
			}
		})
	}
}

func TestClassifyHeuristicUnknown(t *testing.T) {
	got := ClassifyHeuristic("what's the weather like")
	assert.Equal(t, OpUnknown, got.Operation)
	assert.Equal(t, SourceFallback, got.Source)
	assert.Equal(t, "what's the weather like", got.Arguments["query"])
	assert.Less(t, got.Confidence, 0.5)
}

func TestClassifyHeuristicMissingNames(t *testing.T) {
	got := ClassifyHeuristic("rename cluster")
	assert.Equal(t, "rename_cluster", got.Operation)
	assert.InDelta(t, 0.60, got.Confidence, 1e-9)
	assert.Empty(t, got.Arguments)
}

func TestSanitizeClampsAndCleans(t *testing.T) {
	r := sanitize(&Result{
		Operation:  "rename_cluster",
		Confidence: 1.7,
		Arguments:  map[string]any{"cluster_id": "[C1]", "new_name": "  "},
	})
	assert.Equal(t, 1.0, r.Confidence)
	assert.Equal(t, "C1", r.Arguments["cluster_id"])
	// Empty-after-cleaning arguments are dropped entirely.
	assert.NotContains(t, r.Arguments, "new_name")

	r = sanitize(&Result{Operation: "drop_database", Confidence: -2})
	assert.Equal(t, OpUnknown, r.Operation)
	assert.Zero(t, r.Confidence)
}

func TestKnown(t *testing.T) {
	for _, op := range Operations {
		assert.True(t, Known(op), op)
	}
	assert.False(t, Known("unknown"))
	assert.False(t, Known(""))
}
