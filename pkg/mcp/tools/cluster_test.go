package tools

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/procmap-io/procmap/pkg/cluster"
	"github.com/procmap-io/procmap/pkg/models"
	"github.com/procmap-io/procmap/pkg/services"
	"github.com/procmap-io/procmap/pkg/store"
)

const toolCatalog = `{
  "Tables": {
    "dbo.Orders":   {"Schema": "dbo", "Original_Name": "Orders"},
    "dbo.Products": {"Schema": "dbo", "Original_Name": "Products"}
  },
  "Procedures": {
    "dbo.usp_GetOrders": {
      "Schema": "dbo", "Original_Name": "usp_GetOrders",
      "Reads": [{"Schema": "dbo", "Name": "Orders"}]
    },
    "dbo.usp_GetInventory": {
      "Schema": "dbo", "Original_Name": "usp_GetInventory",
      "Reads": [{"Schema": "dbo", "Name": "Products"}]
    }
  }
}`

func newToolDeps(t *testing.T) *ClusterToolDeps {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(catalogPath, []byte(toolCatalog), 0o644))

	st := store.NewSnapshotStore(filepath.Join(dir, "state.json"), zap.NewNop())
	svc := services.NewClusterService(st, cluster.DefaultExtractorOptions(), zap.NewNop())
	require.NoError(t, svc.BuildFromCatalog(catalogPath, models.DefaultParameters()))

	return &ClusterToolDeps{Service: svc, Logger: zap.NewNop()}
}

func TestExecuteSuccess(t *testing.T) {
	deps := newToolDeps(t)

	res, err := execute(deps, services.OpRenameCluster, map[string]any{
		"cluster_id": "C0",
		"new_name":   "Orders",
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var op models.OpResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &op))
	assert.True(t, op.OK)
	assert.Contains(t, op.Message, "renamed cluster C0")
}

func TestExecuteRejectionBecomesStructuredError(t *testing.T) {
	deps := newToolDeps(t)

	res, err := execute(deps, services.OpRenameCluster, map[string]any{
		"cluster_id": "C99",
		"new_name":   "nope",
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	assert.Equal(t, "operation_rejected", resp.Code)
	assert.Contains(t, resp.Message, "not found")
}

func TestExecuteEngineErrorSurfacesAsGoError(t *testing.T) {
	deps := newToolDeps(t)

	_, err := execute(deps, "frobnicate", nil)
	require.Error(t, err)
}

func TestExecuteSummaryView(t *testing.T) {
	deps := newToolDeps(t)

	res, err := execute(deps, services.OpGetClusterSummary, nil)
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var op models.OpResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &op))
	assert.True(t, op.OK)

	data, marshalErr := json.Marshal(op.Data)
	require.NoError(t, marshalErr)
	var summary services.Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Len(t, summary.Clusters, 2)
}

func TestExecuteTrashRoundTrip(t *testing.T) {
	deps := newToolDeps(t)

	res, err := execute(deps, services.OpDeleteProcedure, map[string]any{
		"procedure_name": "dbo.usp_GetOrders",
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	res, err = execute(deps, services.OpRestoreProcedure, map[string]any{
		"procedure_name":    "dbo.usp_GetOrders",
		"target_cluster_id": "",
		"force_new_group":   false,
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = execute(deps, services.OpListTrash, nil)
	require.NoError(t, err)
	var op models.OpResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &op))
	assert.Contains(t, op.Message, "0 items")
}
