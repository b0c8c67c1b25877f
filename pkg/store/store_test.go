package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/procmap-io/procmap/pkg/models"
)

func sampleSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Parameters: models.DefaultParameters(),
		Clusters: []models.Cluster{
			{ClusterID: "C0", DisplayName: "Orders", GroupIDs: []string{"G0"}},
		},
		ProcedureGroups: []models.ProcedureGroup{
			{
				GroupID:     "G0",
				ClusterID:   "C0",
				Procedures:  []string{"dbo·usp_GetOrders"},
				Tables:      []string{"dbo·orders"},
				IsSingleton: true,
			},
		},
		KnownTables:    []string{"dbo·Orders"},
		NextClusterSeq: 1,
		NextGroupSeq:   1,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewSnapshotStore(path, zap.NewNop())

	assert.False(t, s.Exists())
	require.NoError(t, s.Save(sampleSnapshot()))
	assert.True(t, s.Exists())

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot().Clusters, got.Clusters)
	assert.Equal(t, sampleSnapshot().ProcedureGroups, got.ProcedureGroups)
	assert.Equal(t, 1, got.NextClusterSeq)
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	s := NewSnapshotStore(path, nil)

	require.NoError(t, s.Save(sampleSnapshot()))
	assert.True(t, s.Exists())
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := NewSnapshotStore(path, zap.NewNop())

	require.NoError(t, s.Save(sampleSnapshot()))

	snap := sampleSnapshot()
	snap.Clusters[0].DisplayName = "Renamed"
	require.NoError(t, s.Save(snap))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Clusters[0].DisplayName)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestLoadMissingFile(t *testing.T) {
	s := NewSnapshotStore(filepath.Join(t.TempDir(), "absent.json"), zap.NewNop())
	_, err := s.Load()
	require.Error(t, err)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewSnapshotStore(path, zap.NewNop())
	_, err := s.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode snapshot")
}
